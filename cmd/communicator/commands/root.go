// Package commands 实现 communicator 命令行：连接账户、创建集合、铸造 Token、
// 枚举注册表、订阅合约事件以及启动事件查询服务
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/logging"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services"
	"github.com/weisyn/collection-sdk-go/services/collection"
	"github.com/weisyn/collection-sdk-go/wallet"
)

// options 全局参数
type options struct {
	endpoint     string
	protocol     string
	contract     string
	abiPath      string
	privateKey   string
	yes          bool
	debug        bool
	pollInterval time.Duration
}

// app 命令运行时依赖，在 PersistentPreRunE 中构建
type app struct {
	opts    *options
	logger  *logging.Logger
	metrics *metrics.Metrics
	client  client.Client
	sdk     *services.SDK
}

// newRootCommand 创建根命令；调用方负责在执行后调用 app.close
func newRootCommand() (*cobra.Command, *app) {
	opts := &options{}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "communicator",
		Short:         "Create NFT collections and mint tokens through a CollectionAggregator contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.endpoint, "endpoint", "http://localhost:8545", "node endpoint (http(s):// or ws(s)://)")
	flags.StringVar(&opts.protocol, "protocol", "", "transport: http or websocket (default: derived from endpoint)")
	flags.StringVar(&opts.contract, "contract", "", "CollectionAggregator address (default "+services.DefaultConfig().ContractAddress+")")
	flags.StringVar(&opts.abiPath, "abi", "", "contract ABI artifact (Truffle JSON or bare ABI array; default: built-in)")
	flags.StringVar(&opts.privateKey, "private-key", "", "hex private key of a local signer (default: node-managed accounts)")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "approve connection and transaction prompts automatically")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.DurationVar(&opts.pollInterval, "poll-interval", 0, "receipt polling interval (default 2s)")
	_ = flags.MarkHidden("poll-interval")

	root.AddCommand(
		accountsCmd(a),
		connectCmd(a),
		createCollectionCmd(a),
		mintCmd(a),
		collectionsCmd(a),
		subscribeCmd(a),
		serveCmd(a),
	)
	return root, a
}

// Execute 执行命令行
func Execute(ctx context.Context) error {
	root, a := newRootCommand()
	defer a.close()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// setup 构建客户端、Provider 与业务服务
func (a *app) setup(cmd *cobra.Command) error {
	// 1. 日志与指标
	a.logger = logging.NewConsole(cmd.ErrOrStderr(), a.opts.debug)
	a.metrics = metrics.New()

	// 2. 节点客户端
	cfg := client.DefaultConfig()
	cfg.Endpoint = a.opts.endpoint
	cfg.Protocol = resolveProtocol(a.opts.protocol, a.opts.endpoint)
	cfg.Debug = a.opts.debug
	cfg.Logger = a.logger
	cli, err := client.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	a.client = cli

	// 3. Provider：本地私钥或节点托管账户
	p, err := a.provider(cmd)
	if err != nil {
		return err
	}

	// 4. 业务服务
	svcCfg := services.DefaultConfig()
	if a.opts.contract != "" {
		svcCfg.ContractAddress = a.opts.contract
	}
	svcCfg.ABIPath = a.opts.abiPath
	if a.opts.pollInterval > 0 {
		svcCfg.PollInterval = a.opts.pollInterval
	}
	svcCfg.Logger = a.logger
	svcCfg.Metrics = a.metrics
	out := cmd.OutOrStdout()
	svcCfg.Notifier = collection.NotifierFunc(func(message string) {
		fmt.Fprintln(out, message)
	})

	sdk, err := services.New(p, svcCfg)
	if err != nil {
		return err
	}
	a.sdk = sdk
	return nil
}

func (a *app) provider(cmd *cobra.Command) (provider.Provider, error) {
	if a.opts.privateKey == "" {
		return provider.NewRPCProvider(a.client, a.logger), nil
	}

	w, err := wallet.NewWalletFromPrivateKey(a.opts.privateKey)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	var approve provider.ApproveFunc = provider.AutoApprove
	if !a.opts.yes {
		approve = provider.PromptApprove(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	return provider.NewWalletProvider(a.client, w, approve, a.logger), nil
}

func (a *app) close() {
	if a.sdk != nil {
		a.sdk.Close()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Debug("close client", "error", err)
		}
	}
}

// resolveProtocol 未显式指定时按端点 scheme 推断
func resolveProtocol(protocol, endpoint string) client.Protocol {
	if protocol != "" {
		return client.Protocol(protocol)
	}
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return client.ProtocolWebSocket
	}
	return client.ProtocolHTTP
}
