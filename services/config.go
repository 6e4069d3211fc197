package services

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/collection"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/transaction"
)

// Config 统一的业务服务配置结构，为各个具体 Service 提供合约地址、ABI 与交易参数。
//
// **说明**：
// - 所有字段均为可选，未提供时使用内置 ABI、默认合约地址与默认交易参数
// - 地址字段为 0x 前缀的十六进制字符串，大小写混合时必须符合 EIP-55 校验
type Config struct {
	// ContractAddress CollectionAggregator 地址；为空时使用 contract.DefaultAddress
	ContractAddress string

	// ABIPath ABI 构件路径（Truffle 构件或裸 ABI 数组）；为空时使用内置 ABI
	ABIPath string

	// PollInterval 回执轮询间隔
	PollInterval time.Duration

	// GasLimits 按方法名固定的 gas 上限
	GasLimits map[string]uint64

	// CrossCheckEvent 创建成功后用回执事件核对注册表回查结果
	CrossCheckEvent bool

	// Logger 日志器（可选）
	Logger client.Logger

	// Metrics 指标（可选）
	Metrics *metrics.Metrics

	// Notifier 用户提示（可选）
	Notifier collection.Notifier
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	txDefaults := transaction.DefaultConfig()
	return &Config{
		ContractAddress: contract.DefaultAddress,
		PollInterval:    txDefaults.PollInterval,
		GasLimits:       txDefaults.GasLimits,
		CrossCheckEvent: true,
	}
}

// ContractRef 按配置构建合约引用
func (c *Config) ContractRef() (*contract.Ref, error) {
	if c.ABIPath == "" {
		return contract.NewDefaultRef(c.ContractAddress)
	}

	parsed, err := contract.LoadArtifactFile(c.ABIPath)
	if err != nil {
		return nil, err
	}
	if err := requireMethods(parsed); err != nil {
		return nil, fmt.Errorf("%s: %w", c.ABIPath, err)
	}

	address := c.ContractAddress
	if address == "" {
		address = contract.DefaultAddress
	}
	return contract.NewRef(address, parsed)
}

// transactionConfig 派生交易执行配置
func (c *Config) transactionConfig() *transaction.Config {
	cfg := transaction.DefaultConfig()
	if c.PollInterval > 0 {
		cfg.PollInterval = c.PollInterval
	}
	if c.GasLimits != nil {
		cfg.GasLimits = c.GasLimits
	}
	cfg.Logger = c.Logger
	cfg.Metrics = c.Metrics
	return cfg
}

// requireMethods 检查 ABI 含有工作流依赖的方法
func requireMethods(parsed abi.ABI) error {
	for _, name := range []string{
		contract.MethodCreateCollection,
		contract.MethodMint,
		contract.MethodRegistryGetLength,
		contract.MethodRegistryGetByIndex,
	} {
		if _, ok := parsed.Methods[name]; !ok {
			return fmt.Errorf("ABI has no method %s", name)
		}
	}
	return nil
}
