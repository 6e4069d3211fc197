// Package integration 针对本地开发链（Ganache/Hardhat）的集成测试
//
// 节点未运行或 CollectionAggregator 未部署时测试会被跳过。
package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services"
	"github.com/weisyn/collection-sdk-go/services/contract"
)

const (
	// DefaultNodeEndpoint 默认节点端点
	DefaultNodeEndpoint = "http://localhost:8545"
	// DefaultTimeout 默认超时时间
	DefaultTimeout = 30 * time.Second
	// TransactionConfirmInterval 交易确认轮询间隔
	TransactionConfirmInterval = 500 * time.Millisecond
)

// TestConfig 测试配置
type TestConfig struct {
	NodeEndpoint    string
	ContractAddress string
	Timeout         time.Duration
}

// DefaultTestConfig 返回默认测试配置
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		NodeEndpoint:    DefaultNodeEndpoint,
		ContractAddress: contract.DefaultAddress,
		Timeout:         DefaultTimeout,
	}
}

// SetupTestClient 连接节点；节点未响应 eth_chainId 时跳过测试
func SetupTestClient(t *testing.T, cfg *TestConfig) client.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if cfg == nil {
		cfg = DefaultTestConfig()
	}

	clientCfg := client.DefaultConfig()
	clientCfg.Endpoint = cfg.NodeEndpoint
	clientCfg.Timeout = int(cfg.Timeout.Seconds())
	clientCfg.Retry = client.NoRetryConfig()

	c, err := client.NewClient(clientCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Call(ctx, "eth_chainId", []interface{}{}); err != nil {
		t.Skipf("node not running at %s: %v", cfg.NodeEndpoint, err)
	}
	return c
}

// SetupSDK 以节点托管账户组装 SDK；合约未部署时跳过测试
func SetupSDK(t *testing.T, cfg *TestConfig) *services.SDK {
	t.Helper()
	if cfg == nil {
		cfg = DefaultTestConfig()
	}
	c := SetupTestClient(t, cfg)
	ensureContractDeployed(t, c, cfg.ContractAddress)

	svcCfg := services.DefaultConfig()
	svcCfg.ContractAddress = cfg.ContractAddress
	svcCfg.PollInterval = TransactionConfirmInterval

	sdk, err := services.New(provider.NewRPCProvider(c, nil), svcCfg)
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	return sdk
}

func ensureContractDeployed(t *testing.T, c client.Client, address string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := c.Call(ctx, "eth_getCode", []interface{}{common.HexToAddress(address).Hex(), "latest"})
	require.NoError(t, err)

	var code string
	require.NoError(t, json.Unmarshal(raw, &code))
	if code == "" || code == "0x" {
		t.Skipf("CollectionAggregator not deployed at %s", address)
	}
}
