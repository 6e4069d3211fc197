package transaction

import (
	"time"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/contract"
)

// Config 交易执行配置
type Config struct {
	// PollInterval 回执轮询间隔
	PollInterval time.Duration

	// GasLimits 按方法名固定的 gas 上限；未列出的方法通过 eth_estimateGas 估算
	GasLimits map[string]uint64

	// Logger 日志器（可选）
	Logger client.Logger

	// Metrics 指标（可选）
	Metrics *metrics.Metrics
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 2 * time.Second,
		GasLimits: map[string]uint64{
			contract.MethodCreateCollection: 3_000_000,
			contract.MethodMint:             150_000,
		},
	}
}
