// Package provider 定义 EIP-1193 风格的钱包 Provider 抽象
//
// 所有与合约、账户相关的读写都通过 Provider.Request 完成：
//   - NewRPCProvider：直接转发到节点（节点托管账户）
//   - NewWalletProvider：模拟注入式浏览器钱包，使用本地私钥签名
//   - Eth：在任意 Provider 之上的类型化辅助方法
package provider

import (
	"context"
	"encoding/json"

	"github.com/weisyn/collection-sdk-go/client"
)

// RequestArguments EIP-1193 request 参数
type RequestArguments struct {
	Method string
	Params interface{}
}

// Provider 钱包提供者
type Provider interface {
	// Request 发起请求，返回原始 JSON 结果
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
}

// IsUserRejected 判断错误是否为用户拒绝（EIP-1193 错误码 4001）
func IsUserRejected(err error) bool {
	code, ok := client.RPCErrorCode(err)
	return ok && code == client.RPCCodeUserRejected
}

// IsUnauthorized 判断错误是否为未授权（EIP-1193 错误码 4100）
func IsUnauthorized(err error) bool {
	code, ok := client.RPCErrorCode(err)
	return ok && code == client.RPCCodeUnauthorized
}

// errUserRejected 构造用户拒绝错误
func errUserRejected() error {
	return client.NewRPCError(client.RPCCodeUserRejected, "User rejected the request.", nil)
}

// errUnauthorized 构造未授权错误
func errUnauthorized(msg string) error {
	return client.NewRPCError(client.RPCCodeUnauthorized, msg, nil)
}
