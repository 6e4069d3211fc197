package provider

import (
	"context"
	"encoding/json"

	"github.com/weisyn/collection-sdk-go/client"
)

// rpcProvider 将请求转发给节点
type rpcProvider struct {
	client client.Client
	logger client.Logger
}

// NewRPCProvider 创建直连节点的 Provider
//
// 账户由节点托管（如开发链的解锁账户）。节点不支持 eth_requestAccounts 时
// 回退到 eth_accounts。
func NewRPCProvider(cli client.Client, logger client.Logger) Provider {
	return &rpcProvider{client: cli, logger: logger}
}

// Request 转发请求
func (p *rpcProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	result, err := p.client.Call(ctx, args.Method, args.Params)
	if err == nil || args.Method != "eth_requestAccounts" {
		return result, err
	}

	if code, ok := client.RPCErrorCode(err); ok && code == client.RPCCodeMethodNotFound {
		if p.logger != nil {
			p.logger.Debug("eth_requestAccounts not supported, falling back to eth_accounts")
		}
		return p.client.Call(ctx, "eth_accounts", nil)
	}
	return nil, err
}
