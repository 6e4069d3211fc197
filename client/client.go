package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Client 以太坊 JSON-RPC 客户端接口
type Client interface {
	// Call 调用 JSON-RPC 方法，返回原始 result
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// SendRawTransaction 广播已签名的原始交易，返回交易哈希
	SendRawTransaction(ctx context.Context, signedTxHex string) (common.Hash, error)

	// Subscribe 订阅合约日志（仅 WebSocket 支持）
	Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error)

	// Close 关闭连接
	Close() error
}

// EventFilter 日志过滤器（对应 eth_subscribe "logs" 参数）
type EventFilter struct {
	Addresses []string   // 合约地址（0x 前缀）
	Topics    [][]string // 按位置的 topic 过滤，内层为 OR
}

// Event 订阅推送
type Event struct {
	Subscription string
	Data         json.RawMessage // 原始日志对象
}

// NewClient 创建新的客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP, "":
		return NewHTTPClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}

// filterParams 将 EventFilter 转换为 eth_subscribe 的过滤参数
func filterParams(filter *EventFilter) map[string]interface{} {
	params := map[string]interface{}{}
	if filter == nil {
		return params
	}
	if len(filter.Addresses) == 1 {
		params["address"] = filter.Addresses[0]
	} else if len(filter.Addresses) > 1 {
		params["address"] = filter.Addresses
	}
	if len(filter.Topics) > 0 {
		topics := make([]interface{}, len(filter.Topics))
		for i, position := range filter.Topics {
			switch len(position) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = position[0]
			default:
				topics[i] = position
			}
		}
		params["topics"] = topics
	}
	return params
}

// sendRawTransaction 通过 Call 调用 eth_sendRawTransaction
//
// 节点拒绝时原样返回 RPC 错误，调用方据此区分 nonce、余额等失败原因。
func sendRawTransaction(ctx context.Context, c Client, signedTxHex string) (common.Hash, error) {
	raw, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{signedTxHex})
	if err != nil {
		return common.Hash{}, err
	}

	var txHash common.Hash
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return common.Hash{}, fmt.Errorf("invalid eth_sendRawTransaction result %s: %w", raw, err)
	}
	if txHash == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction returned an empty hash")
	}
	return txHash, nil
}
