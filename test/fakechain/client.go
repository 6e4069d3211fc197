package fakechain

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
)

// Client 返回同一条链的 client.Client 视图（支持 Subscribe）
func (c *Chain) Client() client.Client {
	return &chainClient{chain: c}
}

type chainClient struct {
	chain *Chain
}

func (cc *chainClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return cc.chain.Request(ctx, provider.RequestArguments{Method: method, Params: params})
}

func (cc *chainClient) SendRawTransaction(ctx context.Context, signedTxHex string) (common.Hash, error) {
	return common.Hash{}, client.NewNotSupportedError("raw transactions on fakechain")
}

func (cc *chainClient) Subscribe(ctx context.Context, filter *client.EventFilter) (<-chan *client.Event, error) {
	sub := &subscriber{ctx: ctx, filter: filter, ch: make(chan *client.Event, 64)}

	cc.chain.mu.Lock()
	cc.chain.subs = append(cc.chain.subs, sub)
	cc.chain.mu.Unlock()

	go func() {
		<-ctx.Done()
		cc.chain.mu.Lock()
		for i, s := range cc.chain.subs {
			if s == sub {
				cc.chain.subs = append(cc.chain.subs[:i], cc.chain.subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
		cc.chain.mu.Unlock()
	}()

	return sub.ch, nil
}

func (cc *chainClient) Close() error { return nil }

// publish 向订阅者推送日志，调用方不得持有 c.mu
//
// 订阅通道在持有 c.mu 时关闭，发送期间同样持锁。
func (c *Chain) publish(subs []*subscriber, logs []*types.Log) {
	if len(logs) == 0 || len(subs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		for _, l := range logs {
			if !matches(sub.filter, l) {
				continue
			}
			data, err := json.Marshal(l)
			if err != nil {
				continue
			}
			select {
			case sub.ch <- &client.Event{Subscription: "0xfake", Data: data}:
			default:
			}
		}
	}
}

func matches(filter *client.EventFilter, l *types.Log) bool {
	if filter == nil {
		return true
	}
	if len(filter.Addresses) > 0 {
		found := false
		for _, a := range filter.Addresses {
			if strings.EqualFold(a, l.Address.Hex()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, position := range filter.Topics {
		if len(position) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, topic := range position {
			if strings.EqualFold(topic, l.Topics[i].Hex()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
