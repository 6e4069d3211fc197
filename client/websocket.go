package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

// websocketClient WebSocket 客户端实现
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closed   int32
	nextID   uint64
	timeout  time.Duration
	logger   Logger
	debug    bool

	requests map[uint64]*pendingCall
	muReq    sync.Mutex

	subs  map[string]*subscription
	muSub sync.Mutex
}

// wsMessage WebSocket 上收到的消息：请求响应或订阅推送
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// pendingCall 等待响应的请求；sub 非空时响应到达即登记订阅
type pendingCall struct {
	ch  chan *wsMessage
	sub *subscription
}

// subscription 单个订阅；in 从不关闭，done 关闭后停止转发
type subscription struct {
	id       string
	in       chan *Event
	done     chan struct{}
	doneOnce sync.Once
}

func (s *subscription) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := normalizeWebSocketEndpoint(config.Endpoint)

	tlsCfg, err := buildTLSConfig(config.TLS)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsCfg,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial websocket: %w", err))
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		timeout:  timeout,
		logger:   config.Logger,
		debug:    config.Debug,
		requests: make(map[uint64]*pendingCall),
		subs:     make(map[string]*subscription),
	}

	go client.readLoop()

	return client, nil
}

// normalizeWebSocketEndpoint 将 http(s):// 转换为 ws(s)://
func normalizeWebSocketEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return endpoint
	default:
		return "ws://" + endpoint
	}
}

// readLoop 消息读取循环
func (c *websocketClient) readLoop() {
	defer func() {
		atomic.StoreInt32(&c.closed, 1)

		c.muReq.Lock()
		for id, pending := range c.requests {
			close(pending.ch)
			delete(c.requests, id)
		}
		c.muReq.Unlock()

		c.muSub.Lock()
		for id, sub := range c.subs {
			sub.stop()
			delete(c.subs, id)
		}
		c.muSub.Unlock()
	}()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if atomic.LoadInt32(&c.closed) == 0 && c.logger != nil {
				c.logger.Warn("websocket read failed", "endpoint", c.endpoint, "error", err)
			}
			return
		}

		if msg.Method == "eth_subscription" && msg.Params != nil {
			c.dispatch(msg.Params.Subscription, msg.Params.Result)
			continue
		}

		if msg.ID == nil {
			continue
		}

		c.muReq.Lock()
		pending, exists := c.requests[*msg.ID]
		if exists {
			delete(c.requests, *msg.ID)
		}
		c.muReq.Unlock()

		if !exists {
			continue
		}
		// 先登记订阅，再继续读取，避免紧随其后的推送丢失
		if pending.sub != nil && msg.Error == nil {
			if err := json.Unmarshal(msg.Result, &pending.sub.id); err == nil && pending.sub.id != "" {
				c.muSub.Lock()
				c.subs[pending.sub.id] = pending.sub
				c.muSub.Unlock()
			}
		}
		pending.ch <- &msg
	}
}

// dispatch 将订阅推送转发给订阅者
func (c *websocketClient) dispatch(id string, data json.RawMessage) {
	c.muSub.Lock()
	sub, ok := c.subs[id]
	c.muSub.Unlock()
	if !ok {
		return
	}

	select {
	case sub.in <- &Event{Subscription: id, Data: data}:
	case <-sub.done:
	}
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, method, params, nil)
}

func (c *websocketClient) call(ctx context.Context, method string, params interface{}, sub *subscription) (json.RawMessage, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, &Error{Code: ErrCodeClosed, Message: "websocket client is closed"}
	}
	if params == nil {
		params = []interface{}{}
	}

	reqID := atomic.AddUint64(&c.nextID, 1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      reqID,
	}

	// 缓冲为 1，readLoop 投递时不会阻塞
	respCh := make(chan *wsMessage, 1)
	c.muReq.Lock()
	c.requests[reqID] = &pendingCall{ch: respCh, sub: sub}
	c.muReq.Unlock()

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC request", "method", method, "id", reqID)
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(reqID)
		return nil, NewNetworkError(fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok || resp == nil {
			return nil, &Error{Code: ErrCodeClosed, Message: "connection closed before response"}
		}
		if resp.Error != nil {
			return nil, NewRPCError(resp.Error.Code, resp.Error.Message, resp.Error.Data)
		}
		return resp.Result, nil

	case <-ctx.Done():
		c.forget(reqID)
		return nil, ctx.Err()

	case <-timer.C:
		c.forget(reqID)
		return nil, NewTimeoutError()
	}
}

func (c *websocketClient) forget(reqID uint64) {
	c.muReq.Lock()
	delete(c.requests, reqID)
	c.muReq.Unlock()
}

// SendRawTransaction 发送已签名的原始交易
func (c *websocketClient) SendRawTransaction(ctx context.Context, signedTxHex string) (common.Hash, error) {
	return sendRawTransaction(ctx, c, signedTxHex)
}

// Subscribe 订阅合约日志
//
// ctx 取消时退订并关闭返回的通道；连接断开时通道同样关闭。
func (c *websocketClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	sub := &subscription{
		in:   make(chan *Event, 100),
		done: make(chan struct{}),
	}

	if _, err := c.call(ctx, "eth_subscribe", []interface{}{"logs", filterParams(filter)}, sub); err != nil {
		c.muSub.Lock()
		for id, registered := range c.subs {
			if registered == sub {
				delete(c.subs, id)
			}
		}
		c.muSub.Unlock()
		sub.stop()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}
	if sub.id == "" {
		return nil, NewInvalidResponseError("missing subscription ID")
	}

	out := make(chan *Event, 100)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-sub.in:
				select {
				case out <- ev:
				case <-ctx.Done():
					c.unsubscribe(sub)
					return
				}
			case <-ctx.Done():
				c.unsubscribe(sub)
				return
			case <-sub.done:
				return
			}
		}
	}()

	return out, nil
}

// unsubscribe 停止转发并通知节点退订
func (c *websocketClient) unsubscribe(sub *subscription) {
	c.muSub.Lock()
	delete(c.subs, sub.id)
	c.muSub.Unlock()
	sub.stop()

	if atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Call(ctx, "eth_unsubscribe", []interface{}{sub.id}); err != nil && c.logger != nil {
		c.logger.Warn("eth_unsubscribe failed", "subscription", sub.id, "error", err)
	}
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}
