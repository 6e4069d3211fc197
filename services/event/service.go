// Package event 订阅工厂合约事件并按类型编号入库
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/contract"
)

// Service Event 业务服务接口
type Service interface {
	// SubscribeEvents 订阅指定类型事件，入库后推送记录；ctx 结束时通道关闭
	SubscribeEvents(ctx context.Context, kind Kind) (<-chan *Record, error)

	// Index 订阅给定类型（默认全部）并持续入库，直到 ctx 结束
	Index(ctx context.Context, kinds ...Kind) error

	// Quantity 已入库的事件数量
	Quantity(kind Kind) (uint64, error)

	// GetEvent 读取第 index 条事件（从 1 开始）
	GetEvent(kind Kind, index uint64) (*Record, error)

	// Close 关闭存储
	Close() error
}

// Record 入库的事件记录
type Record struct {
	ID    string `json:"id"`
	Index uint64 `json:"index"`
	Kind  Kind   `json:"kind"`
	// Fields 按 ABI 解码的事件参数（地址与整数均为字符串形式）
	Fields     map[string]string `json:"fields,omitempty"`
	Log        *types.Log        `json:"log"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// Config Event 服务配置
type Config struct {
	// Dir badger 数据目录；为空时使用内存模式
	Dir string

	// Logger 日志器（可选）
	Logger client.Logger

	// Metrics 指标（可选）
	Metrics *metrics.Metrics
}

// eventService Event 服务实现
type eventService struct {
	client client.Client
	ref    *contract.Ref
	store  *Store
	config *Config
}

// NewService 创建 Event 服务
func NewService(cli client.Client, ref *contract.Ref, cfg *Config) (Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	store, err := OpenStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return &eventService{
		client: cli,
		ref:    ref,
		store:  store,
		config: cfg,
	}, nil
}

// SubscribeEvents 订阅事件
func (s *eventService) SubscribeEvents(ctx context.Context, kind Kind) (<-chan *Record, error) {
	// 1. 构建过滤器：合约地址 + topic0
	ev, ok := s.ref.ABI.Events[kind.EventName()]
	if !ok {
		return nil, fmt.Errorf("event %s not found in contract ABI", kind.EventName())
	}
	filter := &client.EventFilter{
		Addresses: []string{s.ref.Address.Hex()},
		Topics:    [][]string{{ev.ID.Hex()}},
	}

	// 2. 订阅
	events, err := s.client.Subscribe(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe events failed: %w", err)
	}
	s.logInfo("subscribed to contract events", "event", kind.EventName(), "contract", s.ref.Address.Hex())

	// 3. 入库并转发
	out := make(chan *Record, 16)
	go func() {
		defer close(out)
		for e := range events {
			rec, err := s.index(kind, e)
			if err != nil {
				s.logWarn("drop contract event", "event", kind.EventName(), "error", err)
				continue
			}
			if rec == nil {
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Index 持续入库
func (s *eventService) Index(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = Kinds
	}

	// 任一订阅失败时取消已建立的订阅
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make([]<-chan *Record, 0, len(kinds))
	for _, kind := range kinds {
		records, err := s.SubscribeEvents(subCtx, kind)
		if err != nil {
			return err
		}
		streams = append(streams, records)
	}

	var wg sync.WaitGroup
	for _, records := range streams {
		wg.Add(1)
		go func(records <-chan *Record) {
			defer wg.Done()
			for range records {
			}
		}(records)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("event subscription closed unexpectedly")
}

// Quantity 已入库的事件数量
func (s *eventService) Quantity(kind Kind) (uint64, error) {
	return s.store.Quantity(kind)
}

// GetEvent 读取事件
func (s *eventService) GetEvent(kind Kind, index uint64) (*Record, error) {
	return s.store.Get(kind, index)
}

// Close 关闭存储
func (s *eventService) Close() error {
	return s.store.Close()
}

// index 解析推送并入库；被回滚的日志返回 nil
func (s *eventService) index(kind Kind, e *client.Event) (*Record, error) {
	var l types.Log
	if err := json.Unmarshal(e.Data, &l); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	if l.Removed {
		s.logWarn("ignore removed log", "event", kind.EventName(), "tx", l.TxHash.Hex())
		return nil, nil
	}

	rec := &Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		Log:        &l,
		ReceivedAt: time.Now().UTC(),
	}
	fields, ok, err := s.ref.UnpackLog(kind.EventName(), &l)
	switch {
	case err != nil:
		s.logWarn("store undecodable log", "event", kind.EventName(), "error", err)
	case ok:
		rec.Fields = formatFields(fields)
	}

	index, err := s.store.Append(kind, rec)
	if err != nil {
		return nil, err
	}
	s.config.Metrics.IncEvent(kind.EventName())
	s.logInfo("contract event stored", "event", kind.EventName(), "index", index, "tx", l.TxHash.Hex())
	return rec, nil
}

// formatFields 将解码值转为字符串
func formatFields(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case common.Address:
			out[name] = val.Hex()
		case *big.Int:
			out[name] = val.String()
		case string:
			out[name] = val
		default:
			out[name] = fmt.Sprint(val)
		}
	}
	return out
}

func (s *eventService) logInfo(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

func (s *eventService) logWarn(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}
