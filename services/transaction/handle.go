package transaction

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status 交易状态
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle 已提交交易的句柄
//
// 状态只会从 Pending 转换一次到 Confirmed 或 Failed。
type Handle struct {
	TxHash common.Hash
	Method string

	done chan struct{}
	once sync.Once

	mu      sync.RWMutex
	status  Status
	receipt *types.Receipt
	err     error
}

func newHandle(hash common.Hash, method string) *Handle {
	return &Handle{
		TxHash: hash,
		Method: method,
		done:   make(chan struct{}),
		status: StatusPending,
	}
}

// Status 当前状态
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Done 进入终态时关闭
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Await 等待交易进入终态
//
// ctx 取消只放弃本次等待，不影响后台确认；重复调用返回同一结果。
func (h *Handle) Await(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-h.done:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.receipt, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) finish(status Status, receipt *types.Receipt, err error) bool {
	finished := false
	h.once.Do(func() {
		finished = true
		h.mu.Lock()
		h.status = status
		h.receipt = receipt
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
	return finished
}
