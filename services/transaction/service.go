// Package transaction 提交合约交易并跟踪其确认状态
package transaction

import (
	"context"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/session"
	"github.com/weisyn/collection-sdk-go/types"
)

// Service 交易执行服务接口
type Service interface {
	// Submit 以当前会话账户签名并提交合约调用
	Submit(ctx context.Context, ref *contract.Ref, method string, args ...interface{}) (*Handle, error)

	// AwaitConfirmation 等待交易确认，等价于 h.Await(ctx)
	AwaitConfirmation(ctx context.Context, h *Handle) (*ethtypes.Receipt, error)

	// Close 结束会话：停止所有确认跟踪，未决交易以 TransactionFailed 结束
	Close()
}

// transactionService 交易执行服务实现
type transactionService struct {
	session   session.Service
	contracts contract.Service
	eth       *provider.Eth
	config    *Config
	logger    client.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu 保护 closed 与 wg.Add，保证 Close 等待期间不再登记新的跟踪
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService 创建交易执行服务
func NewService(sess session.Service, cfg *Config) Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	copied := *cfg
	copied.GasLimits = make(map[string]uint64, len(cfg.GasLimits))
	for method, gas := range cfg.GasLimits {
		copied.GasLimits[method] = gas
	}
	if copied.PollInterval <= 0 {
		copied.PollInterval = DefaultConfig().PollInterval
	}
	cfg = &copied

	ctx, cancel := context.WithCancel(context.Background())
	s := &transactionService{
		session: sess,
		config:  cfg,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if p := sess.Provider(); p != nil {
		s.contracts = contract.NewService(p)
		s.eth = provider.NewEth(p)
	}
	return s
}

// Submit 提交交易
func (s *transactionService) Submit(ctx context.Context, ref *contract.Ref, method string, args ...interface{}) (*Handle, error) {
	// 1. 检查会话
	if s.isClosed() {
		return nil, types.Errorf(types.KindTransactionFailed, "session closed")
	}
	if s.contracts == nil {
		return nil, types.ErrProviderUnavailable
	}
	from, err := s.session.Signer()
	if err != nil {
		return nil, err
	}

	// 2. 发送交易
	res, err := s.contracts.CallContract(ctx, &contract.CallContractRequest{
		Ref:    ref,
		From:   from,
		Method: method,
		Args:   args,
		Gas:    s.config.GasLimits[method],
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("transaction submitted", "method", method, "hash", res.TxHash.Hex(), "gas", res.Gas)
	}

	// 3. 后台跟踪确认
	h := newHandle(res.TxHash, method)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.finish(h, StatusFailed, nil, types.Errorf(types.KindTransactionFailed, "session closed before confirmation"))
		return h, nil
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(h)
	return h, nil
}

func (s *transactionService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AwaitConfirmation 等待交易确认
func (s *transactionService) AwaitConfirmation(ctx context.Context, h *Handle) (*ethtypes.Receipt, error) {
	return h.Await(ctx)
}

// watch 轮询回执直到终态；不设超时
//
// 查询失败只记录日志并在下一轮重试，只有 Close 会放弃跟踪。
func (s *transactionService) watch(h *Handle) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.eth.TransactionReceipt(s.ctx, h.TxHash)
		switch {
		case s.ctx.Err() != nil:
			s.finish(h, StatusFailed, nil, types.NewError(types.KindTransactionFailed, "session closed before confirmation", s.ctx.Err()))
			return
		case err != nil:
			s.logWarn("receipt query failed, retrying", "hash", h.TxHash.Hex(), "error", err)
		case receipt != nil && receipt.Status == ethtypes.ReceiptStatusSuccessful:
			s.logInfo("transaction confirmed", "hash", h.TxHash.Hex(), "method", h.Method)
			s.finish(h, StatusConfirmed, receipt, nil)
			return
		case receipt != nil:
			s.logWarn("transaction reverted", "hash", h.TxHash.Hex(), "method", h.Method)
			s.finish(h, StatusFailed, receipt, types.Errorf(types.KindTransactionReverted, "%s reverted in transaction %s", h.Method, h.TxHash.Hex()))
			return
		}

		select {
		case <-s.ctx.Done():
			s.finish(h, StatusFailed, nil, types.NewError(types.KindTransactionFailed, "session closed before confirmation", s.ctx.Err()))
			return
		case <-ticker.C:
		}
	}
}

func (s *transactionService) finish(h *Handle, status Status, receipt *ethtypes.Receipt, err error) {
	if h.finish(status, receipt, err) {
		s.config.Metrics.IncTransaction(h.Method, status.String())
	}
}

// Close 停止所有确认跟踪
func (s *transactionService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *transactionService) logInfo(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *transactionService) logWarn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
