// Package session 管理钱包连接会话：是否存在 Provider，以及当前连接的账户
package session

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/types"
	"github.com/weisyn/collection-sdk-go/utils"
)

// State 会话状态快照
type State struct {
	ProviderAvailable bool
	// Account 为 nil 表示未连接
	Account *common.Address
}

// Connected 是否已连接账户
func (s State) Connected() bool {
	return s.Account != nil
}

// Service 钱包会话服务接口
type Service interface {
	// QueryExistingAuthorization 查询已授权账户，不会弹出授权
	QueryExistingAuthorization(ctx context.Context) (common.Address, bool)

	// RequestConnection 请求用户授权连接账户
	RequestConnection(ctx context.Context) (common.Address, error)

	// AccountsChanged Provider 推送的账户变更通知
	AccountsChanged(accounts []common.Address)

	// Signer 返回当前签名账户
	Signer() (common.Address, error)

	// State 返回会话快照
	State() State

	// Provider 返回底层 Provider（可能为 nil）
	Provider() provider.Provider
}

// sessionService 会话服务实现
type sessionService struct {
	provider provider.Provider
	eth      *provider.Eth
	logger   client.Logger

	mu      sync.RWMutex
	account *common.Address
}

// NewService 创建会话服务
//
// p 为 nil 表示运行环境中没有钱包 Provider。
func NewService(p provider.Provider, logger client.Logger) Service {
	s := &sessionService{
		provider: p,
		logger:   logger,
	}
	if p != nil {
		s.eth = provider.NewEth(p)
	}
	return s
}

// QueryExistingAuthorization 查询已授权账户
//
// 没有 Provider、请求失败或列表为空时返回 false，从不报错。
func (s *sessionService) QueryExistingAuthorization(ctx context.Context) (common.Address, bool) {
	if s.eth == nil {
		s.debug("wallet provider not found")
		return common.Address{}, false
	}

	accounts, err := s.eth.Accounts(ctx)
	if err != nil {
		s.debug("eth_accounts failed", "error", err)
		return common.Address{}, false
	}
	if len(accounts) == 0 {
		s.debug("no authorized account found")
		return common.Address{}, false
	}

	account := accounts[0]
	s.setAccount(&account)
	s.debug("found authorized account", "account", account.Hex())
	return account, true
}

// RequestConnection 请求连接账户；失败时会话保持不变
func (s *sessionService) RequestConnection(ctx context.Context) (common.Address, error) {
	if s.eth == nil {
		return common.Address{}, types.ErrProviderUnavailable
	}

	accounts, err := s.eth.RequestAccounts(ctx)
	if err != nil {
		if provider.IsUserRejected(err) {
			return common.Address{}, types.NewError(types.KindUserRejected, "connect account", err)
		}
		return common.Address{}, types.NewError(types.KindProviderUnavailable, "connect account", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, types.NewError(types.KindUserRejected, "connect account", nil)
	}

	account := accounts[0]
	s.setAccount(&account)
	if s.logger != nil {
		s.logger.Info("account connected", "account", utils.ShortAddress(account))
	}
	return account, nil
}

// AccountsChanged 处理账户变更通知；空列表表示断开
func (s *sessionService) AccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		s.setAccount(nil)
		s.debug("account disconnected")
		return
	}
	account := accounts[0]
	s.setAccount(&account)
	s.debug("account changed", "account", account.Hex())
}

// Signer 返回当前签名账户
func (s *sessionService) Signer() (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return common.Address{}, types.ErrNoSigner
	}
	return *s.account, nil
}

// State 返回会话快照
func (s *sessionService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{ProviderAvailable: s.provider != nil}
	if s.account != nil {
		account := *s.account
		st.Account = &account
	}
	return st
}

// Provider 返回底层 Provider
func (s *sessionService) Provider() provider.Provider {
	return s.provider
}

func (s *sessionService) setAccount(account *common.Address) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

func (s *sessionService) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
