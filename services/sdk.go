package services

import (
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services/collection"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/registry"
	"github.com/weisyn/collection-sdk-go/services/session"
	"github.com/weisyn/collection-sdk-go/services/transaction"
)

// SDK 按依赖顺序组装的业务服务
type SDK struct {
	Ref          *contract.Ref
	Session      session.Service
	Transactions transaction.Service
	Registry     registry.Service
	Collections  collection.Service
}

// New 以给定 Provider 组装全部服务；p 为 nil 表示没有钱包 Provider
func New(p provider.Provider, cfg *Config) (*SDK, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ref, err := cfg.ContractRef()
	if err != nil {
		return nil, err
	}

	sess := session.NewService(p, cfg.Logger)
	exec := transaction.NewService(sess, cfg.transactionConfig())
	reg := registry.NewService(p, &registry.Config{
		Concurrency: registry.DefaultConfig().Concurrency,
		Logger:      cfg.Logger,
	})

	collections, err := collection.NewService(sess, exec, reg, &collection.Config{
		Ref:             ref,
		Logger:          cfg.Logger,
		Notifier:        cfg.Notifier,
		Metrics:         cfg.Metrics,
		CrossCheckEvent: cfg.CrossCheckEvent,
	})
	if err != nil {
		exec.Close()
		return nil, err
	}

	return &SDK{
		Ref:          ref,
		Session:      sess,
		Transactions: exec,
		Registry:     reg,
		Collections:  collections,
	}, nil
}

// Close 结束会话，停止所有确认跟踪
func (s *SDK) Close() {
	s.Transactions.Close()
}
