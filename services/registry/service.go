// Package registry 读取工厂合约的集合注册表
//
// 创建交易不向调用方返回新集合地址，因此在确认之后通过注册表回查：
// 读取长度 n，再读取下标 n-1 的条目。若在本次确认与回查之间有其他
// 创建交易被确认，得到的将是那笔交易的集合；调用方需接受这一前提。
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/types"
	"github.com/weisyn/collection-sdk-go/utils"
)

// Service 注册表服务接口
type Service interface {
	// ResolveLastCreated 返回注册表中最新创建的集合地址
	ResolveLastCreated(ctx context.Context, ref *contract.Ref) (common.Address, error)

	// Length 注册表长度
	Length(ctx context.Context, ref *contract.Ref) (uint64, error)

	// At 读取指定下标的集合地址
	At(ctx context.Context, ref *contract.Ref, index int64) (common.Address, error)

	// List 枚举整个注册表
	List(ctx context.Context, ref *contract.Ref) ([]common.Address, error)
}

// Config 注册表服务配置
type Config struct {
	// Concurrency List 的并发读取数量
	Concurrency int
	// Logger 日志器（可选）
	Logger client.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{Concurrency: utils.DefaultConcurrency}
}

// registryService 注册表服务实现
type registryService struct {
	contracts contract.Service
	config    *Config
}

// NewService 创建注册表服务
func NewService(p provider.Provider, cfg *Config) Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &registryService{
		contracts: contract.NewService(p),
		config:    cfg,
	}
}

// ResolveLastCreated 读取长度 n 后读取下标 n-1
func (s *registryService) ResolveLastCreated(ctx context.Context, ref *contract.Ref) (common.Address, error) {
	// 1. 读取长度
	n, err := s.Length(ctx, ref)
	if err != nil {
		return common.Address{}, err
	}
	if n == 0 {
		return common.Address{}, types.ErrRegistryEmpty
	}

	// 2. 读取最后一项
	addr, err := s.entry(ctx, ref, n-1)
	if err != nil {
		return common.Address{}, err
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug("resolved last created collection", "length", n, "collection", addr.Hex())
	}
	return addr, nil
}

// Length 读取注册表长度
func (s *registryService) Length(ctx context.Context, ref *contract.Ref) (uint64, error) {
	out, err := s.contracts.QueryContract(ctx, &contract.QueryContractRequest{
		Ref:    ref,
		Method: contract.MethodRegistryGetLength,
	})
	if err != nil {
		return 0, types.NewError(types.KindTransactionFailed, "read registry length", err)
	}
	if len(out) != 1 {
		return 0, types.Errorf(types.KindTransactionFailed, "read registry length: expected 1 value, got %d", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return 0, types.Errorf(types.KindTransactionFailed, "read registry length: unexpected value %v", out[0])
	}
	return n.Uint64(), nil
}

// At 读取指定下标；负数或越界下标返回 IndexOutOfRange
func (s *registryService) At(ctx context.Context, ref *contract.Ref, index int64) (common.Address, error) {
	if index < 0 {
		return common.Address{}, types.Errorf(types.KindIndexOutOfRange, "index %d is negative", index)
	}
	n, err := s.Length(ctx, ref)
	if err != nil {
		return common.Address{}, err
	}
	if uint64(index) >= n {
		return common.Address{}, types.Errorf(types.KindIndexOutOfRange, "index %d out of range [0, %d)", index, n)
	}
	return s.entry(ctx, ref, uint64(index))
}

// List 并发读取全部条目，结果按下标排序
func (s *registryService) List(ctx context.Context, ref *contract.Ref) ([]common.Address, error) {
	n, err := s.Length(ctx, ref)
	if err != nil {
		return nil, err
	}
	addrs, err := utils.ParallelExecute(ctx, utils.IndexRange(0, n), func(ctx context.Context, i uint64, _ int) (common.Address, error) {
		return s.entry(ctx, ref, i)
	}, s.config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	return addrs, nil
}

// entry 读取并校验单个条目
func (s *registryService) entry(ctx context.Context, ref *contract.Ref, index uint64) (common.Address, error) {
	out, err := s.contracts.QueryContract(ctx, &contract.QueryContractRequest{
		Ref:    ref,
		Method: contract.MethodRegistryGetByIndex,
		Args:   []interface{}{new(big.Int).SetUint64(index)},
	})
	if err != nil {
		if errors.Is(err, contract.ErrUnexpectedOutput) {
			return common.Address{}, types.NewError(types.KindMalformedAddress, fmt.Sprintf("registry entry %d", index), err)
		}
		return common.Address{}, types.NewError(types.KindTransactionFailed, fmt.Sprintf("read registry entry %d", index), err)
	}
	return normalizeEntry(index, out)
}

// normalizeEntry 将返回值规范化为地址
func normalizeEntry(index uint64, out []interface{}) (common.Address, error) {
	if len(out) != 1 {
		return common.Address{}, types.Errorf(types.KindMalformedAddress, "registry entry %d: expected 1 value, got %d", index, len(out))
	}

	var addr common.Address
	switch v := out[0].(type) {
	case common.Address:
		addr = v
	case string:
		parsed, err := utils.NormalizeAddress(v)
		if err != nil {
			return common.Address{}, types.NewError(types.KindMalformedAddress, fmt.Sprintf("registry entry %d", index), err)
		}
		addr = parsed
	default:
		return common.Address{}, types.Errorf(types.KindMalformedAddress, "registry entry %d: unexpected type %T", index, v)
	}

	if utils.IsZeroAddress(addr) {
		return common.Address{}, types.Errorf(types.KindMalformedAddress, "registry entry %d is the zero address", index)
	}
	return addr, nil
}

// CreatedInReceipt 从创建交易回执中提取 CollectionCreated 事件携带的集合地址
//
// 仅用于与注册表回查结果交叉核对；找不到事件时返回 false。
func CreatedInReceipt(ref *contract.Ref, receipt *ethtypes.Receipt) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	for _, l := range receipt.Logs {
		fields, ok, err := ref.UnpackLog(contract.EventCollectionCreated, l)
		if !ok || err != nil {
			continue
		}
		if addr, isAddr := fields["collectionAddress"].(common.Address); isAddr {
			return addr, true
		}
	}
	return common.Address{}, false
}
