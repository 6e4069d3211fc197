// Package contract 封装 CollectionAggregator 合约的 ABI 编解码与调用
package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/types"
	"github.com/weisyn/collection-sdk-go/utils"
)

// Ref 合约引用：地址 + 接口描述，创建后不可变
type Ref struct {
	Address common.Address
	ABI     abi.ABI
}

// NewRef 创建合约引用
func NewRef(address string, contractABI abi.ABI) (*Ref, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return nil, types.NewError(types.KindInvalidAddress, "contract address", err)
	}
	return &Ref{Address: addr, ABI: contractABI}, nil
}

// NewDefaultRef 使用内置 ABI 创建合约引用；address 为空时使用 DefaultAddress
func NewDefaultRef(address string) (*Ref, error) {
	if address == "" {
		address = DefaultAddress
	}
	parsed, err := DefaultABI()
	if err != nil {
		return nil, err
	}
	return NewRef(address, parsed)
}

// Pack 编码方法调用数据
func (r *Ref) Pack(method string, args ...interface{}) ([]byte, error) {
	if _, ok := r.ABI.Methods[method]; !ok {
		return nil, fmt.Errorf("method %q not found in contract ABI", method)
	}
	data, err := r.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// ErrUnexpectedOutput 合约返回数据或日志无法按 ABI 解码
var ErrUnexpectedOutput = errors.New("unexpected contract output")

// Unpack 解码方法返回值
func (r *Ref) Unpack(method string, data []byte) ([]interface{}, error) {
	out, err := r.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrUnexpectedOutput, method, err)
	}
	return out, nil
}

// UnpackLog 解码本合约发出的事件日志
//
// 日志地址或 topic0 不匹配时返回 ok=false。
func (r *Ref) UnpackLog(event string, log *ethtypes.Log) (fields map[string]interface{}, ok bool, err error) {
	ev, exists := r.ABI.Events[event]
	if !exists {
		return nil, false, fmt.Errorf("event %q not found in contract ABI", event)
	}
	if log == nil || log.Address != r.Address || len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return nil, false, nil
	}

	fields = make(map[string]interface{})
	if err := ev.Inputs.UnpackIntoMap(fields, log.Data); err != nil {
		return nil, true, fmt.Errorf("%w: unpack %s log: %v", ErrUnexpectedOutput, event, err)
	}
	return fields, true, nil
}

// Service Contract 业务服务接口
type Service interface {
	// CallContract 调用合约方法（写操作，经钱包签名）
	CallContract(ctx context.Context, req *CallContractRequest) (*CallContractResult, error)

	// QueryContract 查询合约方法（只读操作）
	QueryContract(ctx context.Context, req *QueryContractRequest) ([]interface{}, error)
}

// contractService Contract 服务实现
type contractService struct {
	eth *provider.Eth
}

// NewService 创建 Contract 服务
func NewService(p provider.Provider) Service {
	return &contractService{eth: provider.NewEth(p)}
}

// CallContractRequest 合约调用请求
type CallContractRequest struct {
	Ref    *Ref
	From   common.Address
	Method string
	Args   []interface{}
	// Gas 为 0 时通过 eth_estimateGas 估算
	Gas uint64
}

// CallContractResult 合约调用结果
type CallContractResult struct {
	TxHash common.Hash
	Gas    uint64
}

// QueryContractRequest 合约查询请求（只读）
type QueryContractRequest struct {
	Ref    *Ref
	Method string
	Args   []interface{}
}

// CallContract 调用合约方法
//
// 错误分类：用户拒绝 → UserRejected；编码或发送失败 → TransactionFailed。
func (s *contractService) CallContract(ctx context.Context, req *CallContractRequest) (*CallContractResult, error) {
	// 1. 参数验证
	if req == nil || req.Ref == nil {
		return nil, types.Errorf(types.KindTransactionFailed, "contract reference is required")
	}
	if req.Method == "" {
		return nil, types.Errorf(types.KindTransactionFailed, "method name is required")
	}

	// 2. 编码调用数据
	data, err := req.Ref.Pack(req.Method, req.Args...)
	if err != nil {
		return nil, types.NewError(types.KindTransactionFailed, "encode call", err)
	}

	from := req.From
	to := req.Ref.Address
	args := provider.TransactionArgs{
		From: &from,
		To:   &to,
		Data: data,
	}

	// 3. 确定 gas
	gas := req.Gas
	if gas == 0 {
		gas, err = s.eth.EstimateGas(ctx, args)
		if err != nil {
			return nil, classifySendError("estimate gas", err)
		}
	}
	g := hexutil.Uint64(gas)
	args.Gas = &g

	// 4. 请求钱包签名并发送
	hash, err := s.eth.SendTransaction(ctx, args)
	if err != nil {
		return nil, classifySendError("send transaction", err)
	}

	return &CallContractResult{TxHash: hash, Gas: gas}, nil
}

// QueryContract 查询合约方法（只读）
func (s *contractService) QueryContract(ctx context.Context, req *QueryContractRequest) ([]interface{}, error) {
	// 1. 参数验证
	if req == nil || req.Ref == nil {
		return nil, fmt.Errorf("contract reference is required")
	}

	// 2. 编码调用数据
	data, err := req.Ref.Pack(req.Method, req.Args...)
	if err != nil {
		return nil, err
	}

	// 3. eth_call
	to := req.Ref.Address
	out, err := s.eth.Call(ctx, provider.TransactionArgs{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", req.Method, err)
	}

	// 4. 解码返回值
	return req.Ref.Unpack(req.Method, out)
}

func classifySendError(step string, err error) error {
	if provider.IsUserRejected(err) {
		return types.NewError(types.KindUserRejected, step, err)
	}
	return types.NewError(types.KindTransactionFailed, step, err)
}
