package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Eth 在 Provider 之上提供类型化的以太坊方法
type Eth struct {
	p Provider
}

// NewEth 创建 Eth 辅助器
func NewEth(p Provider) *Eth {
	return &Eth{p: p}
}

// Provider 返回底层 Provider
func (e *Eth) Provider() Provider {
	return e.p
}

func (e *Eth) request(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	raw, err := e.p.Request(ctx, RequestArguments{Method: method, Params: params})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Accounts 查询已授权账户，不会弹出授权
func (e *Eth) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := e.request(ctx, "eth_accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// RequestAccounts 请求账户授权
func (e *Eth) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := e.request(ctx, "eth_requestAccounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChainID 查询链 ID
func (e *Eth) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := e.request(ctx, "eth_chainId", &id); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

// BlockNumber 查询最新区块高度
func (e *Eth) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := e.request(ctx, "eth_blockNumber", &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// GasPrice 查询建议 gas 价格
func (e *Eth) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := e.request(ctx, "eth_gasPrice", &price); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// PendingNonce 查询账户 pending nonce
func (e *Eth) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := e.request(ctx, "eth_getTransactionCount", &nonce, account, "pending"); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

// EstimateGas 估算 gas
func (e *Eth) EstimateGas(ctx context.Context, args TransactionArgs) (uint64, error) {
	var gas hexutil.Uint64
	if err := e.request(ctx, "eth_estimateGas", &gas, args); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// Call 在最新区块上执行只读调用
func (e *Eth) Call(ctx context.Context, args TransactionArgs) ([]byte, error) {
	var out hexutil.Bytes
	if err := e.request(ctx, "eth_call", &out, args, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction 请求钱包签名并广播交易
func (e *Eth) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	var hash common.Hash
	if err := e.request(ctx, "eth_sendTransaction", &hash, args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// TransactionReceipt 查询交易回执；尚未打包时返回 (nil, nil)
func (e *Eth) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	raw, err := e.p.Request(ctx, RequestArguments{Method: "eth_getTransactionReceipt", Params: []interface{}{hash}})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode eth_getTransactionReceipt result: %w", err)
	}
	return &receipt, nil
}
