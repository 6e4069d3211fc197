package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/wallet"
)

// walletProvider 使用本地私钥的注入式钱包
type walletProvider struct {
	client  client.Client
	node    *Eth
	forward Provider
	wallet  wallet.Wallet
	approve ApproveFunc
	logger  client.Logger

	mu         sync.Mutex
	authorized bool
	// sendMu 串行化 nonce 分配与广播
	sendMu sync.Mutex
}

// NewWalletProvider 创建本地签名钱包 Provider
//
// 未授权前 eth_accounts 返回空列表；eth_requestAccounts 与 eth_sendTransaction
// 都会经过 approve 回调。approve 为 nil 时等同于 AutoApprove。
func NewWalletProvider(cli client.Client, w wallet.Wallet, approve ApproveFunc, logger client.Logger) Provider {
	if approve == nil {
		approve = AutoApprove
	}
	forward := NewRPCProvider(cli, logger)
	return &walletProvider{
		client:  cli,
		node:    NewEth(forward),
		forward: forward,
		wallet:  w,
		approve: approve,
		logger:  logger,
	}
}

// Request 处理钱包方法，其余方法转发给节点
func (p *walletProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	switch args.Method {
	case "eth_accounts":
		return json.Marshal(p.accounts())
	case "eth_requestAccounts":
		return p.requestAccounts(ctx)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, args.Params)
	default:
		return p.forward.Request(ctx, args)
	}
}

func (p *walletProvider) accounts() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []common.Address{}
	}
	return []common.Address{p.wallet.Address()}
}

func (p *walletProvider) requestAccounts(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	authorized := p.authorized
	p.mu.Unlock()

	if !authorized {
		ok, err := p.approve(ctx, ApprovalRequest{Kind: ApproveConnect, Account: p.wallet.Address()})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errUserRejected()
		}
		p.mu.Lock()
		p.authorized = true
		p.mu.Unlock()
	}
	return json.Marshal([]common.Address{p.wallet.Address()})
}

func (p *walletProvider) sendTransaction(ctx context.Context, params interface{}) (json.RawMessage, error) {
	txArgs, err := decodeTransactionArgs(params)
	if err != nil {
		return nil, client.NewRPCError(-32602, err.Error(), nil)
	}

	account := p.wallet.Address()
	if len(p.accounts()) == 0 {
		return nil, errUnauthorized("account not authorized")
	}
	if txArgs.From != nil && *txArgs.From != account {
		return nil, errUnauthorized(fmt.Sprintf("unknown account %s", txArgs.From.Hex()))
	}
	txArgs.From = &account

	ok, err := p.approve(ctx, ApprovalRequest{Kind: ApproveTransaction, Account: account, Tx: txArgs})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUserRejected()
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	// 1. 补全交易字段
	tx, chainID, err := p.fill(ctx, txArgs)
	if err != nil {
		return nil, err
	}

	// 2. 本地签名
	signed, err := p.wallet.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	// 3. 广播
	hash, err := p.client.SendRawTransaction(ctx, hexutil.Encode(raw))
	if err != nil {
		return nil, err
	}
	if p.logger != nil {
		p.logger.Debug("transaction signed and broadcast", "hash", hash.Hex(), "nonce", signed.Nonce())
	}
	return json.Marshal(hash)
}

func (p *walletProvider) fill(ctx context.Context, args *TransactionArgs) (*types.Transaction, *big.Int, error) {
	chainID, err := p.node.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("query chain id: %w", err)
	}

	var nonce uint64
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
	} else if nonce, err = p.node.PendingNonce(ctx, *args.From); err != nil {
		return nil, nil, fmt.Errorf("query nonce: %w", err)
	}

	gasPrice := (*big.Int)(args.GasPrice)
	if gasPrice == nil {
		if gasPrice, err = p.node.GasPrice(ctx); err != nil {
			return nil, nil, fmt.Errorf("query gas price: %w", err)
		}
	}

	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else if gas, err = p.node.EstimateGas(ctx, *args); err != nil {
		return nil, nil, fmt.Errorf("estimate gas: %w", err)
	}

	value := (*big.Int)(args.Value)
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       args.To,
		Gas:      gas,
		GasPrice: gasPrice,
		Value:    value,
		Data:     args.Data,
	})
	return tx, chainID, nil
}

// decodeTransactionArgs 解析 eth_sendTransaction 的第一个参数
func decodeTransactionArgs(params interface{}) (*TransactionArgs, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var list []TransactionArgs
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("invalid params: missing transaction object")
	}
	args := list[0]
	if args.To == nil && len(args.Data) == 0 {
		return nil, fmt.Errorf("invalid params: empty transaction")
	}
	return &args, nil
}
