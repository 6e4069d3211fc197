// Package fakechain 提供内存中的 CollectionAggregator 链替身
//
// Chain 同时实现 provider.Provider 与 client.Client，供单元测试驱动
// 连接、交易确认、注册表读取与事件订阅的完整流程，无需真实节点。
package fakechain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services/contract"
)

// DefaultAccount 默认用户账户
var DefaultAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// ChainID 模拟链 ID
const ChainID = 1337

// Chain 内存链
type Chain struct {
	mu sync.Mutex

	abi      abi.ABI
	contract common.Address
	account  common.Address

	// 行为开关
	authorized         bool
	rejectConnect      bool
	rejectTransactions bool
	confirmAfterPolls  int
	revertMethods      map[string]bool
	receiptErr         error
	receiptErrLeft     int
	registryCorrupt    bool
	registryZero       bool
	onConfirm          func(method string)

	nonce    uint64
	block    uint64
	registry []common.Address
	tokens   map[common.Address]uint64
	txs      map[common.Hash]*pendingTx
	order    []common.Hash
	logs     []*types.Log
	calls    map[string]int
	subs     []*subscriber
}

type pendingTx struct {
	hash      common.Hash
	from      common.Address
	method    string
	args      []interface{}
	pollsLeft int
	receipt   *types.Receipt
}

type subscriber struct {
	ctx    context.Context
	filter *client.EventFilter
	ch     chan *client.Event
}

// New 创建内存链；合约地址为 contract.DefaultAddress
func New() *Chain {
	parsed, err := contract.DefaultABI()
	if err != nil {
		panic(fmt.Sprintf("fakechain: load ABI: %v", err))
	}
	return &Chain{
		abi:           parsed,
		contract:      common.HexToAddress(contract.DefaultAddress),
		account:       DefaultAccount,
		revertMethods: map[string]bool{},
		tokens:        map[common.Address]uint64{},
		txs:           map[common.Hash]*pendingTx{},
		calls:         map[string]int{},
		block:         1,
	}
}

// ContractAddress 工厂合约地址
func (c *Chain) ContractAddress() common.Address { return c.contract }

// Account 用户账户
func (c *Chain) Account() common.Address { return c.account }

// Authorize 预先授权账户（模拟此前已连接过的站点）
func (c *Chain) Authorize() *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorized = true
	return c
}

// RejectConnect 用户拒绝连接请求
func (c *Chain) RejectConnect(reject bool) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectConnect = reject
	return c
}

// RejectTransactions 用户拒绝签名交易
func (c *Chain) RejectTransactions(reject bool) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectTransactions = reject
	return c
}

// ConfirmAfterPolls 交易在第 n+1 次查询回执时才被打包
func (c *Chain) ConfirmAfterPolls(n int) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmAfterPolls = n
	return c
}

// Revert 指定方法的交易执行失败（status 0）
func (c *Chain) Revert(method string) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertMethods[method] = true
	return c
}

// FailReceipts eth_getTransactionReceipt 持续返回错误
func (c *Chain) FailReceipts(err error) *Chain {
	return c.FailNextReceipts(-1, err)
}

// FailNextReceipts 接下来 n 次 eth_getTransactionReceipt 返回错误；n < 0 表示一直失败
func (c *Chain) FailNextReceipts(n int, err error) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptErr = err
	c.receiptErrLeft = n
	return c
}

// CorruptRegistry collectionRegistryGetByIndex 返回无法解码的数据
func (c *Chain) CorruptRegistry() *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registryCorrupt = true
	return c
}

// ZeroRegistry collectionRegistryGetByIndex 返回零地址
func (c *Chain) ZeroRegistry() *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registryZero = true
	return c
}

// OnConfirm 交易生效后、回执返回前调用（在锁外执行）
func (c *Chain) OnConfirm(fn func(method string)) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConfirm = fn
	return c
}

// CreateExternal 模拟其他账户创建集合，返回新集合地址
func (c *Chain) CreateExternal(name, symbol string) common.Address {
	c.mu.Lock()
	c.block++
	before := len(c.logs)
	other := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	addr := c.createCollectionLocked(other, common.Hash{}, name, symbol)
	events := append([]*types.Log(nil), c.logs[before:]...)
	subs := append([]*subscriber(nil), c.subs...)
	c.mu.Unlock()

	c.publish(subs, events)
	return addr
}

// Registry 注册表快照
func (c *Chain) Registry() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.registry...)
}

// Calls 某方法被请求的次数
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TransactionCount 已提交交易数量
func (c *Chain) TransactionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Minted 集合已铸造的 token 数量
func (c *Chain) Minted(collection common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[collection]
}

// Logs 已产生的合约日志
func (c *Chain) Logs() []*types.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Log(nil), c.logs...)
}

// Request 实现 provider.Provider
func (c *Chain) Request(ctx context.Context, args provider.RequestArguments) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params, err := toParams(args.Params)
	if err != nil {
		return nil, client.NewRPCError(-32602, err.Error(), nil)
	}

	c.mu.Lock()
	c.calls[args.Method]++
	c.mu.Unlock()

	switch args.Method {
	case "eth_accounts":
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.authorized {
			return json.Marshal([]common.Address{})
		}
		return json.Marshal([]common.Address{c.account})

	case "eth_requestAccounts":
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.rejectConnect {
			return nil, client.NewRPCError(client.RPCCodeUserRejected, "User rejected the request.", nil)
		}
		c.authorized = true
		return json.Marshal([]common.Address{c.account})

	case "eth_chainId":
		return json.Marshal(hexutil.Uint64(ChainID))

	case "eth_blockNumber":
		c.mu.Lock()
		defer c.mu.Unlock()
		return json.Marshal(hexutil.Uint64(c.block))

	case "eth_gasPrice":
		return json.Marshal((*hexutil.Big)(big.NewInt(1_000_000_000)))

	case "eth_getTransactionCount":
		c.mu.Lock()
		defer c.mu.Unlock()
		return json.Marshal(hexutil.Uint64(c.nonce))

	case "eth_estimateGas":
		return json.Marshal(hexutil.Uint64(100_000))

	case "eth_sendTransaction":
		return c.sendTransaction(params)

	case "eth_getTransactionReceipt":
		return c.transactionReceipt(params)

	case "eth_call":
		return c.call(params)

	default:
		return nil, client.NewRPCError(client.RPCCodeMethodNotFound, fmt.Sprintf("the method %s does not exist/is not available", args.Method), nil)
	}
}

func (c *Chain) sendTransaction(params []json.RawMessage) (json.RawMessage, error) {
	var txArgs provider.TransactionArgs
	if len(params) == 0 || json.Unmarshal(params[0], &txArgs) != nil {
		return nil, client.NewRPCError(-32602, "invalid transaction object", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authorized {
		return nil, client.NewRPCError(client.RPCCodeUnauthorized, "account not authorized", nil)
	}
	if txArgs.From == nil || *txArgs.From != c.account {
		return nil, client.NewRPCError(client.RPCCodeUnauthorized, "unknown account", nil)
	}
	if c.rejectTransactions {
		return nil, client.NewRPCError(client.RPCCodeUserRejected, "User denied transaction signature.", nil)
	}
	if txArgs.To == nil || *txArgs.To != c.contract {
		return nil, client.NewRPCError(-32000, "unknown contract", nil)
	}

	method, args, err := c.decodeCall(txArgs.Data)
	if err != nil {
		return nil, client.NewRPCError(-32000, err.Error(), nil)
	}

	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, c.nonce)
	hash := crypto.Keccak256Hash(c.account.Bytes(), nonce)
	c.nonce++

	c.txs[hash] = &pendingTx{
		hash:      hash,
		from:      *txArgs.From,
		method:    method,
		args:      args,
		pollsLeft: c.confirmAfterPolls,
	}
	c.order = append(c.order, hash)
	return json.Marshal(hash)
}

func (c *Chain) transactionReceipt(params []json.RawMessage) (json.RawMessage, error) {
	var hash common.Hash
	if len(params) == 0 || json.Unmarshal(params[0], &hash) != nil {
		return nil, client.NewRPCError(-32602, "invalid transaction hash", nil)
	}

	c.mu.Lock()
	if c.receiptErr != nil && c.receiptErrLeft != 0 {
		err := c.receiptErr
		if c.receiptErrLeft > 0 {
			c.receiptErrLeft--
		}
		c.mu.Unlock()
		return nil, err
	}
	tx, ok := c.txs[hash]
	if !ok {
		c.mu.Unlock()
		return json.Marshal(nil)
	}
	if tx.receipt == nil && tx.pollsLeft > 0 {
		tx.pollsLeft--
		c.mu.Unlock()
		return json.Marshal(nil)
	}

	justConfirmed := tx.receipt == nil
	var events []*types.Log
	if justConfirmed {
		events = c.executeLocked(tx)
	}
	receipt := tx.receipt
	hook := c.onConfirm
	subs := append([]*subscriber(nil), c.subs...)
	c.mu.Unlock()

	if justConfirmed {
		if hook != nil {
			hook(tx.method)
		}
		c.publish(subs, events)
	}
	return json.Marshal(receipt)
}

// executeLocked 执行交易并生成回执
func (c *Chain) executeLocked(tx *pendingTx) []*types.Log {
	c.block++
	receipt := &types.Receipt{
		Type:              types.LegacyTxType,
		TxHash:            tx.hash,
		BlockHash:         crypto.Keccak256Hash(tx.hash.Bytes()),
		BlockNumber:       new(big.Int).SetUint64(c.block),
		GasUsed:           21_000,
		CumulativeGasUsed: 21_000,
		Logs:              []*types.Log{},
	}
	tx.receipt = receipt

	if c.revertMethods[tx.method] {
		receipt.Status = types.ReceiptStatusFailed
		return nil
	}
	receipt.Status = types.ReceiptStatusSuccessful

	before := len(c.logs)
	switch tx.method {
	case contract.MethodCreateCollection:
		c.createCollectionLocked(tx.from, tx.hash, tx.args[0].(string), tx.args[1].(string))
	case contract.MethodMint:
		collection := tx.args[0].(common.Address)
		recipient := tx.args[1].(common.Address)
		c.tokens[collection]++
		c.appendLogLocked(tx.hash, contract.EventTokenMinted,
			collection, recipient, new(big.Int).SetUint64(c.tokens[collection]), tx.args[2].(string))
	}
	receipt.Logs = append(receipt.Logs, c.logs[before:]...)
	return receipt.Logs
}

func (c *Chain) createCollectionLocked(creator common.Address, txHash common.Hash, name, symbol string) common.Address {
	addr := crypto.CreateAddress(c.contract, uint64(len(c.registry)+1))
	c.registry = append(c.registry, addr)
	c.appendLogLocked(txHash, contract.EventCollectionCreated, addr, name, symbol)
	return addr
}

func (c *Chain) appendLogLocked(txHash common.Hash, event string, args ...interface{}) {
	ev := c.abi.Events[event]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		panic(fmt.Sprintf("fakechain: pack %s: %v", event, err))
	}
	c.logs = append(c.logs, &types.Log{
		Address:     c.contract,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: c.block,
		TxHash:      txHash,
		Index:       uint(len(c.logs)),
	})
}

func (c *Chain) call(params []json.RawMessage) (json.RawMessage, error) {
	var txArgs provider.TransactionArgs
	if len(params) == 0 || json.Unmarshal(params[0], &txArgs) != nil {
		return nil, client.NewRPCError(-32602, "invalid call object", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if txArgs.To == nil || *txArgs.To != c.contract {
		return json.Marshal(hexutil.Bytes{})
	}
	method, args, err := c.decodeCall(txArgs.Data)
	if err != nil {
		return nil, client.NewRPCError(-32000, err.Error(), nil)
	}

	var out []byte
	switch method {
	case contract.MethodRegistryGetLength:
		out, err = c.abi.Methods[method].Outputs.Pack(big.NewInt(int64(len(c.registry))))
	case contract.MethodRegistryGetByIndex:
		index := args[0].(*big.Int)
		if !index.IsUint64() || index.Uint64() >= uint64(len(c.registry)) {
			return nil, client.NewRPCError(3, "execution reverted", nil)
		}
		switch {
		case c.registryCorrupt:
			out = []byte{0x01, 0x02}
		case c.registryZero:
			out, err = c.abi.Methods[method].Outputs.Pack(common.Address{})
		default:
			out, err = c.abi.Methods[method].Outputs.Pack(c.registry[index.Uint64()])
		}
	default:
		return nil, client.NewRPCError(-32000, fmt.Sprintf("%s is not a view method", method), nil)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(out))
}

func (c *Chain) decodeCall(data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("missing method selector")
	}
	m, err := c.abi.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("decode %s arguments: %w", m.Name, err)
	}
	return m.Name, args, nil
}

func toParams(params interface{}) ([]json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("params must be an array")
	}
	return list, nil
}
