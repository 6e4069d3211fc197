package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet 签名者接口
//
// Wallet 只在内存中持有私钥，不负责密钥的生成流程、存储与备份。
type Wallet interface {
	// Address 获取账户地址
	Address() common.Address

	// SignTx 使用链 ID 对交易签名（EIP-155 / London 签名器）
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// SimpleWallet 简单钱包实现（用于测试和开发）
type SimpleWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewWallet 创建随机私钥钱包
func NewWallet() (Wallet, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return newSimpleWallet(privateKey), nil
}

// NewWalletFromPrivateKey 从十六进制私钥创建钱包
func NewWalletFromPrivateKey(privateKeyHex string) (Wallet, error) {
	privateKeyHex = hexRemovePrefix(strings.TrimSpace(privateKeyHex))

	// secp256k1 私钥为 32 字节
	if len(privateKeyHex) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d hex chars", len(privateKeyHex))
	}

	privateKey, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newSimpleWallet(privateKey), nil
}

func newSimpleWallet(privateKey *ecdsa.PrivateKey) *SimpleWallet {
	return &SimpleWallet{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address 获取账户地址
func (w *SimpleWallet) Address() common.Address {
	return w.address
}

// SignTx 签名交易
func (w *SimpleWallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// hexRemovePrefix 移除十六进制字符串的0x前缀
func hexRemovePrefix(hexStr string) string {
	if len(hexStr) >= 2 && (hexStr[:2] == "0x" || hexStr[:2] == "0X") {
		return hexStr[2:]
	}
	return hexStr
}
