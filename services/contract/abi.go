package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CollectionAggregator 方法与事件名
const (
	MethodCreateCollection   = "createCollection"
	MethodMint               = "mint"
	MethodRegistryGetLength  = "collectionRegistryGetLength"
	MethodRegistryGetByIndex = "collectionRegistryGetByIndex"

	EventCollectionCreated = "CollectionCreated"
	EventTokenMinted       = "TokenMinted"
)

// DefaultAddress 默认部署的 CollectionAggregator 地址
const DefaultAddress = "0xD24894f5b970Fa36BBbaae9402d92DABF1f2aC50"

//go:embed CollectionAggregator.json
var defaultArtifact []byte

var (
	defaultABIOnce sync.Once
	defaultABI     abi.ABI
	defaultABIErr  error
)

// DefaultABI 返回内置的 CollectionAggregator ABI
func DefaultABI() (abi.ABI, error) {
	defaultABIOnce.Do(func() {
		defaultABI, defaultABIErr = LoadArtifact(defaultArtifact)
	})
	return defaultABI, defaultABIErr
}

// LoadArtifact 解析 ABI 构件
//
// 支持 Truffle/Hardhat 构件（顶层带 "abi" 键）和裸 ABI 数组两种格式。
func LoadArtifact(data []byte) (abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return abi.ABI{}, fmt.Errorf("empty ABI artifact")
	}

	abiJSON := data
	if data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("decode artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("artifact has no \"abi\" key")
		}
		abiJSON = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse ABI: %w", err)
	}
	return parsed, nil
}

// LoadArtifactFile 从文件加载 ABI 构件
func LoadArtifactFile(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read ABI artifact: %w", err)
	}
	return LoadArtifact(data)
}
