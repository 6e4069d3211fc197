package event

import (
	"fmt"
	"strconv"

	"github.com/weisyn/collection-sdk-go/services/contract"
)

// Kind 被索引的事件类型
type Kind string

const (
	KindCollectionCreated Kind = "collection_created"
	KindTokenMinted       Kind = "token_minted"
)

// Kinds 全部事件类型
var Kinds = []Kind{KindCollectionCreated, KindTokenMinted}

// ParseKind 解析事件类型名
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCollectionCreated, KindTokenMinted:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown event kind %q (want %s or %s)", s, KindCollectionCreated, KindTokenMinted)
	}
}

// EventName 合约 ABI 中的事件名
func (k Kind) EventName() string {
	if k == KindTokenMinted {
		return contract.EventTokenMinted
	}
	return contract.EventCollectionCreated
}

func (k Kind) keyPart() string {
	if k == KindTokenMinted {
		return "tm"
	}
	return "cc"
}

func (k Kind) quantityKey() []byte {
	return []byte(k.keyPart() + ":q")
}

func (k Kind) recordKey(index uint64) []byte {
	return []byte(k.keyPart() + ":" + strconv.FormatUint(index, 10))
}
