package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// ErrEventNotFound 指定下标没有事件
var ErrEventNotFound = errors.New("event not found")

// appendRetries 写入冲突时的重试次数
const appendRetries = 5

// Store 事件存储
//
// 键布局：<part>:q 为事件数量（十进制字符串），<part>:<n> 为第 n 条事件（n 从 1 开始）。
type Store struct {
	db *badger.DB
}

// OpenStore 打开存储；dir 为空时使用内存模式
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭存储
func (s *Store) Close() error {
	return s.db.Close()
}

// Append 递增计数并写入记录，rec.Index 被设置为分配到的下标
func (s *Store) Append(kind Kind, rec *Record) (uint64, error) {
	var err error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			n, err := readCounter(txn, kind.quantityKey())
			if err != nil {
				return err
			}
			n++
			rec.Index = n

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(kind.recordKey(n), data); err != nil {
				return err
			}
			return txn.Set(kind.quantityKey(), []byte(strconv.FormatUint(n, 10)))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("append %s event: %w", kind, err)
	}
	return rec.Index, nil
}

// Quantity 事件数量
func (s *Store) Quantity(kind Kind) (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCounter(txn, kind.quantityKey())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read %s quantity: %w", kind, err)
	}
	return n, nil
}

// Get 读取第 index 条事件（从 1 开始）
func (s *Store) Get(kind Kind, index uint64) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kind.recordKey(index))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s event %d: %w", kind, index, err)
	}
	return &rec, nil
}

func readCounter(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var n uint64
	err = item.Value(func(val []byte) error {
		var perr error
		n, perr = strconv.ParseUint(string(val), 10, 64)
		return perr
	})
	return n, err
}
