package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultConcurrency 默认并发数量
const DefaultConcurrency = 5

// IndexError 某一项执行失败
type IndexError struct {
	// Index 项目索引
	Index int
	// Err 错误
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// ParallelExecute 并行执行多个操作
//
// 结果按输入顺序返回。任一项失败时取消其余项，并返回索引最小的 *IndexError。
//
// 示例：
//
//	indices := utils.IndexRange(0, n)
//	addrs, err := utils.ParallelExecute(ctx, indices, func(ctx context.Context, i uint64, _ int) (common.Address, error) {
//	    return registry.At(ctx, i)
//	}, 5)
func ParallelExecute[T any, R any](
	ctx context.Context,
	items []T,
	executeFn func(ctx context.Context, item T, index int) (R, error),
	concurrency int,
) ([]R, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, item := range items {
		wg.Add(1)
		go func(index int, it T) {
			defer wg.Done()

			// 获取信号量
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[index] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			result, err := executeFn(ctx, it, index)
			if err != nil {
				errs[index] = err
				cancel()
				return
			}
			results[index] = result
		}(i, item)
	}

	wg.Wait()

	// 优先返回真实失败，而不是被连带取消的项
	var canceled error
	for i, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			if canceled == nil {
				canceled = &IndexError{Index: i, Err: err}
			}
		default:
			return nil, &IndexError{Index: i, Err: err}
		}
	}
	if canceled != nil {
		return nil, canceled
	}

	return results, nil
}

// IndexRange 返回 [start, end) 的索引序列
func IndexRange(start, end uint64) []uint64 {
	if end <= start {
		return nil
	}
	out := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
