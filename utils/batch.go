package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// BatchConfig 批量操作配置
type BatchConfig struct {
	// BatchSize 批量大小
	BatchSize int
	// Concurrency 并发数量
	Concurrency int
	// OnProgress 进度回调函数
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量操作进度
type BatchProgress struct {
	// Completed 已完成数量
	Completed int
	// Total 总数量
	Total int
	// Percentage 进度百分比（0-100）
	Percentage int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:   50,
		Concurrency: 5,
		OnProgress:  nil,
	}
}

// BatchQueryResult 批量查询结果
type BatchQueryResult[T any] struct {
	// Results 成功的结果（按输入顺序）
	Results []T
	// Errors 失败的项目
	Errors []BatchError
	// Total 总数量
	Total int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// BatchError 批量操作错误
type BatchError struct {
	// Index 项目索引
	Index int
	// Error 错误信息
	Error error
}

// BatchQuery 批量查询
//
// 对一组输入并发调用查询函数，返回成功和失败的结果列表。
// ctx 被取消时未执行的项目记为失败，并返回部分结果与 ctx.Err()。
//
// 示例：
//
//	accounts := []types.AccountID{"0.0.1001", "0.0.1002"}
//	results, err := BatchQuery(ctx, accounts, func(ctx context.Context, id types.AccountID, index int) (int64, error) {
//	    return tokenService.GetBalance(ctx, id, types.Native)
//	}, DefaultBatchConfig())
func BatchQuery[T any, R any](
	ctx context.Context,
	items []T,
	queryFn func(ctx context.Context, item T, index int) (R, error),
	config *BatchConfig,
) (*BatchQueryResult[R], error) {
	if config == nil {
		config = DefaultBatchConfig()
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}

	slots := make([]R, len(items))
	ok := make([]bool, len(items))
	batchErrs := make([]BatchError, 0)
	var resultsMu sync.Mutex

	completed := 0
	success := 0
	failed := 0

	// updateProgress 调用方需持有 resultsMu
	updateProgress := func() {
		completed++
		percentage := (completed * 100) / len(items)
		if config.OnProgress != nil {
			config.OnProgress(BatchProgress{
				Completed:  completed,
				Total:      len(items),
				Percentage: percentage,
				Success:    success,
				Failed:     failed,
			})
		}
	}

	// 分批处理
	batches := batchArray(items, config.BatchSize)

	for batchIdx, batch := range batches {
		// 并发处理当前批次
		var wg sync.WaitGroup
		sem := make(chan struct{}, config.Concurrency)

		for i, item := range batch {
			wg.Add(1)
			globalIndex := batchIdx*config.BatchSize + i
			go func(idx int, batchItem T) {
				defer wg.Done()

				// 获取信号量
				sem <- struct{}{}
				defer func() { <-sem }()

				// 执行前检查取消
				var (
					result R
					err    = ctx.Err()
				)
				if err == nil {
					result, err = queryFn(ctx, batchItem, idx)
				}

				resultsMu.Lock()
				defer resultsMu.Unlock()
				if err != nil {
					batchErrs = append(batchErrs, BatchError{
						Index: idx,
						Error: err,
					})
					failed++
				} else {
					slots[idx] = result
					ok[idx] = true
					success++
				}
				updateProgress()
			}(globalIndex, item)
		}

		wg.Wait()
	}

	results := make([]R, 0, success)
	for i, done := range ok {
		if done {
			results = append(results, slots[i])
		}
	}
	sort.Slice(batchErrs, func(i, j int) bool { return batchErrs[i].Index < batchErrs[j].Index })

	return &BatchQueryResult[R]{
		Results: results,
		Errors:  batchErrs,
		Total:   len(items),
		Success: success,
		Failed:  failed,
	}, ctx.Err()
}

// batchArray 将数组分批次处理
func batchArray[T any](array []T, batchSize int) [][]T {
	batches := make([][]T, 0)
	for i := 0; i < len(array); i += batchSize {
		end := i + batchSize
		if end > len(array) {
			end = len(array)
		}
		batches = append(batches, array[i:end])
	}
	return batches
}

// ParallelExecute 并发执行 fn，最多 concurrency 个同时运行，结果按输入顺序返回
//
// 任一项失败即取消其余尚未完成的项，返回索引最小的错误。
func ParallelExecute[T any, R any](
	ctx context.Context,
	items []T,
	fn func(ctx context.Context, item T) (R, error),
	concurrency int,
) ([]R, error) {
	if concurrency <= 0 {
		concurrency = 5
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			r, err := fn(ctx, it)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			results[idx] = r
		}(i, item)
	}
	wg.Wait()

	// 优先返回真正的失败，而不是由取消引起的 ctx 错误
	var first error
	for idx, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = fmt.Errorf("item %d: %w", idx, err)
		}
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("parallel execute failed: item %d: %w", idx, err)
		}
	}
	if first != nil {
		return nil, fmt.Errorf("parallel execute failed: %w", first)
	}
	return results, nil
}
