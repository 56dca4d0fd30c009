package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers 未指定并发数时使用的协程数
const DefaultWorkers = 4

// Map 以至多 workers 个协程并发执行 fn(ctx, i)，i 取 [0, n)
//
// 结果按下标写回，顺序与输入一致。任一任务出错或 panic 时取消其余任务，
// 返回第一个观察到的错误。
//
// 参数:
//   - ctx: 上下文，取消后未开始的任务不再执行
//   - workers: 最大协程数，<= 0 时使用 DefaultWorkers
//   - n: 任务数
//   - fn: 任务函数
func Map[R any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]R, n)
	if n == 0 {
		return results, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i := 0; i < n; i++ {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() (err error) {
			// 执行任务（捕获 panic）
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			if err := groupCtx.Err(); err != nil {
				return err
			}
			r, err := fn(groupCtx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
