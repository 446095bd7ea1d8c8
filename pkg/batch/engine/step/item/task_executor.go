package item

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// TaskExecutor runs units of work with bounded parallelism.
type TaskExecutor interface {
	// Execute runs task on the calling goroutine once a slot is free. It returns ctx.Err()
	// without running task if ctx ends first.
	Execute(ctx context.Context, task func(ctx context.Context) error) error
	// Limit returns the number of tasks that may run at the same time.
	Limit() int
}

// SimpleAsyncTaskExecutor bounds concurrent tasks with a weighted semaphore. One executor
// is shared by every chunk of a step, so the limit holds across chunks.
type SimpleAsyncTaskExecutor struct {
	sem   *semaphore.Weighted
	limit int
}

// NewSimpleAsyncTaskExecutor creates an executor allowing limit concurrent tasks. A limit below 1 is treated as 1.
func NewSimpleAsyncTaskExecutor(limit int) *SimpleAsyncTaskExecutor {
	if limit < 1 {
		limit = 1
	}
	return &SimpleAsyncTaskExecutor{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

func (e *SimpleAsyncTaskExecutor) Execute(ctx context.Context, task func(ctx context.Context) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return task(ctx)
}

func (e *SimpleAsyncTaskExecutor) Limit() int {
	return e.limit
}

var _ TaskExecutor = (*SimpleAsyncTaskExecutor)(nil)
