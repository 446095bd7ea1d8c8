package item

import (
	"context"
	"sync"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

// ListItemReader reads the items of a slice. The position is stored under "<name>.readCount".
type ListItemReader[T any] struct {
	name  string
	items []T
	pos   int
}

// NewListItemReader creates a new ListItemReader over items.
func NewListItemReader[T any](name string, items []T) *ListItemReader[T] {
	return &ListItemReader[T]{name: name, items: items}
}

func (r *ListItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.pos, _ = ec.GetInt(r.name + ".readCount")
	if r.pos > len(r.items) {
		r.pos = len(r.items)
	}
	return nil
}

func (r *ListItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *ListItemReader[T]) Close(ctx context.Context) error { return nil }

func (r *ListItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.name+".readCount", r.pos)
	return ec, nil
}

// ListItemWriter keeps every written chunk in memory.
type ListItemWriter[T any] struct {
	mu     sync.Mutex
	chunks [][]T
	opened int
	closed int
}

// NewListItemWriter creates a new ListItemWriter.
func NewListItemWriter[T any]() *ListItemWriter[T] {
	return &ListItemWriter[T]{}
}

func (w *ListItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened++
	return nil
}

// Write records a copy of items as one chunk.
func (w *ListItemWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]T(nil), items...))
	return nil
}

func (w *ListItemWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *ListItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}

// Chunks returns the chunks written so far.
func (w *ListItemWriter[T]) Chunks() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]T(nil), w.chunks...)
}

// Items returns every written item in write order.
func (w *ListItemWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []T
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}

// OpenCloseCounts reports how often Open and Close were called.
func (w *ListItemWriter[T]) OpenCloseCounts() (opened, closed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened, w.closed
}

var (
	_ port.ItemReader[any] = (*ListItemReader[any])(nil)
	_ port.ItemWriter[any] = (*ListItemWriter[any])(nil)
)
