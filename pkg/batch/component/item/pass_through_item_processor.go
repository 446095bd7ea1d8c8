// Package item provides generic item components: the pass-through processor, a function
// adapter for processors, and list-backed readers and writers.
package item

import (
	"context"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// PassThroughItemProcessor returns every item unchanged.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a new PassThroughItemProcessor.
func NewPassThroughItemProcessor[T any]() port.ItemProcessor[T, T] {
	return PassThroughItemProcessor[T]{}
}

// Process returns item.
func (PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	logger.Debugf("PassThroughItemProcessor: Processing item: %+v", item)
	return item, nil
}

// ItemProcessorFunc adapts a function to port.ItemProcessor.
type ItemProcessorFunc[I, O any] func(ctx context.Context, item I) (O, error)

// Process calls f.
func (f ItemProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}
