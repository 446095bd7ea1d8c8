// Package port defines the core interfaces (ports) of the batch engine: jobs, steps,
// the reader/processor/writer triple of a chunk step and the execution listeners.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the source is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// ErrItemFiltered may be returned by ItemProcessor.Process to drop an item from the chunk.
var ErrItemFiltered = errors.New("item filtered")

// Job is an executable, named sequence of steps.
type Job interface {
	// JobName returns the logical name of the job.
	JobName() string
	// Steps returns the job's steps in execution order.
	Steps() []Step
	// Run executes the steps of jobExecution sequentially, skipping steps that already
	// completed in a previous execution, and leaves jobExecution in a finished state.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//
	// Returns:
	//   error: The error of the first failing step, if any.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
	// ValidateParameters validates job parameters before an execution is created.
	//
	// Parameters:
	//   params: The job parameters to validate.
	//
	// Returns:
	//   error: An error if validation fails.
	ValidateParameters(params model.JobParameters) error
}

// Step is a single stage executed within a job.
type Step interface {
	// StepName returns the logical name of the step.
	StepName() string
	// Execute runs the step and updates stepExecution with its outcome.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   stepExecution: The current StepExecution instance.
	//
	// Returns:
	//   error: An error if the step failed. stepExecution is FAILED in that case.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// ItemReader produces the items of a chunk step one at a time.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open acquires the underlying resource and restores the read position from ec.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   ec: The ExecutionContext of the last committed chunk, empty on a fresh start.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems when the source is exhausted.
	Read(ctx context.Context) (O, error)
	// Close releases the underlying resource. It is called on every exit path.
	Close(ctx context.Context) error
	// GetExecutionContext returns the current read position.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms one input item into one output item.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process transforms item. Implementations must not have side effects, because items of one
	// chunk are processed concurrently.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The input item to be processed.
	//
	// Returns:
	//   O: The processed item.
	//   error: ErrItemFiltered to drop the item, or any other error to fail the chunk.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists the items of a chunk.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	// Open acquires the underlying resource and restores state from ec.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists items as a unit inside tx. Writers without transactional resources ignore tx.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   tx: The chunk transaction.
	//   items: The items of one chunk, in read order.
	//
	// Returns:
	//   error: An error if writing fails. The chunk transaction is rolled back.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close flushes and releases the underlying resource. It is called on every exit path.
	Close(ctx context.Context) error
	// GetExecutionContext returns the writer state to checkpoint.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// KeyedItem is implemented by items that expose an identity, used in error reports.
type KeyedItem interface {
	Key() string
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
type ChunkListener interface {
	// BeforeChunk is called once the items of a chunk have been read, before they are transformed.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after a chunk commits.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunkError is called after a chunk fails and its transaction, if any, is rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// JobParametersIncrementer derives the parameters of a new run from the requested ones.
type JobParametersIncrementer interface {
	GetNext(params model.JobParameters) model.JobParameters
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
