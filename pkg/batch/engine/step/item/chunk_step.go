// Package item implements the chunk-oriented step: read a chunk, transform its items on a
// bounded pool, write the chunk in one transaction, checkpoint, repeat.
package item

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// ChunkStep is a port.Step that moves items from an ItemReader through an ItemProcessor
// into an ItemWriter, chunkSize items at a time.
//
// A chunk is written and committed as one transaction. A failure in reading, transforming
// or writing a chunk rolls that chunk back, fails the step and stops further chunks; chunks
// committed before it stay committed. After every commit the reader and writer state is saved
// as checkpoint data so a restarted step resumes after the last committed chunk.
type ChunkStep[I, O any] struct {
	name          string
	reader        port.ItemReader[I]
	processor     port.ItemProcessor[I, O]
	writer        port.ItemWriter[O]
	chunkSize     int
	jobRepository repository.JobRepository
	txManager     tx.TransactionManager
	taskExecutor  TaskExecutor

	stepListeners  []port.StepExecutionListener
	chunkListeners []port.ChunkListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep creates a new ChunkStep. A nil txManager means the writer has no transactional
// resource; a nil taskExecutor transforms items one at a time.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	taskExecutor TaskExecutor,
) *ChunkStep[I, O] {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if txManager == nil {
		txManager = tx.NewResourcelessTransactionManager()
	}
	if taskExecutor == nil {
		taskExecutor = NewSimpleAsyncTaskExecutor(1)
	}
	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		chunkSize:      chunkSize,
		jobRepository:  jobRepository,
		txManager:      txManager,
		taskExecutor:   taskExecutor,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// ChunkSize returns the number of items per chunk.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// SetStepListeners sets the listeners notified before and after the step.
func (s *ChunkStep[I, O]) SetStepListeners(listeners []port.StepExecutionListener) {
	s.stepListeners = listeners
}

// SetChunkListeners sets the listeners notified around every chunk.
func (s *ChunkStep[I, O]) SetChunkListeners(listeners []port.ChunkListener) {
	s.chunkListeners = listeners
}

// SetMetricRecorder sets the recorder for item and chunk counts.
func (s *ChunkStep[I, O]) SetMetricRecorder(recorder metrics.MetricRecorder) {
	if recorder != nil {
		s.metricRecorder = recorder
	}
}

// SetTracer sets the tracer for the step span.
func (s *ChunkStep[I, O]) SetTracer(tracer metrics.Tracer) {
	if tracer != nil {
		s.tracer = tracer
	}
}

// Execute runs the step until the reader is exhausted or a chunk fails.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	logger.Infof("ChunkStep '%s' executing (chunk size %d, concurrency %d).", s.name, s.chunkSize, s.taskExecutor.Limit())

	stepExecution.MarkAsStarted()
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		stepExecution.MarkAsFailed(err)
		return exception.NewBatchError(s.name, "Failed to update StepExecution status to STARTED", err, false, false)
	}
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	stepErr := s.run(ctx, stepExecution)

	switch {
	case stepErr == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(stepErr, context.Canceled):
		stepExecution.MarkAsStopped()
		stepExecution.AddFailureException(stepErr)
	default:
		s.tracer.RecordError(ctx, s.name, stepErr)
		stepExecution.MarkAsFailed(stepErr)
	}

	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': Failed to update final StepExecution state: %v", s.name, err)
		if stepErr == nil {
			stepErr = exception.NewBatchError(s.name, "Failed to persist final StepExecution state", err, false, false)
			stepExecution.MarkAsFailed(stepErr)
		}
	}
	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s, read=%d, filtered=%d, written=%d, commits=%d",
		s.name, stepExecution.ExitStatus, stepExecution.ReadCount, stepExecution.FilterCount, stepExecution.WriteCount, stepExecution.CommitCount)
	return stepErr
}

// run opens the reader and writer, processes chunks and closes both on every path.
func (s *ChunkStep[I, O]) run(ctx context.Context, stepExecution *model.StepExecution) (stepErr error) {
	restartEC, err := s.restartContext(ctx, stepExecution)
	if err != nil {
		return err
	}

	if err := s.reader.Open(ctx, restartEC); err != nil {
		return exception.NewSourceReadError(s.name, 0, -1, err)
	}
	if err := s.writer.Open(ctx, restartEC); err != nil {
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.name, closeErr)
		}
		return exception.NewSinkWriteError(s.name, 0, err)
	}

	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		if err := s.reader.Close(closeCtx); err != nil {
			logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.name, err)
		}
		// The writer may only finish persisting on Close (streamed files), so its error fails the step.
		if err := s.writer.Close(closeCtx); err != nil {
			logger.Errorf("ChunkStep '%s': Failed to close ItemWriter: %v", s.name, err)
			if stepErr == nil {
				stepErr = exception.NewSinkWriteError(s.name, stepExecution.CommitCount, err)
			} else {
				stepErr = multierror.Append(stepErr, err)
			}
		}
	}()

	for chunkIndex := 0; ; chunkIndex++ {
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError(s.name, fmt.Sprintf("Interrupted before chunk %d", chunkIndex), err, false, false)
		}
		done, err := s.processChunk(ctx, stepExecution, chunkIndex)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// restartContext returns the state the reader and writer resume from: the step's own
// ExecutionContext (copied from the failed execution on restart), or else its saved checkpoint.
func (s *ChunkStep[I, O]) restartContext(ctx context.Context, stepExecution *model.StepExecution) (model.ExecutionContext, error) {
	if len(stepExecution.ExecutionContext) > 0 {
		logger.Infof("ChunkStep '%s': Restoring state from previous execution (%d keys).", s.name, len(stepExecution.ExecutionContext))
		return stepExecution.ExecutionContext.Copy(), nil
	}
	checkpoint, err := s.jobRepository.FindCheckpointData(ctx, stepExecution.ID)
	if err != nil && !errors.Is(err, repository.ErrCheckpointDataNotFound) {
		return nil, exception.NewBatchError(s.name, "Failed to load checkpoint data", err, false, false)
	}
	if checkpoint != nil && len(checkpoint.ExecutionContext) > 0 {
		logger.Infof("ChunkStep '%s': Checkpoint data loaded. Restoring state.", s.name)
		return checkpoint.ExecutionContext.Copy(), nil
	}
	return model.NewExecutionContext(), nil
}

// processChunk reads, transforms and writes one chunk. done reports that the reader is exhausted.
func (s *ChunkStep[I, O]) processChunk(ctx context.Context, stepExecution *model.StepExecution, chunkIndex int) (done bool, err error) {
	items, eof, readErr := s.readChunk(ctx, chunkIndex)
	if len(items) == 0 && readErr == nil {
		return true, nil
	}
	s.metricRecorder.RecordItemRead(ctx, s.name, len(items))

	for _, l := range s.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}
	if readErr != nil {
		return false, s.chunkFailed(ctx, stepExecution, readErr)
	}

	outputs, filtered, err := s.transform(ctx, items, chunkIndex)
	if err != nil {
		return false, s.chunkFailed(ctx, stepExecution, err)
	}
	s.metricRecorder.RecordItemProcess(ctx, s.name, len(items))

	if err := s.write(ctx, outputs, chunkIndex); err != nil {
		return false, s.chunkFailed(ctx, stepExecution, err)
	}

	stepExecution.ReadCount += len(items)
	stepExecution.FilterCount += filtered
	stepExecution.WriteCount += len(outputs)
	stepExecution.CommitCount++
	s.metricRecorder.RecordItemWrite(ctx, s.name, len(outputs))
	s.metricRecorder.RecordChunkCommit(ctx, s.name, len(outputs))

	if err := s.checkpoint(ctx, stepExecution); err != nil {
		return false, err
	}
	for _, l := range s.chunkListeners {
		l.AfterChunk(ctx, stepExecution)
	}
	return eof, nil
}

// readChunk reads up to chunkSize items.
func (s *ChunkStep[I, O]) readChunk(ctx context.Context, chunkIndex int) (items []I, eof bool, err error) {
	items = make([]I, 0, s.chunkSize)
	for len(items) < s.chunkSize {
		item, err := s.reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return items, true, nil
		}
		if err != nil {
			return items, false, exception.NewSourceReadError(s.name, chunkIndex, len(items), err)
		}
		items = append(items, item)
	}
	return items, false, nil
}

// transform runs the processor over items on the task executor and returns the outputs in
// input order, without the filtered items. The first failing item, by position, is reported.
func (s *ChunkStep[I, O]) transform(ctx context.Context, items []I, chunkIndex int) ([]O, int, error) {
	results := make([]O, len(items))
	keep := make([]bool, len(items))
	failures := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i := range items {
		g.Go(func() error {
			return s.taskExecutor.Execute(gctx, func(taskCtx context.Context) error {
				out, err := s.processor.Process(taskCtx, items[i])
				switch {
				case errors.Is(err, port.ErrItemFiltered):
					return nil
				case err != nil:
					failures[i] = err
					return err
				}
				results[i], keep[i] = out, true
				return nil
			})
		})
	}
	waitErr := g.Wait()

	for i, err := range failures {
		if err != nil {
			return nil, 0, exception.NewTransformError(s.name, chunkIndex, i, itemKey(items[i]), err)
		}
	}
	if waitErr != nil {
		// Only cancellation of ctx gets here.
		return nil, 0, exception.NewTransformError(s.name, chunkIndex, -1, "", waitErr)
	}

	outputs := make([]O, 0, len(items))
	for i, ok := range keep {
		if ok {
			outputs = append(outputs, results[i])
		}
	}
	return outputs, len(items) - len(outputs), nil
}

// write hands the chunk to the writer inside one transaction.
func (s *ChunkStep[I, O]) write(ctx context.Context, outputs []O, chunkIndex int) error {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewSinkWriteError(s.name, chunkIndex, fmt.Errorf("begin transaction: %w", err))
	}
	if len(outputs) > 0 {
		if err := s.writer.Write(ctx, t, outputs); err != nil {
			if rbErr := s.txManager.Rollback(t); rbErr != nil {
				logger.Errorf("ChunkStep '%s': Failed to roll back chunk %d: %v", s.name, chunkIndex, rbErr)
			}
			return exception.NewSinkWriteError(s.name, chunkIndex, err)
		}
	}
	if err := s.txManager.Commit(t); err != nil {
		return exception.NewSinkWriteError(s.name, chunkIndex, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// checkpoint stores the reader and writer state in the StepExecution and the checkpoint table.
func (s *ChunkStep[I, O]) checkpoint(ctx context.Context, stepExecution *model.StepExecution) error {
	ec := stepExecution.ExecutionContext.Copy()
	readerEC, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "Failed to get ExecutionContext from ItemReader", err, false, false)
	}
	writerEC, err := s.writer.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "Failed to get ExecutionContext from ItemWriter", err, false, false)
	}
	for k, v := range readerEC {
		ec.Put(k, v)
	}
	for k, v := range writerEC {
		ec.Put(k, v)
	}
	stepExecution.ExecutionContext = ec

	if err := s.jobRepository.SaveCheckpointData(ctx, &model.CheckpointData{
		StepExecutionID:  stepExecution.ID,
		ExecutionContext: ec,
	}); err != nil {
		return exception.NewBatchError(s.name, "Failed to save checkpoint data", err, false, false)
	}
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, "Failed to update StepExecution after commit", err, false, false)
	}
	logger.Debugf("ChunkStep '%s': Checkpoint saved. Read: %d, Write: %d", s.name, stepExecution.ReadCount, stepExecution.WriteCount)
	return nil
}

func (s *ChunkStep[I, O]) chunkFailed(ctx context.Context, stepExecution *model.StepExecution, err error) error {
	stepExecution.RollbackCount++
	s.metricRecorder.RecordChunkRollback(ctx, s.name, string(exception.KindOf(err)))
	for _, l := range s.chunkListeners {
		l.AfterChunkError(ctx, stepExecution, err)
	}
	return err
}

func itemKey(item any) string {
	if k, ok := item.(port.KeyedItem); ok {
		return k.Key()
	}
	return ""
}
