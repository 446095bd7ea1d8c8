package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	components "github.com/tigerroll/customer-batch/pkg/batch/component/item"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	job "github.com/tigerroll/customer-batch/pkg/batch/core/job"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	stepitem "github.com/tigerroll/customer-batch/pkg/batch/engine/step/item"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
)

type customer struct{ ID string }

func (c customer) Key() string { return c.ID }

func customers(n int) []customer {
	out := make([]customer, n)
	for i := range out {
		out[i] = customer{ID: fmt.Sprintf("%03d", i+1)}
	}
	return out
}

func params(startAt int64) model.JobParameters {
	p := model.NewJobParameters()
	p.Put("startAt", startAt)
	return p
}

type rejectionRecorder struct {
	metrics.NoOpMetricRecorder
	mu      sync.Mutex
	reasons []string
}

func (r *rejectionRecorder) RecordLaunchRejected(ctx context.Context, jobName string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

// flakyWriter fails its failOnCall-th Write across all runs.
type flakyWriter struct {
	*components.ListItemWriter[customer]
	failOnCall int
	calls      int
}

func (w *flakyWriter) Write(ctx context.Context, t tx.Tx, items []customer) error {
	w.calls++
	if w.calls == w.failOnCall {
		return errors.New("connection reset")
	}
	return w.ListItemWriter.Write(ctx, t, items)
}

// blockingStep runs until released or cancelled.
type blockingStep struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStep() *blockingStep {
	return &blockingStep{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingStep) StepName() string { return "blockingStep" }

func (s *blockingStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	se.MarkAsStarted()
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		se.MarkAsCompleted()
		return nil
	case <-ctx.Done():
		se.MarkAsStopped()
		return ctx.Err()
	}
}

type fixture struct {
	repo     *inmemory.InMemoryJobRepository
	recorder *rejectionRecorder
	launcher *SimpleJobLauncher
	operator *SimpleJobOperator
}

func newFixture(t *testing.T, repo repository.JobRepository, jobs ...port.Job) *fixture {
	t.Helper()
	registry, err := NewJobRegistry(jobs)
	require.NoError(t, err)
	recorder := &rejectionRecorder{}
	launcher := NewSimpleJobLauncher(repo, registry, recorder)
	f := &fixture{
		recorder: recorder,
		launcher: launcher,
		operator: NewSimpleJobOperator(repo, registry, launcher, NewSimpleJobExplorer(repo)),
	}
	if mem, ok := repo.(*inmemory.InMemoryJobRepository); ok {
		f.repo = mem
	}
	return f
}

func chunkJob(repo repository.JobRepository, items []customer, writer port.ItemWriter[customer]) *job.SimpleJob {
	step := stepitem.NewChunkStep[customer, customer]("importCustomerStep",
		components.NewListItemReader("reader", items),
		components.NewPassThroughItemProcessor[customer](),
		writer, 10, repo, nil, stepitem.NewSimpleAsyncTaskExecutor(10))
	return job.NewSimpleJob("importCustomerJob", []port.Step{step}, repo, nil, nil, "startAt")
}

func TestLaunch_CompletesAndGuardsCompletedParameters(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	writer := components.NewListItemWriter[customer]()
	f := newFixture(t, repo, chunkJob(repo, customers(25), writer))
	ctx := context.Background()

	je, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Len(t, writer.Items(), 25)

	_, err = f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobAlreadyComplete)

	// a fresh timestamp makes a new instance
	je2, err := f.launcher.Launch(ctx, "importCustomerJob", params(2))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je2.Status)
	assert.NotEqual(t, je.JobInstanceID, je2.JobInstanceID)

	assert.Equal(t, []string{RejectAlreadyComplete}, f.recorder.reasons)
	lock, err := repo.FindJobLock(ctx, "importCustomerJob")
	require.NoError(t, err)
	assert.Nil(t, lock, "lock is released when the run ends")
}

func TestLaunch_RejectsBeforeExecution(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	f := newFixture(t, repo, chunkJob(repo, customers(3), components.NewListItemWriter[customer]()))
	ctx := context.Background()

	_, err := f.launcher.Launch(ctx, "unknownJob", params(1))
	assert.ErrorIs(t, err, ErrNoSuchJob)

	_, err = f.launcher.Launch(ctx, "importCustomerJob", model.NewJobParameters())
	assert.ErrorIs(t, err, ErrInvalidJobParameters)

	bad := params(1)
	bad.Put("files", []string{"a.csv"})
	_, err = f.launcher.Launch(ctx, "importCustomerJob", bad)
	assert.ErrorIs(t, err, ErrInvalidJobParameters)

	count, err := repo.GetJobInstanceCount(ctx, "importCustomerJob")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []string{RejectInvalidParameters, RejectInvalidParameters}, f.recorder.reasons)
}

func TestLaunch_AtMostOneRunningExecution(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	step := newBlockingStep()
	f := newFixture(t, repo, job.NewSimpleJob("importCustomerJob", []port.Step{step}, repo, nil, nil))
	ctx := context.Background()

	done := make(chan *model.JobExecution, 1)
	go func() {
		je, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
		assert.NoError(t, err)
		done <- je
	}()
	<-step.started

	_, err := f.launcher.Launch(ctx, "importCustomerJob", params(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	assert.Equal(t, []string{RejectAlreadyRunning}, f.recorder.reasons)

	close(step.release)
	select {
	case je := <-done:
		assert.Equal(t, model.BatchStatusCompleted, je.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	_, err = f.launcher.Launch(ctx, "importCustomerJob", params(2))
	assert.NoError(t, err)
}

// lockOnlyRepository hides running executions so the job lock is the only guard left.
type lockOnlyRepository struct {
	*inmemory.InMemoryJobRepository
}

func (r lockOnlyRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	return nil, nil
}

func TestLaunch_JobLockHeldByAnotherProcess(t *testing.T) {
	mem := inmemory.NewInMemoryJobRepository()
	repo := lockOnlyRepository{mem}
	ctx := context.Background()

	other := model.NewJobExecution("other-instance", "importCustomerJob", params(99))
	other.MarkAsStarted()
	require.NoError(t, mem.SaveJobExecution(ctx, other))
	require.NoError(t, mem.AcquireJobLock(ctx, "importCustomerJob", other.ID))

	writer := components.NewListItemWriter[customer]()
	f := newFixture(t, repo, chunkJob(repo, customers(3), writer))

	_, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	assert.ErrorIs(t, err, repository.ErrJobLockHeld)
	assert.Empty(t, writer.Items(), "no step runs without the lock")

	// the rejected launch left no instance and no execution behind
	_, err = mem.FindJobInstanceByJobNameAndParameters(ctx, "importCustomerJob", params(1))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
	_, err = mem.FindLastJobExecution(ctx, "importCustomerJob", params(1))
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	lock, err := mem.FindJobLock(ctx, "importCustomerJob")
	require.NoError(t, err)
	assert.Equal(t, other.ID, lock.JobExecutionID)

	// once the other execution is done, the same parameters launch normally
	other.MarkAsCompleted()
	require.NoError(t, mem.UpdateJobExecution(ctx, other))
	je, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.NotEmpty(t, je.JobInstanceID)
	assert.Len(t, writer.Items(), 3)
}

func TestLaunch_RestartResumesFromCheckpoint(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	writer := &flakyWriter{ListItemWriter: components.NewListItemWriter[customer](), failOnCall: 2}
	f := newFixture(t, repo, chunkJob(repo, customers(25), writer))
	ctx := context.Background()

	first, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, first.Status)
	assert.NotEmpty(t, first.Failures)
	require.Len(t, writer.Items(), 10)

	second, err := f.launcher.Launch(ctx, "importCustomerJob", params(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID)
	assert.Equal(t, 1, second.RestartCount)

	ids := make([]string, 0, 25)
	for _, c := range writer.Items() {
		ids = append(ids, c.ID)
	}
	want := make([]string, 0, 25)
	for _, c := range customers(25) {
		want = append(want, c.ID)
	}
	assert.Equal(t, want, ids, "every item written exactly once across both runs")

	se, ok := second.StepExecutionByName("importCustomerStep")
	require.True(t, ok)
	assert.Equal(t, 15, se.ReadCount)
	assert.Equal(t, 15, se.WriteCount)

	old, err := f.operator.GetExecution(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, old.Status)

	_, err = f.launcher.Launch(ctx, "importCustomerJob", params(1))
	assert.ErrorIs(t, err, ErrJobAlreadyComplete)
}

func TestOperator_StopThenRestart(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	step := newBlockingStep()
	f := newFixture(t, repo, job.NewSimpleJob("importCustomerJob", []port.Step{step}, repo, nil, nil))
	ctx := context.Background()

	done := make(chan *model.JobExecution, 1)
	go func() {
		je, _ := f.operator.Start(ctx, "importCustomerJob", params(1))
		done <- je
	}()
	<-step.started

	running, err := repo.FindRunningJobExecutions(ctx, "importCustomerJob")
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.NoError(t, f.operator.Stop(ctx, running[0].ID))

	stopped := <-done
	assert.Equal(t, model.BatchStatusStopped, stopped.Status)

	close(step.release)
	restarted, err := f.operator.Restart(ctx, stopped.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)

	_, err = f.operator.Restart(ctx, restarted.ID)
	assert.ErrorIs(t, err, ErrJobNotRestartable)
	_, err = f.operator.Restart(ctx, stopped.ID)
	assert.ErrorIs(t, err, ErrJobNotRestartable)
}

func TestOperator_AbandonStaleExecution(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	f := newFixture(t, repo, chunkJob(repo, customers(3), components.NewListItemWriter[customer]()))
	ctx := context.Background()

	// left behind by a crashed process
	stale := model.NewJobExecution("crashed-instance", "importCustomerJob", params(7))
	stale.MarkAsStarted()
	require.NoError(t, repo.SaveJobExecution(ctx, stale))
	require.NoError(t, repo.AcquireJobLock(ctx, "importCustomerJob", stale.ID))

	_, err := f.operator.Start(ctx, "importCustomerJob", params(8))
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	require.NoError(t, f.operator.Abandon(ctx, stale.ID))
	lock, err := repo.FindJobLock(ctx, "importCustomerJob")
	require.NoError(t, err)
	assert.Nil(t, lock)

	je, err := f.operator.Start(ctx, "importCustomerJob", params(8))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)

	assert.Error(t, f.operator.Abandon(ctx, je.ID), "a completed execution cannot be abandoned")
	assert.NoError(t, f.operator.Abandon(ctx, stale.ID))

	_, err = f.operator.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestOperator_AbandonRunningExecution(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	step := newBlockingStep()
	f := newFixture(t, repo, job.NewSimpleJob("importCustomerJob", []port.Step{step}, repo, nil, nil))
	ctx := context.Background()

	done := make(chan *model.JobExecution, 1)
	go func() {
		je, _ := f.operator.Start(ctx, "importCustomerJob", params(1))
		done <- je
	}()
	<-step.started

	running, err := repo.FindRunningJobExecutions(ctx, "importCustomerJob")
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.NoError(t, f.operator.Abandon(ctx, running[0].ID))

	je := <-done
	assert.Equal(t, model.BatchStatusAbandoned, je.Status)

	stored, err := f.operator.GetExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, stored.Status)

	// the abandoned instance starts over
	close(step.release)
	again, err := f.operator.Start(ctx, "importCustomerJob", params(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, again.Status)
	assert.Zero(t, again.RestartCount)
}

func TestJobRegistry(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	a := job.NewSimpleJob("exportCustomerJob", nil, repo, nil, nil)
	b := job.NewSimpleJob("importCustomerJob", nil, repo, nil, nil)

	registry, err := NewJobRegistry([]port.Job{b, a})
	require.NoError(t, err)
	assert.Equal(t, []string{"exportCustomerJob", "importCustomerJob"}, registry.JobNames())

	_, err = NewJobRegistry([]port.Job{a, a})
	assert.Error(t, err)

	_, err = registry.GetJob("nope")
	assert.ErrorIs(t, err, ErrNoSuchJob)
}
