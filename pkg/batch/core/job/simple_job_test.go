package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
)

type fakeStep struct {
	name  string
	err   error
	calls *[]string
}

func (s fakeStep) StepName() string { return s.name }

func (s fakeStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	*s.calls = append(*s.calls, s.name)
	se.MarkAsStarted()
	if s.err != nil {
		se.MarkAsFailed(s.err)
		return s.err
	}
	se.MarkAsCompleted()
	return nil
}

type recordingJobListener struct {
	before, after []model.JobStatus
}

func (l *recordingJobListener) BeforeJob(ctx context.Context, je *model.JobExecution) {
	l.before = append(l.before, je.Status)
}

func (l *recordingJobListener) AfterJob(ctx context.Context, je *model.JobExecution) {
	l.after = append(l.after, je.Status)
}

func newExecution(t *testing.T, repo *inmemory.InMemoryJobRepository) *model.JobExecution {
	t.Helper()
	je := model.NewJobExecution("instance", "importCustomerJob", model.NewJobParameters())
	require.NoError(t, repo.SaveJobExecution(context.Background(), je))
	return je
}

func TestSimpleJob_RunsStepsInOrder(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	var calls []string
	listener := &recordingJobListener{}
	j := NewSimpleJob("importCustomerJob",
		[]port.Step{fakeStep{name: "first", calls: &calls}, fakeStep{name: "second", calls: &calls}},
		repo, []port.JobExecutionListener{listener}, nil)

	je := newExecution(t, repo)
	require.NoError(t, j.Run(context.Background(), je))

	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Len(t, je.StepExecutions, 2)
	assert.Equal(t, []model.JobStatus{model.BatchStatusStarted}, listener.before)
	assert.Equal(t, []model.JobStatus{model.BatchStatusCompleted}, listener.after)

	stored, err := repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Len(t, stored.StepExecutions, 2)
}

func TestSimpleJob_FailedStepStopsTheJob(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	var calls []string
	boom := errors.New("sink down")
	j := NewSimpleJob("importCustomerJob",
		[]port.Step{fakeStep{name: "first", err: boom, calls: &calls}, fakeStep{name: "second", calls: &calls}},
		repo, nil, nil)

	je := newExecution(t, repo)
	err := j.Run(context.Background(), je)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, calls)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Contains(t, je.Failures, "sink down")
}

func TestSimpleJob_SkipsCompletedSteps(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	var calls []string
	j := NewSimpleJob("importCustomerJob",
		[]port.Step{fakeStep{name: "first", calls: &calls}, fakeStep{name: "second", calls: &calls}},
		repo, nil, nil)

	je := newExecution(t, repo)
	done := model.NewStepExecution(model.NewID(), je, "first")
	done.MarkAsStarted()
	done.MarkAsCompleted()
	je.AddStepExecution(done)
	require.NoError(t, repo.SaveStepExecution(context.Background(), done))

	require.NoError(t, j.Run(context.Background(), je))
	assert.Equal(t, []string{"second"}, calls)
}

func TestSimpleJob_ValidateParameters(t *testing.T) {
	j := NewSimpleJob("importCustomerJob", nil, inmemory.NewInMemoryJobRepository(), nil, nil, "startAt")

	params := model.NewJobParameters()
	assert.ErrorContains(t, j.ValidateParameters(params), "startAt")
	params.Put("startAt", int64(1))
	assert.NoError(t, j.ValidateParameters(params))
}
