package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

func newExecution(t *testing.T, r *InMemoryJobRepository, startAt int64) (*model.JobInstance, *model.JobExecution) {
	t.Helper()
	params := model.NewJobParameters()
	params.Put("startAt", startAt)
	instance := model.NewJobInstance("importCustomerJob", params)
	require.NoError(t, r.SaveJobInstance(context.Background(), instance))
	je := model.NewJobExecution(instance.ID, instance.JobName, params)
	require.NoError(t, r.SaveJobExecution(context.Background(), je))
	return instance, je
}

func TestInMemory_StoredCopiesAreIsolated(t *testing.T) {
	r := NewInMemoryJobRepository()
	ctx := context.Background()
	_, je := newExecution(t, r, 1)

	je.Status = model.BatchStatusCompleted
	loaded, err := r.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarting, loaded.Status)
}

func TestInMemory_OptimisticLocking(t *testing.T) {
	r := NewInMemoryJobRepository()
	ctx := context.Background()
	_, je := newExecution(t, r, 1)

	stale := *je
	je.MarkAsStarted()
	require.NoError(t, r.UpdateJobExecution(ctx, je))

	stale.MarkAsFailed(errors.New("late"))
	err := r.UpdateJobExecution(ctx, &stale)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func TestInMemory_LastExecutionAndSteps(t *testing.T) {
	r := NewInMemoryJobRepository()
	ctx := context.Background()
	instance, first := newExecution(t, r, 1)

	second := model.NewJobExecution(instance.ID, instance.JobName, instance.Parameters)
	require.NoError(t, r.SaveJobExecution(ctx, second))
	se := model.NewStepExecution(model.NewID(), second, "importCustomerStep")
	require.NoError(t, r.SaveStepExecution(ctx, se))

	last, err := r.FindLastJobExecution(ctx, instance.JobName, instance.Parameters)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	require.Len(t, last.StepExecutions, 1)
	assert.Same(t, last, last.StepExecutions[0].JobExecution)

	all, err := r.FindJobExecutionsByJobInstance(ctx, instance)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[1].ID)

	running, err := r.FindRunningJobExecutions(ctx, instance.JobName)
	require.NoError(t, err)
	assert.Len(t, running, 2)
}

func TestInMemory_JobLock(t *testing.T) {
	r := NewInMemoryJobRepository()
	ctx := context.Background()
	_, first := newExecution(t, r, 1)
	_, second := newExecution(t, r, 2)

	require.NoError(t, r.AcquireJobLock(ctx, "importCustomerJob", first.ID))
	assert.ErrorIs(t, r.AcquireJobLock(ctx, "importCustomerJob", second.ID), repository.ErrJobLockHeld)

	require.NoError(t, r.ReleaseJobLock(ctx, "importCustomerJob", first.ID))
	require.NoError(t, r.AcquireJobLock(ctx, "importCustomerJob", second.ID))
	lock, err := r.FindJobLock(ctx, "importCustomerJob")
	require.NoError(t, err)
	assert.Equal(t, second.ID, lock.JobExecutionID)
}

func TestInMemory_JobLockOfUnsavedExecution(t *testing.T) {
	r := NewInMemoryJobRepository()
	ctx := context.Background()
	_, second := newExecution(t, r, 2)

	require.NoError(t, r.AcquireJobLock(ctx, "importCustomerJob", "not-saved-yet"))
	assert.ErrorIs(t, r.AcquireJobLock(ctx, "importCustomerJob", second.ID), repository.ErrJobLockHeld)

	r.jobLocks["importCustomerJob"].AcquiredAt = time.Now().Add(-2 * repository.UnsavedLockHolderGrace)
	require.NoError(t, r.AcquireJobLock(ctx, "importCustomerJob", second.ID))
}
