// Package repository declares the execution metadata store the job coordinator depends on.
package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// ErrCheckpointDataNotFound is returned when checkpoint data is not found.
var ErrCheckpointDataNotFound = errors.New("checkpoint data not found")

// ErrJobLockHeld is returned by AcquireJobLock when another live execution holds the job.
var ErrJobLockHeld = errors.New("job lock is held by another execution")

// UnsavedLockHolderGrace is how long a lock whose execution is not saved yet still counts as
// held. The coordinator takes the lock before it writes the execution.
const UnsavedLockHolderGrace = time.Minute

// CheckpointDataRepository persists the ExecutionContext of a step after each committed chunk.
type CheckpointDataRepository interface {
	// SaveCheckpointData inserts or replaces the checkpoint of data.StepExecutionID.
	SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error
	// FindCheckpointData returns the checkpoint of a step execution.
	FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error)
}

// JobLockRepository is the persisted "is this job running" record. Acquire is an atomic
// check-and-set so two coordinators, even in different processes, cannot both win.
type JobLockRepository interface {
	// AcquireJobLock claims jobName for jobExecutionID. It fails with ErrJobLockHeld if the
	// lock belongs to an execution that is still running, or to one not saved yet and taken
	// less than UnsavedLockHolderGrace ago. A lock left behind by a finished execution is taken over.
	AcquireJobLock(ctx context.Context, jobName, jobExecutionID string) error
	// ReleaseJobLock drops the lock if jobExecutionID still owns it.
	ReleaseJobLock(ctx context.Context, jobName, jobExecutionID string) error
	// FindJobLock returns the current lock of jobName, or nil if it is free.
	FindJobLock(ctx context.Context, jobName string) (*model.JobLock, error)
}

// JobRepository is the execution metadata store.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution
	CheckpointDataRepository
	JobLockRepository
	// Close releases resources used by the repository.
	Close() error
}
