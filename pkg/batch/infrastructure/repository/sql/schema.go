package sql

import (
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// JobInstanceEntity is the persisted form of model.JobInstance.
type JobInstanceEntity struct {
	ID             string
	JobName        string
	Parameters     model.JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is the persisted form of model.JobExecution. Step executions live
// in their own table and are loaded separately.
type JobExecutionEntity struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       model.JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	ExitCode         int
	Failures         model.FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext
	CurrentStepName  string
	RestartCount     int
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the persisted form of model.StepExecution.
type StepExecutionEntity struct {
	ID               string
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	ReadCount        int
	WriteCount       int
	FilterCount      int
	CommitCount      int
	RollbackCount    int
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}

// CheckpointDataEntity is the persisted form of model.CheckpointData.
type CheckpointDataEntity struct {
	StepExecutionID  string
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
}

func (CheckpointDataEntity) TableName() string {
	return "batch_checkpoint_data"
}

// JobLockEntity is one row per job name that currently has an owner.
type JobLockEntity struct {
	JobName        string
	JobExecutionID string
	AcquiredAt     time.Time
}

func (JobLockEntity) TableName() string {
	return "batch_job_lock"
}
