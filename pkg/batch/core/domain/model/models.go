// Package model defines the execution metadata of the batch engine: job instances,
// job and step executions, their statuses and the execution context used for restart.
package model

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// JobStatus represents the state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting   JobStatus = "STARTING"
	BatchStatusStarted    JobStatus = "STARTED"
	BatchStatusStopping   JobStatus = "STOPPING"
	BatchStatusStopped    JobStatus = "STOPPED"
	BatchStatusCompleted  JobStatus = "COMPLETED"
	BatchStatusFailed     JobStatus = "FAILED"
	BatchStatusAbandoned  JobStatus = "ABANDONED"
	BatchStatusRestarting JobStatus = "RESTARTING"
	BatchStatusUnknown    JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished reports whether the status is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// IsRunning reports whether an execution in this status still holds its job.
func (s JobStatus) IsRunning() bool {
	switch s {
	case BatchStatusStarting, BatchStatusStarted, BatchStatusStopping, BatchStatusRestarting:
		return true
	default:
		return false
	}
}

// IsRestartable reports whether a last execution in this status may be restarted.
func (s JobStatus) IsRestartable() bool {
	return s == BatchStatusFailed || s == BatchStatusStopped
}

// ExitStatus represents the detailed status upon job/step completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	ExitStatusNoOp      ExitStatus = "NOOP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// FailureList holds the error messages recorded on an execution.
type FailureList []string

// Value implements driver.Valuer, storing the list as a JSON array.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	b, err := scanBytes(value, "FailureList")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

func scanBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is the logical run of a job: one per (job name, parameters hash).
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a new JobInstance. The parameters hash is computed here;
// callers are expected to have validated the parameters already.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	hash, err := params.Hash()
	if err != nil {
		logger.Warnf("Failed to hash parameters for job '%s': %v", jobName, err)
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: hash,
		CreateTime:     time.Now(),
	}
}

// JobExecution is one attempt at running a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	ExitCode         int
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
	RestartCount     int
	// CancelFunc cancels the context the run executes under. It is never persisted.
	CancelFunc context.CancelFunc `json:"-"`
}

// NewJobExecution creates a JobExecution in STARTING state.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		CreateTime:       now,
		LastUpdated:      now,
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopped, BatchStatusFailed:
		return next == BatchStatusAbandoned || next == BatchStatusRestarting
	case BatchStatusRestarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo changes the status if the transition is allowed.
// Fields other than Status must be set by the caller.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): Invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	return nil
}

func (je *JobExecution) forceTransition(newStatus JobStatus) {
	if err := je.TransitionTo(newStatus); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to %s: %v", je.ID, newStatus, err)
		je.Status = newStatus
	}
}

// MarkAsStarted updates the JobExecution status to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.forceTransition(BatchStatusStarted)
	je.ExitStatus = ExitStatusExecuting
	je.LastUpdated = time.Now()
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.forceTransition(BatchStatusCompleted)
	je.finish(ExitStatusCompleted, 0)
}

// MarkAsFailed updates the JobExecution status to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.forceTransition(BatchStatusFailed)
	je.finish(ExitStatusFailed, 1)
	je.AddFailureException(err)
}

// MarkAsStopped updates the JobExecution status to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.forceTransition(BatchStatusStopped)
	je.finish(ExitStatusStopped, 1)
}

// MarkAsAbandoned updates the JobExecution status to ABANDONED.
func (je *JobExecution) MarkAsAbandoned() {
	je.forceTransition(BatchStatusAbandoned)
	je.finish(ExitStatusAbandoned, 1)
}

func (je *JobExecution) finish(exit ExitStatus, code int) {
	now := time.Now()
	je.ExitStatus = exit
	je.ExitCode = code
	je.EndTime = &now
	je.LastUpdated = now
}

// AddFailureException records err's message once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	if appendFailure(&je.Failures, err) {
		je.LastUpdated = time.Now()
	}
}

func appendFailure(list *FailureList, err error) bool {
	msg := err.Error()
	for _, existing := range *list {
		if existing == msg {
			return false
		}
	}
	*list = append(*list, msg)
	return true
}

// AddStepExecution attaches a StepExecution to this JobExecution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	se.JobExecutionID = je.ID
	je.StepExecutions = append(je.StepExecutions, se)
}

// StepExecutionByName returns the attached StepExecution with the given name.
func (je *JobExecution) StepExecutionByName(stepName string) (*StepExecution, bool) {
	for _, se := range je.StepExecutions {
		if se.StepName == stepName {
			return se, true
		}
	}
	return nil, false
}

// StepExecution is one attempt at running a step within a JobExecution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution `json:"-"`
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	FilterCount      int
	CommitCount      int
	RollbackCount    int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution creates a StepExecution in STARTING state attached to jobExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecution = jobExecution
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// CopyForRestart copies the StepExecution into a new execution of newJobExecutionID.
// A COMPLETED step keeps its status and counters so it can be skipped. Any other step
// restarts in STARTING state with zeroed counters and the previous ExecutionContext,
// which carries the reader checkpoint.
func (se *StepExecution) CopyForRestart(newJobExecutionID string) *StepExecution {
	newSE := &StepExecution{
		ID:               NewID(),
		StepName:         se.StepName,
		JobExecutionID:   newJobExecutionID,
		Failures:         FailureList{},
		ExecutionContext: se.ExecutionContext.Copy(),
	}
	if se.Status == BatchStatusCompleted {
		newSE.Status = BatchStatusCompleted
		newSE.ExitStatus = se.ExitStatus
		newSE.StartTime = se.StartTime
		newSE.EndTime = se.EndTime
		newSE.ReadCount = se.ReadCount
		newSE.WriteCount = se.WriteCount
		newSE.FilterCount = se.FilterCount
		newSE.CommitCount = se.CommitCount
		newSE.RollbackCount = se.RollbackCount
	} else {
		newSE.Status = BatchStatusStarting
		newSE.ExitStatus = ExitStatusUnknown
		newSE.StartTime = time.Now()
	}
	newSE.LastUpdated = time.Now()
	return newSE
}

func isValidStepTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo changes the status if the transition is allowed.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): Invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	return nil
}

func (se *StepExecution) forceTransition(newStatus JobStatus) {
	if err := se.TransitionTo(newStatus); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, newStatus, err)
		se.Status = newStatus
	}
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.forceTransition(BatchStatusStarted)
	se.ExitStatus = ExitStatusExecuting
	se.LastUpdated = time.Now()
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.forceTransition(BatchStatusCompleted)
	se.finish(ExitStatusCompleted)
}

// MarkAsFailed updates the StepExecution status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.forceTransition(BatchStatusFailed)
	se.finish(ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.forceTransition(BatchStatusStopped)
	se.finish(ExitStatusStopped)
}

func (se *StepExecution) finish(exit ExitStatus) {
	now := time.Now()
	se.ExitStatus = exit
	se.EndTime = &now
	se.LastUpdated = now
}

// AddFailureException records err's message once.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	if appendFailure(&se.Failures, err) {
		se.LastUpdated = time.Now()
	}
}

// DebugString renders the StepExecution without its ExecutionContext contents.
func (se *StepExecution) DebugString() string {
	endTime := "nil"
	if se.EndTime != nil {
		endTime = se.EndTime.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf(
		"&{ID:%s StepName:%s JobExecutionID:%s Status:%s ExitStatus:%s EndTime:%s ReadCount:%d WriteCount:%d CommitCount:%d RollbackCount:%d ExecutionContext:(size %d) Version:%d}",
		se.ID, se.StepName, se.JobExecutionID, se.Status, se.ExitStatus, endTime,
		se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount, len(se.ExecutionContext), se.Version,
	)
}

// CheckpointData is the persisted ExecutionContext of a step, saved after every committed chunk.
type CheckpointData struct {
	StepExecutionID  string
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}

// JobLock records which execution currently holds a job name.
type JobLock struct {
	JobName        string
	JobExecutionID string
	AcquiredAt     time.Time
}
