// Package inmemory provides an in-memory implementation of the JobRepository interface.
// Executions are stored as copies, so callers see the same isolation a database gives them,
// including optimistic locking on Version. Nothing survives the process.
package inmemory

import (
	"sync"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
type InMemoryJobRepository struct {
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	checkpointData map[string]*model.CheckpointData
	jobLocks       map[string]*model.JobLock
	// seq orders executions by creation, which CreateTime alone cannot do reliably.
	seq map[string]int64
	// next is the last sequence number handed out.
	next int64
	mu   sync.RWMutex
}

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		checkpointData: make(map[string]*model.CheckpointData),
		jobLocks:       make(map[string]*model.JobLock),
		seq:            make(map[string]int64),
	}
}

// Close implements repository.JobRepository.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func (r *InMemoryJobRepository) nextSeq() int64 {
	r.next++
	return r.next
}

func copyJobExecution(je *model.JobExecution) *model.JobExecution {
	c := *je
	c.Failures = append(model.FailureList{}, je.Failures...)
	c.ExecutionContext = je.ExecutionContext.Copy()
	c.StepExecutions = make([]*model.StepExecution, 0)
	c.CancelFunc = nil
	return &c
}

func copyStepExecution(se *model.StepExecution) *model.StepExecution {
	c := *se
	c.Failures = append(model.FailureList{}, se.Failures...)
	c.ExecutionContext = se.ExecutionContext.Copy()
	c.JobExecution = nil
	return &c
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)
