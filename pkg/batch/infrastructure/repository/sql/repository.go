// Package sql implements repository.JobRepository on a relational database through the
// database adapter abstraction.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SQLJobRepository implements the repository.JobRepository interface.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the connection holding the metadata tables (e.g., "metadata").
	dbName string
}

// NewSQLJobRepository creates a new instance of SQLJobRepository.
//
// Parameters:
//
//	dbResolver: The database connection resolver.
//	dbName: The name of the database connection to be used by this repository (e.g., "metadata").
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

func (r *SQLJobRepository) conn(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// --- JobInstance implementation ---

func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	const op = "SQLJobRepository.SaveJobInstance"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainJobInstance(instance)
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err, false, true)
	}
	return nil
}

func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByJobNameAndParameters"
	hash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to calculate JobParameters hash", err, false, false)
	}
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var entities []JobInstanceEntity
	if err := conn.ExecuteQuery(ctx, &entities, map[string]interface{}{"job_name": jobName, "parameters_hash": hash}); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, "failed to find JobInstance", err, false, true)
	}

	for i := range entities {
		instance := toDomainJobInstance(&entities[i])
		if instance.Parameters.Equal(params) {
			return instance, nil
		}
		logger.Warnf("%s: JobInstance (ID: %s) hash matched but parameters mismatched. Possible hash collision.", op, instance.ID)
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByID"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstance by ID: %s", id), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return toDomainJobInstance(&entities[0]), nil
}

// GetJobInstanceCount implements repository.JobInstance.
func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	const op = "SQLJobRepository.GetJobInstanceCount"
	conn, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	count, err := conn.Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName})
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return 0, nil
		}
		return 0, exception.NewBatchError(op, "failed to count JobInstances", err, false, true)
	}
	return int(count), nil
}

// GetJobNames implements repository.JobInstance.
func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	const op = "SQLJobRepository.GetJobNames"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var jobNames []string
	if err := conn.Pluck(ctx, &JobInstanceEntity{}, "job_name", &jobNames, nil); err != nil {
		if conn.IsTableNotExistError(err) {
			return []string{}, nil
		}
		return nil, exception.NewBatchError(op, "failed to pluck job names", err, false, true)
	}
	return jobNames, nil
}

// --- JobExecution implementation ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainJobExecution(jobExecution)
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, false, true)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}

	originalVersion := jobExecution.Version
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	entity := fromDomainJobExecution(jobExecution)

	rowsAffected, err := conn.ExecuteUpdate(ctx, jobExecutionColumns(entity), "UPDATE", entity.TableName(),
		map[string]interface{}{"id": entity.ID, "version": originalVersion})
	if err != nil {
		jobExecution.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), err, false, true)
	}
	if rowsAffected == 0 {
		jobExecution.Version = originalVersion
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, originalVersion), nil)
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withStepExecutions(ctx, toDomainJobExecution(&entities[0]))
}

// FindRunningJobExecutions implements repository.JobExecution.
func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindRunningJobExecutions"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	running := []string{
		string(model.BatchStatusStarting), string(model.BatchStatusStarted),
		string(model.BatchStatusStopping), string(model.BatchStatusRestarting),
	}
	var entities []JobExecutionEntity
	err = conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName, "status": running}, "create_time desc", 0)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find running JobExecutions of '%s'", jobName), err, false, true)
	}
	executions := make([]*model.JobExecution, len(entities))
	for i := range entities {
		executions[i] = toDomainJobExecution(&entities[i])
	}
	return executions, nil
}

// FindLastJobExecution implements repository.JobExecution.
func (r *SQLJobRepository) FindLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindLastJobExecution"
	instance, err := r.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil {
		if errors.Is(err, repository.ErrJobInstanceNotFound) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, err
	}
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_instance_id": instance.ID}, "create_time desc", 1); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find last JobExecution of JobInstance (ID: %s)", instance.ID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withStepExecutions(ctx, toDomainJobExecution(&entities[0]))
}

func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionsByJobInstance"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_instance_id": jobInstance.ID}, "create_time desc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecutions for JobInstance ID: %s", jobInstance.ID), err, false, true)
	}
	// Step executions are not loaded here to avoid N+1 queries.
	executions := make([]*model.JobExecution, len(entities))
	for i := range entities {
		executions[i] = toDomainJobExecution(&entities[i])
	}
	return executions, nil
}

func (r *SQLJobRepository) withStepExecutions(ctx context.Context, je *model.JobExecution) (*model.JobExecution, error) {
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		je.AddStepExecution(se)
	}
	return je, nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.SaveStepExecution"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainStepExecution(stepExecution)
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, false, true)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}

	originalVersion := stepExecution.Version
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	entity := fromDomainStepExecution(stepExecution)

	rowsAffected, err := conn.ExecuteUpdate(ctx, stepExecutionColumns(entity), "UPDATE", entity.TableName(),
		map[string]interface{}{"id": entity.ID, "version": originalVersion})
	if err != nil {
		stepExecution.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), err, false, true)
	}
	if rowsAffected == 0 {
		stepExecution.Version = originalVersion
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("StepExecution (ID: %s) with version %d not found for update", stepExecution.ID, originalVersion), nil)
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution by ID: %s", executionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entities[0]), nil
}

// FindStepExecutionsByJobExecutionID implements repository.StepExecution.
func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionsByJobExecutionID"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.StepExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecutions by JobExecution ID: %s", jobExecutionID), err, false, true)
	}
	steps := make([]*model.StepExecution, len(entities))
	for i := range entities {
		steps[i] = toDomainStepExecution(&entities[i])
	}
	return steps, nil
}

// --- CheckpointData implementation ---

func (r *SQLJobRepository) SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error {
	const op = "SQLJobRepository.SaveCheckpointData"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if data.LastUpdated.IsZero() {
		data.LastUpdated = time.Now()
	}
	entity := fromDomainCheckpointData(data)
	_, err = conn.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"step_execution_id"}, []string{"execution_context", "last_updated"})
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save CheckpointData for StepExecution (ID: %s)", data.StepExecutionID), err, false, true)
	}
	return nil
}

func (r *SQLJobRepository) FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error) {
	const op = "SQLJobRepository.FindCheckpointData"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []CheckpointDataEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"step_execution_id": stepExecutionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrCheckpointDataNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find CheckpointData by StepExecution ID: %s", stepExecutionID), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrCheckpointDataNotFound
	}
	return toDomainCheckpointData(&entities[0]), nil
}

// --- JobLock implementation ---

// AcquireJobLock inserts the lock row and relies on the primary key for atomicity. When the
// row exists and its owner has finished, ownership moves with an update conditioned on the
// previous owner, so only one of several racing takers wins.
func (r *SQLJobRepository) AcquireJobLock(ctx context.Context, jobName, jobExecutionID string) error {
	const op = "SQLJobRepository.AcquireJobLock"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}

	lock := &JobLockEntity{JobName: jobName, JobExecutionID: jobExecutionID, AcquiredAt: time.Now()}
	inserted, err := conn.ExecuteUpsert(ctx, lock, lock.TableName(), []string{"job_name"}, nil)
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to insert job lock for '%s'", jobName), err, false, true)
	}
	if inserted > 0 {
		return nil
	}

	current, err := r.FindJobLock(ctx, jobName)
	if err != nil {
		return err
	}
	if current == nil {
		// released between the insert and the read
		return r.AcquireJobLock(ctx, jobName, jobExecutionID)
	}
	if current.JobExecutionID == jobExecutionID {
		return nil
	}

	holder, err := r.FindJobExecutionByID(ctx, current.JobExecutionID)
	switch {
	case errors.Is(err, repository.ErrJobExecutionNotFound) && time.Since(current.AcquiredAt) < repository.UnsavedLockHolderGrace:
		return fmt.Errorf("%w: job '%s' is held by execution %s, not saved yet", repository.ErrJobLockHeld, jobName, current.JobExecutionID)
	case errors.Is(err, repository.ErrJobExecutionNotFound):
		logger.Warnf("%s: lock of '%s' belongs to unknown execution %s. Taking it over.", op, jobName, current.JobExecutionID)
	case err != nil:
		return err
	case holder.Status.IsRunning():
		return fmt.Errorf("%w: job '%s' is held by execution %s (%s)", repository.ErrJobLockHeld, jobName, holder.ID, holder.Status)
	default:
		logger.Infof("%s: lock of '%s' was left by finished execution %s (%s). Taking it over.", op, jobName, holder.ID, holder.Status)
	}

	updated, err := conn.ExecuteUpdate(ctx,
		map[string]interface{}{"job_execution_id": jobExecutionID, "acquired_at": time.Now()},
		"UPDATE", lock.TableName(),
		map[string]interface{}{"job_name": jobName, "job_execution_id": current.JobExecutionID})
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to take over job lock for '%s'", jobName), err, false, true)
	}
	if updated == 0 {
		return fmt.Errorf("%w: job '%s' was taken by another execution", repository.ErrJobLockHeld, jobName)
	}
	return nil
}

// ReleaseJobLock implements repository.JobLockRepository.
func (r *SQLJobRepository) ReleaseJobLock(ctx context.Context, jobName, jobExecutionID string) error {
	const op = "SQLJobRepository.ReleaseJobLock"
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecuteUpdate(ctx, &JobLockEntity{}, "DELETE", JobLockEntity{}.TableName(),
		map[string]interface{}{"job_name": jobName, "job_execution_id": jobExecutionID})
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to release job lock for '%s'", jobName), err, false, true)
	}
	return nil
}

// FindJobLock implements repository.JobLockRepository.
func (r *SQLJobRepository) FindJobLock(ctx context.Context, jobName string) (*model.JobLock, error) {
	const op = "SQLJobRepository.FindJobLock"
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobLockEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "", 1); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find job lock for '%s'", jobName), err, false, true)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return toDomainJobLock(&entities[0]), nil
}

// Close implements repository.JobRepository. Connections belong to their provider.
func (r *SQLJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// JobRepositoryParams defines the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository creates the SQL JobRepository on the connection named by
// Infrastructure.JobRepositoryDBRef, "metadata" by default.
func NewJobRepository(p JobRepositoryParams) repository.JobRepository {
	dbName := p.Cfg.Surfin.Infrastructure.JobRepositoryDBRef
	if dbName == "" {
		dbName = "metadata"
	}
	return NewSQLJobRepository(p.DBResolver, dbName)
}
