package sql

import (
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// --- Mapper functions ---

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     ji.Parameters,
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     entity.Parameters,
		ParametersHash: entity.ParametersHash,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		ExitCode:         je.ExitCode,
		Failures:         je.Failures,
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
		CurrentStepName:  je.CurrentStepName,
		RestartCount:     je.RestartCount,
	}
}

// jobExecutionColumns lists every mutable column. Updating from a map writes zero
// values too, which a struct update would skip.
func jobExecutionColumns(e *JobExecutionEntity) map[string]interface{} {
	return map[string]interface{}{
		"start_time":        e.StartTime,
		"end_time":          e.EndTime,
		"status":            e.Status,
		"exit_status":       e.ExitStatus,
		"exit_code":         e.ExitCode,
		"failures":          e.Failures,
		"version":           e.Version,
		"last_updated":      e.LastUpdated,
		"execution_context": e.ExecutionContext,
		"current_step_name": e.CurrentStepName,
		"restart_count":     e.RestartCount,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	je := &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		ExitCode:         entity.ExitCode,
		Failures:         entity.Failures,
		Version:          entity.Version,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: entity.ExecutionContext,
		CurrentStepName:  entity.CurrentStepName,
		RestartCount:     entity.RestartCount,
	}
	if je.ExecutionContext == nil {
		je.ExecutionContext = model.NewExecutionContext()
	}
	// loaded by the repository on demand
	je.StepExecutions = make([]*model.StepExecution, 0)
	return je
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         se.Failures,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		FilterCount:      se.FilterCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		ExecutionContext: se.ExecutionContext,
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
}

func stepExecutionColumns(e *StepExecutionEntity) map[string]interface{} {
	return map[string]interface{}{
		"start_time":        e.StartTime,
		"end_time":          e.EndTime,
		"status":            e.Status,
		"exit_status":       e.ExitStatus,
		"failures":          e.Failures,
		"read_count":        e.ReadCount,
		"write_count":       e.WriteCount,
		"filter_count":      e.FilterCount,
		"commit_count":      e.CommitCount,
		"rollback_count":    e.RollbackCount,
		"execution_context": e.ExecutionContext,
		"last_updated":      e.LastUpdated,
		"version":           e.Version,
	}
}

// toDomainStepExecution leaves JobExecution unset; callers attach it.
func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	se := &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		FilterCount:      entity.FilterCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		ExecutionContext: entity.ExecutionContext,
		LastUpdated:      entity.LastUpdated,
		Version:          entity.Version,
	}
	if se.ExecutionContext == nil {
		se.ExecutionContext = model.NewExecutionContext()
	}
	return se
}

func fromDomainCheckpointData(cd *model.CheckpointData) *CheckpointDataEntity {
	return &CheckpointDataEntity{
		StepExecutionID:  cd.StepExecutionID,
		ExecutionContext: cd.ExecutionContext,
		LastUpdated:      cd.LastUpdated,
	}
}

func toDomainCheckpointData(entity *CheckpointDataEntity) *model.CheckpointData {
	return &model.CheckpointData{
		StepExecutionID:  entity.StepExecutionID,
		ExecutionContext: entity.ExecutionContext,
		LastUpdated:      entity.LastUpdated,
	}
}

func toDomainJobLock(entity *JobLockEntity) *model.JobLock {
	return &model.JobLock{
		JobName:        entity.JobName,
		JobExecutionID: entity.JobExecutionID,
		AcquiredAt:     entity.AcquiredAt,
	}
}
