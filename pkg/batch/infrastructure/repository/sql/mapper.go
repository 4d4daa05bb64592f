package sql

import (
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
)

// --- Mapper functions ---

func fromDomainJobProgress(p *model.JobProgress) *JobProgressEntity {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &JobProgressEntity{
		JobID:               c.JobID,
		Status:              string(c.Status),
		TargetTable:         c.TableName,
		CurrentFile:         c.CurrentFile,
		TotalItems:          c.TotalItems,
		ProcessedItems:      c.ProcessedItems,
		FailedItems:         c.FailedItems,
		ProgressPercentage:  c.ProgressPercentage,
		StartTime:           c.StartTime,
		LastUpdateTime:      c.LastUpdateTime,
		ElapsedTime:         c.ElapsedTime,
		ItemsPerSecond:      c.ItemsPerSecond,
		EstimatedCompletion: c.EstimatedCompletion,
		ErrorMessage:        c.ErrorMessage,
	}
}

func toDomainJobProgress(entity *JobProgressEntity) *model.JobProgress {
	if entity == nil {
		return nil
	}
	p := &model.JobProgress{
		JobID:               entity.JobID,
		Status:              model.JobStatus(entity.Status),
		TableName:           entity.TargetTable,
		CurrentFile:         entity.CurrentFile,
		TotalItems:          entity.TotalItems,
		ProcessedItems:      entity.ProcessedItems,
		FailedItems:         entity.FailedItems,
		ProgressPercentage:  entity.ProgressPercentage,
		StartTime:           entity.StartTime,
		LastUpdateTime:      entity.LastUpdateTime,
		ElapsedTime:         entity.ElapsedTime,
		ItemsPerSecond:      entity.ItemsPerSecond,
		EstimatedCompletion: entity.EstimatedCompletion,
		ErrorMessage:        entity.ErrorMessage,
	}
	return p.Clone()
}
