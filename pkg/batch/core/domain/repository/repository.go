// Package repository defines persistence ports for job progress snapshots and
// the chunk ledger.
package repository

import (
	"context"
	"errors"
	"sort"

	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
)

// ErrJobNotFound is returned when no snapshot exists for a job id.
var ErrJobNotFound = errors.New("job not found")

// ProgressRepository persists JobProgress snapshots so that a separate
// process (the monitor) can read them without coordinating with the writer.
type ProgressRepository interface {
	// Save inserts or replaces the snapshot for progress.JobID.
	Save(ctx context.Context, progress *model.JobProgress) error
	// Find returns the snapshot for jobID, or ErrJobNotFound.
	Find(ctx context.Context, jobID string) (*model.JobProgress, error)
	// FindAll returns every snapshot ordered by start time, newest first.
	FindAll(ctx context.Context) ([]*model.JobProgress, error)
	// Close releases resources held by the repository.
	Close() error
}

// LedgerRepository loads and stores the chunk ledger.
type LedgerRepository interface {
	// Load returns the stored ledger, or an empty one if none exists yet.
	Load(ctx context.Context) (*model.Ledger, error)
	// Save replaces the stored ledger.
	Save(ctx context.Context, ledger *model.Ledger) error
}

// SortNewestFirst orders snapshots by start time, newest first. Ties are
// broken by job id so that listings are stable.
func SortNewestFirst(jobs []*model.JobProgress) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].StartTime != jobs[j].StartTime {
			return jobs[i].StartTime > jobs[j].StartTime
		}
		return jobs[i].JobID < jobs[j].JobID
	})
}
