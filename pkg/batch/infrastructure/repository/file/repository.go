// Package file stores job progress snapshots as one JSON document per job and
// the chunk ledger as a single JSON document, both through a storage adapter
// so that every write lands by atomic rename.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	moduleName = "repository"
	jsonSuffix = ".json"
)

// ProgressRepository keeps one <job_id>.json per job.
type ProgressRepository struct {
	store storageAdapter.StorageConnection
}

// NewProgressRepository creates a repository over store.
func NewProgressRepository(store storageAdapter.StorageConnection) *ProgressRepository {
	return &ProgressRepository{store: store}
}

// Save writes the snapshot of progress.JobID.
func (r *ProgressRepository) Save(ctx context.Context, progress *model.JobProgress) error {
	if progress.JobID == "" || strings.ContainsAny(progress.JobID, `/\`) {
		return exception.NewBatchErrorf(moduleName, "invalid job id %q", progress.JobID)
	}
	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to encode job progress", err, false, false)
	}
	if err := r.store.Upload(ctx, progress.JobID+jsonSuffix, bytes.NewReader(data)); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save progress of %s", progress.JobID), err, true, false)
	}
	return nil
}

// Find loads the snapshot for jobID.
func (r *ProgressRepository) Find(ctx context.Context, jobID string) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := readJSON(ctx, r.store, jobID+jsonSuffix, &p); err != nil {
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindAll loads every readable snapshot, newest first. Unreadable documents
// are logged and skipped.
func (r *ProgressRepository) FindAll(ctx context.Context) ([]*model.JobProgress, error) {
	var jobs []*model.JobProgress
	err := r.store.ListObjects(ctx, "", func(name string) error {
		if !strings.HasSuffix(name, jsonSuffix) || strings.Contains(name, "/") {
			return nil
		}
		var p model.JobProgress
		if err := readJSON(ctx, r.store, name, &p); err != nil {
			logger.Warnf("ProgressRepository: skipping %s: %v", name, err)
			return nil
		}
		if p.JobID == "" {
			p.JobID = strings.TrimSuffix(name, jsonSuffix)
		}
		jobs = append(jobs, &p)
		return nil
	})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to list job progress", err, true, false)
	}
	repository.SortNewestFirst(jobs)
	return jobs, nil
}

// Close closes the underlying store.
func (r *ProgressRepository) Close() error {
	return r.store.Close()
}

// LedgerRepository keeps the chunk ledger in one JSON document.
type LedgerRepository struct {
	store storageAdapter.StorageConnection
	name  string
}

// NewLedgerRepository creates a ledger repository writing name in store.
func NewLedgerRepository(store storageAdapter.StorageConnection, name string) *LedgerRepository {
	return &LedgerRepository{store: store, name: name}
}

// Load reads the ledger. A missing document yields an empty ledger; a corrupt
// one is an error so that completed chunks are never silently forgotten.
func (r *LedgerRepository) Load(ctx context.Context) (*model.Ledger, error) {
	l := model.NewLedger(0)
	if err := readJSON(ctx, r.store, r.name, l); err != nil {
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			return model.NewLedger(0), nil
		}
		return nil, err
	}
	if l.ProcessedChunks == nil {
		l.ProcessedChunks = []string{}
	}
	return l, nil
}

// Save replaces the ledger document.
func (r *LedgerRepository) Save(ctx context.Context, ledger *model.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to encode ledger", err, false, false)
	}
	if err := r.store.Upload(ctx, r.name, bytes.NewReader(data)); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to save ledger %s", r.name), err, true, false)
	}
	return nil
}

func readJSON(ctx context.Context, store storageAdapter.StorageExecutor, name string, v interface{}) error {
	rc, err := store.Download(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to read %s", name), err, true, false)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to decode %s", name), err, false, false)
	}
	return nil
}

var (
	_ repository.ProgressRepository = (*ProgressRepository)(nil)
	_ repository.LedgerRepository   = (*LedgerRepository)(nil)
)
