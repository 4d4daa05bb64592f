// Package inmemory provides in-memory progress and ledger repositories,
// used when persistence is not required and in tests.
package inmemory

import (
	"context"
	"sync"

	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
)

// InMemoryProgressRepository keeps job snapshots in a map.
type InMemoryProgressRepository struct {
	jobs map[string]*model.JobProgress
	mu   sync.RWMutex // Mutex to protect concurrent access to jobs.
}

// NewInMemoryProgressRepository creates an empty repository.
func NewInMemoryProgressRepository() *InMemoryProgressRepository {
	return &InMemoryProgressRepository{
		jobs: make(map[string]*model.JobProgress),
	}
}

// Save stores a copy of progress, replacing any earlier snapshot of the job.
func (r *InMemoryProgressRepository) Save(ctx context.Context, progress *model.JobProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[progress.JobID] = progress.Clone()
	return nil
}

// Find returns a copy of the snapshot for jobID.
func (r *InMemoryProgressRepository) Find(ctx context.Context, jobID string) (*model.JobProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.jobs[jobID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return p.Clone(), nil
}

// FindAll returns copies of every snapshot, newest first.
func (r *InMemoryProgressRepository) FindAll(ctx context.Context) ([]*model.JobProgress, error) {
	r.mu.RLock()
	jobs := make([]*model.JobProgress, 0, len(r.jobs))
	for _, p := range r.jobs {
		jobs = append(jobs, p.Clone())
	}
	r.mu.RUnlock()

	repository.SortNewestFirst(jobs)
	return jobs, nil
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryProgressRepository) Close() error {
	return nil
}

// InMemoryLedgerRepository holds a single ledger.
type InMemoryLedgerRepository struct {
	ledger *model.Ledger
	mu     sync.Mutex
}

// NewInMemoryLedgerRepository creates a repository with no stored ledger.
func NewInMemoryLedgerRepository() *InMemoryLedgerRepository {
	return &InMemoryLedgerRepository{}
}

// Load returns a copy of the stored ledger, or an empty one.
func (r *InMemoryLedgerRepository) Load(ctx context.Context) (*model.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ledger == nil {
		return model.NewLedger(0), nil
	}
	return copyLedger(r.ledger), nil
}

// Save stores a copy of ledger.
func (r *InMemoryLedgerRepository) Save(ctx context.Context, ledger *model.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger = copyLedger(ledger)
	return nil
}

func copyLedger(l *model.Ledger) *model.Ledger {
	c := *l
	c.ProcessedChunks = append([]string{}, l.ProcessedChunks...)
	return &c
}

var (
	_ repository.ProgressRepository = (*InMemoryProgressRepository)(nil)
	_ repository.LedgerRepository   = (*InMemoryLedgerRepository)(nil)
)
