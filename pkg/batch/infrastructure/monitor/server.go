// Package monitor serves the job progress feed over HTTP: a dashboard page,
// the JSON job list, per-job documents and Prometheus metrics.
package monitor

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	moduleName  = "monitor"
	jobsKey     = "jobs"
	defaultPoll = 10 * time.Second

	pollPlaceholder = "__POLL_INTERVAL_MS__"
)

//go:embed dashboard.html
var dashboardHTML string

// Server is the monitor HTTP server.
type Server struct {
	repo    repository.ProgressRepository
	cfg     config.MonitorConfig
	cache   *ttlcache.Cache[string, []*model.JobProgress]
	metrics http.Handler
	page    []byte
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates a Server reading snapshots from repo.
func NewServer(repo repository.ProgressRepository, cfg config.MonitorConfig, opts ...Option) *Server {
	s := &Server{repo: repo, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.CacheTTLSeconds > 0 {
		s.cache = ttlcache.New(
			ttlcache.WithTTL[string, []*model.JobProgress](time.Duration(cfg.CacheTTLSeconds)*time.Second),
			ttlcache.WithDisableTouchOnHit[string, []*model.JobProgress](),
		)
	}

	poll := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = defaultPoll
	}
	s.page = []byte(strings.ReplaceAll(dashboardHTML, pollPlaceholder, strconv.FormatInt(poll.Milliseconds(), 10)))
	return s
}

// Handler returns the routes of the monitor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/job/{id}", s.handleJob)
	mux.HandleFunc("GET /api/job/{id}/status", s.handleJobStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Run serves on cfg.Address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	logger.Infof("Monitor: serving progress feed on %s.", s.cfg.Address)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return exception.NewBatchError(moduleName, "monitor server failed", err, false, false)
	}
}

// listJobs returns all snapshots, served from the cache while it is fresh.
func (s *Server) listJobs(ctx context.Context) ([]*model.JobProgress, error) {
	if s.cache != nil {
		if item := s.cache.Get(jobsKey); item != nil {
			return item.Value(), nil
		}
	}
	jobs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(jobsKey, jobs, ttlcache.DefaultTTL)
	}
	return jobs, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.page)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.listJobs(r.Context())
	if err != nil {
		logger.Errorf("Monitor: failed to list jobs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load jobs")
		return
	}
	if jobs == nil {
		jobs = []*model.JobProgress{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) findJob(w http.ResponseWriter, r *http.Request) (*model.JobProgress, bool) {
	id := r.PathValue("id")
	job, err := s.repo.Find(r.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		logger.Errorf("Monitor: failed to load job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load job")
		return nil, false
	}
	return job, true
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if job, ok := s.findJob(w, r); ok {
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if job, ok := s.findJob(w, r); ok {
		writeJSON(w, http.StatusOK, job.Summary())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Monitor: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
