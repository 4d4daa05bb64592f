package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/monitor"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/inmemory"
)

func seed(t *testing.T, repo *inmemory.InMemoryProgressRepository, jobs ...*model.JobProgress) {
	t.Helper()
	for _, j := range jobs {
		require.NoError(t, repo.Save(context.Background(), j))
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	repo := inmemory.NewInMemoryProgressRepository()
	total := int64(100)
	seed(t, repo,
		&model.JobProgress{JobID: "job_old", Status: model.JobStatusCompleted, TableName: "T", StartTime: 100, ProcessedItems: 100, TotalItems: &total, ProgressPercentage: 100},
		&model.JobProgress{JobID: "job_new", Status: model.JobStatusRunning, TableName: "T", StartTime: 200, ProcessedItems: 5, FailedItems: 1, CurrentFile: "a.csv", EstimatedCompletion: model.UnknownCompletion},
	)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metric 1\n")) })
	h := monitor.NewServer(repo, config.MonitorConfig{PollIntervalSeconds: 7}, monitor.WithMetricsHandler(metricsHandler)).Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "const pollIntervalMs = 7000;")
	assert.Contains(t, rec.Body.String(), "completed: 'success'")

	rec = get(t, h, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_new", jobs[0]["job_id"], "newest first")
	assert.Nil(t, jobs[0]["total_items"], "unknown totals are null")

	rec = get(t, h, "/api/job/job_old")
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.JobProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	rec = get(t, h, "/api/job/job_new/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "running", summary["status"])
	assert.EqualValues(t, 5, summary["processed"])
	assert.EqualValues(t, 1, summary["failed"])
	assert.Equal(t, "a.csv", summary["current_file"])
	assert.Equal(t, model.UnknownCompletion, summary["estimated_completion"])

	rec = get(t, h, "/api/job/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Job not found"}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/job/nope/status").Code)

	rec = get(t, h, "/metrics")
	assert.Equal(t, "metric 1\n", rec.Body.String())
}

func TestServer_JobListIsCached(t *testing.T) {
	repo := inmemory.NewInMemoryProgressRepository()
	seed(t, repo, &model.JobProgress{JobID: "job_1", Status: model.JobStatusRunning, StartTime: 1})
	h := monitor.NewServer(repo, config.MonitorConfig{CacheTTLSeconds: 60}).Handler()

	first := get(t, h, "/api/jobs").Body.String()
	seed(t, repo, &model.JobProgress{JobID: "job_2", Status: model.JobStatusRunning, StartTime: 2})
	assert.Equal(t, first, get(t, h, "/api/jobs").Body.String(), "served from cache within the ttl")

	// Single job lookups always read the store.
	assert.Equal(t, http.StatusOK, get(t, h, "/api/job/job_2").Code)
}

func TestServer_EmptyListIsArray(t *testing.T) {
	h := monitor.NewServer(inmemory.NewInMemoryProgressRepository(), config.MonitorConfig{}).Handler()
	rec := get(t, h, "/api/jobs")
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}
