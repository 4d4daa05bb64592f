// Package model defines the domain entities shared by the importer: job
// progress snapshots, run states, chunks and the chunk ledger.
package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of an import job as shown in the progress feed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// String returns the string representation of JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished reports whether the status is terminal.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RunState is the state of a single Run Coordinator invocation.
type RunState string

const (
	RunStateNotStarted RunState = "NOT_STARTED"
	RunStateRunning    RunState = "RUNNING"
	RunStateCompleted  RunState = "COMPLETED"
	RunStateFailed     RunState = "FAILED"
)

// String returns the string representation of RunState.
func (s RunState) String() string {
	return string(s)
}

// JobStatus maps a run state onto the progress feed status.
func (s RunState) JobStatus() JobStatus {
	switch s {
	case RunStateRunning:
		return JobStatusRunning
	case RunStateCompleted:
		return JobStatusCompleted
	case RunStateFailed:
		return JobStatusFailed
	default:
		return JobStatusPending
	}
}

const (
	// UnknownCompletion is reported while throughput cannot be measured.
	UnknownCompletion = "Unknown"
	// CompletionTimeLayout formats estimated_completion.
	CompletionTimeLayout = "2006-01-02 15:04:05"
)

// JobProgress is the persisted snapshot of one import job.
// Times are Unix seconds so that the feed stays a flat JSON document.
type JobProgress struct {
	JobID               string    `json:"job_id"`
	Status              JobStatus `json:"status"`
	TableName           string    `json:"table_name"`
	CurrentFile         string    `json:"current_file"`
	TotalItems          *int64    `json:"total_items"` // nil when the total is unknown
	ProcessedItems      int64     `json:"processed_items"`
	FailedItems         int64     `json:"failed_items"`
	ProgressPercentage  float64   `json:"progress_percentage"`
	StartTime           float64   `json:"start_time"`
	LastUpdateTime      float64   `json:"last_update_time"`
	ElapsedTime         float64   `json:"elapsed_time"`
	ItemsPerSecond      float64   `json:"items_per_second"`
	EstimatedCompletion string    `json:"estimated_completion"`
	ErrorMessage        string    `json:"error_message,omitempty"`
}

// Clone returns a deep copy.
func (p *JobProgress) Clone() *JobProgress {
	if p == nil {
		return nil
	}
	c := *p
	if p.TotalItems != nil {
		total := *p.TotalItems
		c.TotalItems = &total
	}
	return &c
}

// StartedAt returns StartTime as a time.Time.
func (p *JobProgress) StartedAt() time.Time {
	return UnixSecondsToTime(p.StartTime)
}

// JobStatusSummary is the compact status document served per job.
type JobStatusSummary struct {
	Status              JobStatus `json:"status"`
	Processed           int64     `json:"processed"`
	Failed              int64     `json:"failed"`
	Total               *int64    `json:"total"`
	Progress            float64   `json:"progress"`
	CurrentFile         string    `json:"current_file"`
	ElapsedTime         float64   `json:"elapsed_time"`
	EstimatedCompletion string    `json:"estimated_completion"`
}

// Summary returns the compact status view of p.
func (p *JobProgress) Summary() JobStatusSummary {
	return JobStatusSummary{
		Status:              p.Status,
		Processed:           p.ProcessedItems,
		Failed:              p.FailedItems,
		Total:               p.Clone().TotalItems,
		Progress:            p.ProgressPercentage,
		CurrentFile:         p.CurrentFile,
		ElapsedTime:         p.ElapsedTime,
		EstimatedCompletion: p.EstimatedCompletion,
	}
}

// NewJobID returns an identifier of the form job_<unix seconds>_<8 hex chars>.
func NewJobID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("job_%d_%x", now.Unix(), id[:4])
}

// TimeToUnixSeconds converts t into fractional Unix seconds.
func TimeToUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// UnixSecondsToTime converts fractional Unix seconds into a time.Time.
func UnixSecondsToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
