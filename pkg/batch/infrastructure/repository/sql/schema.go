package sql

// JobProgressEntity is the persisted form of model.JobProgress.
type JobProgressEntity struct {
	JobID               string  `gorm:"column:job_id;primaryKey"`
	Status              string  `gorm:"column:status;index"`
	TargetTable         string  `gorm:"column:table_name"`
	CurrentFile         string  `gorm:"column:current_file"`
	TotalItems          *int64  `gorm:"column:total_items"`
	ProcessedItems      int64   `gorm:"column:processed_items"`
	FailedItems         int64   `gorm:"column:failed_items"`
	ProgressPercentage  float64 `gorm:"column:progress_percentage"`
	StartTime           float64 `gorm:"column:start_time;index"`
	LastUpdateTime      float64 `gorm:"column:last_update_time"`
	ElapsedTime         float64 `gorm:"column:elapsed_time"`
	ItemsPerSecond      float64 `gorm:"column:items_per_second"`
	EstimatedCompletion string  `gorm:"column:estimated_completion"`
	ErrorMessage        string  `gorm:"column:error_message"`
}

func (JobProgressEntity) TableName() string {
	return "import_job_progress"
}

// updateColumns lists every column replaced when a snapshot is saved again.
var updateColumns = []string{
	"status", "table_name", "current_file", "total_items", "processed_items",
	"failed_items", "progress_percentage", "start_time", "last_update_time",
	"elapsed_time", "items_per_second", "estimated_completion", "error_message",
}
