// Package config defines the importer configuration and its defaults.
package config

// EmbeddedConfig holds the raw YAML configuration compiled into the binary.
type EmbeddedConfig []byte

// AWSConfig holds settings for reaching the target DynamoDB table.
type AWSConfig struct {
	Region         string `yaml:"region"`           // Region is the AWS region; empty uses the SDK default chain.
	Profile        string `yaml:"profile"`          // Profile is the shared-config profile name.
	Endpoint       string `yaml:"endpoint"`         // Endpoint overrides the service endpoint (e.g. DynamoDB Local).
	SDKMaxAttempts int    `yaml:"sdk_max_attempts"` // SDKMaxAttempts is passed to the SDK retryer; 1 leaves retries to the writer.
}

// RetryConfig holds the backoff policy shared by item-level and batch-level retries.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`     // MaxAttempts counts the first submission.
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the first backoff in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval caps the backoff in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor is the multiplier applied per attempt.
}

// BatchConfig holds settings for chunking and writing.
type BatchConfig struct {
	Workers         int         `yaml:"workers"`           // Workers is the number of concurrent batch submitters.
	BatchSize       int         `yaml:"batch_size"`        // BatchSize is the requested batch size; values above 25 are capped.
	ChunkSize       int         `yaml:"chunk_size"`        // ChunkSize is the number of data rows per chunk file.
	ChunkDir        string      `yaml:"chunk_dir"`         // ChunkDir is where chunk files are materialized.
	LedgerFile      string      `yaml:"ledger_file"`       // LedgerFile is the path of the processed-chunks ledger.
	ChunkDelayMs    int         `yaml:"chunk_delay_ms"`    // ChunkDelayMs is the pause between chunks.
	Encoding        string      `yaml:"encoding"`          // Encoding is the first encoding tried when reading CSV.
	ListDelimiter   string      `yaml:"list_delimiter"`    // ListDelimiter splits multi-valued cells.
	WritesPerSecond float64     `yaml:"writes_per_second"` // WritesPerSecond limits item throughput; 0 disables the limit.
	QueueSize       int         `yaml:"queue_size"`        // QueueSize bounds pending batches (including retries).
	Retry           RetryConfig `yaml:"retry"`
}

// ProgressConfig holds settings for the job progress store.
type ProgressConfig struct {
	Store           string `yaml:"store"`             // Store is one of "file", "sqlite", "memory".
	Dir             string `yaml:"dir"`               // Dir holds one JSON snapshot per job for the file store.
	DatabaseRef     string `yaml:"database_ref"`      // DatabaseRef names the entry under importer.database for the sqlite store.
	FlushIntervalMs int    `yaml:"flush_interval_ms"` // FlushIntervalMs is the periodic snapshot flush interval.
}

// MonitorConfig holds settings for the progress HTTP feed.
type MonitorConfig struct {
	Address             string `yaml:"address"`
	CacheTTLSeconds     int    `yaml:"cache_ttl_seconds"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"` // PollIntervalSeconds is the dashboard refresh interval.
}

// MetricsConfig holds Prometheus exposition settings for import runs.
type MetricsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Address         string `yaml:"address"`           // Address serves /metrics during an import when set.
	AsyncBufferSize int    `yaml:"async_buffer_size"` // AsyncBufferSize bounds the queue between writers and the registry.
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Exporter    string `yaml:"exporter"` // Exporter is one of "none", "otlp-http", "otlp-grpc".
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // Level is "DEBUG", "INFO", "WARN" or "ERROR".
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// ImporterConfig holds everything under the "importer" top-level key.
type ImporterConfig struct {
	AWS      AWSConfig      `yaml:"aws"`
	Batch    BatchConfig    `yaml:"batch"`
	Progress ProgressConfig `yaml:"progress"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	System   SystemConfig   `yaml:"system"`
	// AdapterConfigs holds named database connection settings, decoded on demand.
	AdapterConfigs map[string]interface{} `yaml:"database"`
}

// Config is the root configuration document.
type Config struct {
	Importer       ImporterConfig `yaml:"importer"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// MaxBatchWriteItems is the DynamoDB BatchWriteItem per-call item limit.
const MaxBatchWriteItems = 25

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Importer: ImporterConfig{
			AWS: AWSConfig{
				SDKMaxAttempts: 1,
			},
			Batch: BatchConfig{
				Workers:       20,
				BatchSize:     100,
				ChunkSize:     100000,
				ChunkDir:      "chunks",
				LedgerFile:    "processed_chunks.json",
				ChunkDelayMs:  1000,
				Encoding:      "utf-8-sig",
				ListDelimiter: ",",
				QueueSize:     256,
				Retry: RetryConfig{
					MaxAttempts:     8,
					InitialInterval: 100,
					MaxInterval:     5000,
					Factor:          2.0,
				},
			},
			Progress: ProgressConfig{
				Store:           "file",
				Dir:             "progress",
				DatabaseRef:     "progress",
				FlushIntervalMs: 1000,
			},
			Monitor: MonitorConfig{
				Address:             ":5000",
				CacheTTLSeconds:     5,
				PollIntervalSeconds: 10,
			},
			Metrics: MetricsConfig{
				AsyncBufferSize: 1024,
			},
			Tracing: TracingConfig{
				Exporter:    "none",
				Insecure:    true,
				ServiceName: "ddbimport",
			},
			System: SystemConfig{
				Logging: LoggingConfig{Level: "INFO"},
			},
		},
	}
}

// EffectiveBatchSize returns BatchSize bounded to [1, MaxBatchWriteItems].
func (c BatchConfig) EffectiveBatchSize() int {
	switch {
	case c.BatchSize <= 0:
		return MaxBatchWriteItems
	case c.BatchSize > MaxBatchWriteItems:
		return MaxBatchWriteItems
	}
	return c.BatchSize
}
