package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`      // Database type (e.g., "sqlite").
	Database string     `yaml:"database"`  // Database name, or the file path for SQLite.
	LogLevel string     `yaml:"log_level"` // GORM log level: "silent", "error", "warn" or "info".
	Pool     PoolConfig `yaml:"pool"`      // Connection pool settings.
}
