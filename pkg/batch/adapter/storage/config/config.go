package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type    string `yaml:"type"`     // Type of storage. Only "local" is built in.
	BaseDir string `yaml:"base_dir"` // BaseDir is the root directory for local storage.
}
