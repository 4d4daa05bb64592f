package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Importer.System.Logging
}

// NewBatchConfigProvider extracts *BatchConfig from *Config.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Importer.Batch
}

// NewAWSConfigProvider extracts *AWSConfig from *Config.
func NewAWSConfigProvider(cfg *Config) *AWSConfig {
	return &cfg.Importer.AWS
}

// Module provides the configuration sections and the EnvironmentExpander to fx.
// *Config itself is expected to be supplied by the application.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewBatchConfigProvider),
	fx.Provide(NewAWSConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
