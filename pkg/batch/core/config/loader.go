package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadConfig builds a Config from defaults, the embedded YAML document, an
// optional .env file and environment variables, in that order of precedence.
//
// Parameters:
//
//	envFilePath: Path of the .env file; an empty path tries ".env" silently.
//	embeddedConfig: YAML bytes; ${VAR} references are expanded before parsing.
//
// Returns:
//
//	The loaded Config, or a BatchError if parsing or validation fails.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

// LoadConfigFile reads a YAML file and passes it to LoadConfig.
func LoadConfigFile(envFilePath, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot read config file %s", path), err)
	}
	return LoadConfig(envFilePath, data)
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()
	if len(embeddedConfig) > 0 {
		expanded, err := expander.Expand(embeddedConfig)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to expand environment references in config", err, false, true)
		}
		// Unmarshalling onto the defaults keeps every key the document leaves out.
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to unmarshal config", err, false, true)
		}
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, true)
	}
	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, true)
	}
	return cfg, nil
}

// Validate checks value ranges and reports every violation at once.
func Validate(cfg *Config) error {
	var result *multierror.Error
	b := cfg.Importer.Batch
	if b.Workers <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.workers must be positive, got %d", b.Workers))
	}
	if b.BatchSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.batch_size must be positive, got %d", b.BatchSize))
	}
	if b.ChunkSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.chunk_size must be positive, got %d", b.ChunkSize))
	}
	if b.Retry.MaxAttempts <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.retry.max_attempts must be positive, got %d", b.Retry.MaxAttempts))
	}
	if b.Retry.Factor < 1 {
		result = multierror.Append(result, fmt.Errorf("batch.retry.factor must be >= 1, got %g", b.Retry.Factor))
	}
	if b.Retry.MaxInterval < b.Retry.InitialInterval {
		result = multierror.Append(result, fmt.Errorf("batch.retry.max_interval (%d) is below initial_interval (%d)", b.Retry.MaxInterval, b.Retry.InitialInterval))
	}
	switch cfg.Importer.Progress.Store {
	case "file", "sqlite", "memory":
	default:
		result = multierror.Append(result, fmt.Errorf("progress.store must be file, sqlite or memory, got %q", cfg.Importer.Progress.Store))
	}
	switch cfg.Importer.Tracing.Exporter {
	case "", "none", "otlp-http", "otlp-grpc":
	default:
		result = multierror.Append(result, fmt.Errorf("tracing.exporter must be none, otlp-http or otlp-grpc, got %q", cfg.Importer.Tracing.Exporter))
	}
	return result.ErrorOrNil()
}

// loadStructFromEnv overrides struct fields from environment variables named
// after the upper-cased yaml tag path, e.g. IMPORTER_BATCH_WORKERS.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField assigns a string value to a string, integer, float or bool field.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
