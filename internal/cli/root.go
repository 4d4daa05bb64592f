// Package cli defines the ddbimport command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/ddbimport/internal/app"
	config "github.com/tigerroll/ddbimport/pkg/batch/core/config"
)

const moduleName = "cli"

// rootOptions holds the settings shared by every command.
type rootOptions struct {
	envFilePath string
	configPath  string
	logLevel    string
	embedded    config.EmbeddedConfig
}

// loadConfig loads the configuration and applies the global flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := app.LoadConfig(o.envFilePath, o.configPath, o.embedded)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Importer.System.Logging.Level = o.logLevel
		applyLogLevel(cfg)
	}
	return cfg, nil
}

// NewRootCmd builds the command tree. embedded is the configuration compiled
// into the binary; envFilePath names the .env file loaded before it.
func NewRootCmd(envFilePath string, embedded config.EmbeddedConfig) *cobra.Command {
	opts := &rootOptions{envFilePath: envFilePath, embedded: embedded}

	rootCmd := &cobra.Command{
		Use:   "ddbimport",
		Short: "Import CSV files into DynamoDB tables",
		Long: `Map the rows of a CSV file onto DynamoDB items with a declarative schema,
write them in parallel batches and report progress as the import runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file (defaults to the embedded configuration)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(
		newImportCmd(opts),
		newChunkedCmd(opts),
		newPlanCmd(opts),
		newValidateSchemaCmd(opts),
		newMonitorCmd(opts),
	)
	return rootCmd
}

// Execute runs the command tree with args and returns the error of the
// command that ran.
func Execute(ctx context.Context, envFilePath string, embedded config.EmbeddedConfig, args []string) error {
	rootCmd := NewRootCmd(envFilePath, embedded)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
