package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/ddbimport/internal/cli"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

// embeddedConfig is the configuration used when --config is not given.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main wires signal handling to the command context and turns the outcome
// of the command into the process exit code.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the import; unfinished chunks are retried on the next run.", sig)
		cancel()
	}()

	// Get the path to the .env file from environment variables. Use ".env" as default if not set.
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	err := cli.Execute(ctx, envFilePath, embeddedConfig, os.Args[1:])
	if err != nil {
		logger.Errorf("%v", err)
	}
	cancel()
	os.Exit(runner.ExitCode(err))
}
