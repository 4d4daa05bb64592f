// Package app assembles the importer's fx container and runs one command
// inside it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"

	ddb "github.com/tigerroll/ddbimport/pkg/batch/adapter/dynamodb"
	"github.com/tigerroll/ddbimport/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/ddbimport/pkg/batch/core/config"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/core/job/runner"
	coreMetrics "github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	infraMetrics "github.com/tigerroll/ddbimport/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/monitor"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/file"
	"github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/inmemory"
	sqlRepo "github.com/tigerroll/ddbimport/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "app"

// Progress store names accepted by importer.progress.store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// ImportDeps is what the import commands need from the container.
type ImportDeps struct {
	fx.In
	Runner *runner.ImportRunner
	Repo   repository.ProgressRepository
	Config *config.Config
}

// MonitorDeps is what the monitor command needs from the container.
type MonitorDeps struct {
	fx.In
	Server *monitor.Server
	Config *config.Config
}

// LoadConfig reads the configuration, from path when given and from the
// embedded document otherwise, and applies the configured log level.
func LoadConfig(envFilePath, path string, embedded config.EmbeddedConfig) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfigFile(envFilePath, path)
	} else {
		cfg, err = config.LoadConfig(envFilePath, embedded)
	}
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Importer.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Importer.System.Logging.Level)
	return cfg, nil
}

// ProgressModule selects the ProgressRepository implementation named by
// importer.progress.store.
func ProgressModule(cfg *config.Config) (fx.Option, error) {
	switch cfg.Importer.Progress.Store {
	case StoreFile, "":
		return file.Module, nil
	case StoreSQLite:
		return fx.Options(sqlite.Module, sqlRepo.Module), nil
	case StoreMemory:
		return inmemory.Module, nil
	default:
		return nil, exception.NewPreconditionError(moduleName,
			fmt.Sprintf("unknown progress store %q", cfg.Importer.Progress.Store), nil)
	}
}

// ObservabilityModule selects Prometheus or no-op metrics, and OpenTelemetry
// or no-op tracing, from the configuration.
func ObservabilityModule(cfg *config.Config) fx.Option {
	opts := make([]fx.Option, 0, 2)
	if cfg.Importer.Metrics.Enabled {
		opts = append(opts, infraMetrics.RecorderModule)
	} else {
		opts = append(opts, coreMetrics.NoOpRecorderModule)
	}
	switch cfg.Importer.Tracing.Exporter {
	case "", "none":
		opts = append(opts, coreMetrics.NoOpTracerModule)
	default:
		opts = append(opts, infraMetrics.TracerModule)
	}
	return fx.Options(opts...)
}

// WithMonitor serves the progress feed for as long as the container runs.
func WithMonitor() fx.Option {
	return fx.Options(
		monitor.Module,
		fx.Invoke(func(lc fx.Lifecycle, server *monitor.Server) {
			serveInBackground(lc, "monitor", server.Run)
		}),
	)
}

// MetricsEndpointParams defines dependencies for the standalone metrics endpoint.
type MetricsEndpointParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Handler   http.Handler `name:"metricsHandler" optional:"true"`
}

// registerMetricsEndpoint serves /metrics on importer.metrics.address when
// metrics are enabled and an address is configured.
func registerMetricsEndpoint(p MetricsEndpointParams) {
	addr := p.Config.Importer.Metrics.Address
	if p.Handler == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", p.Handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveInBackground(p.Lifecycle, "metrics", func(ctx context.Context) error {
		errChan := make(chan error, 1)
		go func() {
			logger.Infof("Metrics: serving /metrics on %s.", addr)
			errChan <- server.ListenAndServe()
		}()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errChan:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}

// serveInBackground runs fn from OnStart until OnStop. A server that cannot
// start is logged, not fatal: the import it accompanies goes on.
func serveInBackground(lc fx.Lifecycle, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := fn(ctx); err != nil {
					logger.Warnf("%s server stopped: %v", name, err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// Run builds the container for cfg, resolves T (an fx.In struct) and calls
// job with it once the container has started. The container stops when job
// returns, and job's error is returned.
func Run[T any](appCtx context.Context, cfg *config.Config, job func(context.Context, T) error, extra ...fx.Option) error {
	progressModule, err := ProgressModule(cfg)
	if err != nil {
		return err
	}

	var jobErr error
	app := fx.New(
		fx.Supply(
			cfg,
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),
		logger.Module,
		config.Module,
		progressModule,
		ObservabilityModule(cfg),
		ddb.Module,
		runner.Module,
		fx.Invoke(registerMetricsEndpoint),
		fx.Options(extra...),

		fx.Invoke(fx.Annotate(
			func(lc fx.Lifecycle, shutdowner fx.Shutdowner, deps T, ctx context.Context) {
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go func() {
							defer func() {
								if r := recover(); r != nil {
									jobErr = exception.NewBatchErrorf(moduleName, "panic recovered in job execution: %v", r)
									logger.Errorf("Panic recovered in job execution: %v", r)
								}
								if err := shutdowner.Shutdown(fx.ExitCode(runner.ExitCode(jobErr))); err != nil {
									logger.Errorf("Failed to shutdown application: %v", err)
								}
							}()
							jobErr = job(ctx, deps)
						}()
						return nil
					},
					OnStop: func(context.Context) error {
						logger.Debugf("Application is shutting down.")
						return nil
					},
				})
			},
			fx.ParamTags(
				"",              // lc fx.Lifecycle
				"",              // shutdowner fx.Shutdowner
				"",              // deps T
				`name:"appCtx"`, // appCtx context.Context
			),
		)),
	)
	if err := app.Err(); err != nil {
		return unwrapContainerError(err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return unwrapContainerError(err)
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop reported an error: %v", err)
	}
	return jobErr
}

// unwrapContainerError keeps the BatchError a constructor failed with, so that
// precondition failures still map to their exit code.
func unwrapContainerError(err error) error {
	var be *exception.BatchError
	if errors.As(err, &be) {
		return be
	}
	return exception.NewBatchError(moduleName, "failed to build application", err, false, true)
}
