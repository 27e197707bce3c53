// Package main implements the maestro CLI: a workflow coordinator that
// drives persona-backed software engineering tasks through the
// plan/implement/review/QA/merge lifecycle.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/maestro/config"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per spec.md §6: 0 success, 1 fatal
// init error, 2 coordinator failure.
func run() int {
	var (
		configPath string
		projectID  string
		httpAddr   string
	)

	rootCmd := &cobra.Command{
		Use:   "maestro",
		Short: "Workflow coordinator for persona-backed engineering tasks",
	}

	coordinateCmd := &cobra.Command{
		Use:   "coordinate",
		Short: "Coordinate one project's open tasks through their workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinate(cmd.Context(), configPath, projectID, httpAddr)
		},
	}
	coordinateCmd.Flags().StringVar(&projectID, "project", "", "Project ID to coordinate (required)")
	coordinateCmd.MarkFlagRequired("project")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http-addr", ":8080", "Address for /healthz and /metrics")
	rootCmd.AddCommand(coordinateCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if _, ok := err.(*coordinatorFailure); ok {
			return 2
		}
		return 1
	}
	return 0
}

// coordinatorFailure marks an error as a task-execution-level failure
// rather than a fatal startup error, selecting exit code 2 over 1.
type coordinatorFailure struct{ err error }

func (e *coordinatorFailure) Error() string { return e.err.Error() }
func (e *coordinatorFailure) Unwrap() error { return e.err }

func runCoordinate(ctx context.Context, configPath, projectID, httpAddr string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	loader := config.NewLoader(logger)
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = newLogger(cfg.Log)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	defer app.Shutdown(context.Background())

	go func() {
		if err := app.ServeHTTP(ctx, httpAddr); err != nil {
			logger.Error("http server exited", "error", err)
		}
	}()

	result, err := app.CoordinateProject(ctx, projectID)
	if err != nil {
		return &coordinatorFailure{err: fmt.Errorf("coordinate project %s: %w", projectID, err)}
	}

	failed := 0
	for _, taskResult := range result.Results {
		if !taskResult.Success {
			failed++
			logger.Warn("task failed", "task_id", taskResult.TaskID, "failed_step", taskResult.FailedStep, "error", taskResult.Error)
		}
	}
	logger.Info("coordination complete", "project_id", projectID, "tasks", len(result.Results), "failed", failed)

	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
			return slog.New(handler)
		}
	}
	handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
