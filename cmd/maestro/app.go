package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/c360studio/maestro/config"
	"github.com/c360studio/maestro/coordinator"
	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/duptracker"
	"github.com/c360studio/maestro/persona"
	"github.com/c360studio/maestro/repomutator"
	"github.com/c360studio/maestro/transport"
	"github.com/c360studio/maestro/transport/localstream"
	"github.com/c360studio/maestro/transport/redisstream"
	"github.com/c360studio/maestro/workflow"
	"github.com/c360studio/maestro/workflow/steps"
)

// App wires every component named in SPEC_FULL.md's wiring note
// (transport, duplicate tracker, persona client, repo mutator, dashboard
// client, workflow engine and its built-in steps, coordinator) and exposes
// the /healthz and /metrics surface cmd/maestro serves alongside them.
type App struct {
	cfg *config.Config

	registry *prometheus.Registry
	tr       transport.Transport
	dup      *duptracker.Tracker
	dash     *dashboard.Client
	personaC *persona.Client
	engine   *workflow.Engine
	coord    *coordinator.Coordinator

	httpServer *http.Server
}

// NewApp constructs and wires an App from cfg. It does not start any
// goroutines or network listeners; call Start for that.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	tr, err := buildTransport(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	tr = transport.NewInstrumented(tr, registry)

	dup := duptracker.New(logger, duptracker.WithRegistry(registry))
	dash := dashboard.NewClient(cfg.Dashboard.BaseURL, dashboard.WithTimeout(cfg.Dashboard.RequestTimeout))
	personaC := persona.NewClient(tr, cfg.Transport.RequestStream, cfg.Transport.ResponseStream)
	engine := workflow.NewEngine(logger, workflow.WithMetricsRegistry(registry))

	var mutatorOpts []repomutator.Option
	if cfg.WriteDiagnostics {
		mutatorOpts = append(mutatorOpts, repomutator.WithDiagnostics("outputs/diagnostics"))
	}
	mutator := repomutator.New(cfg.ProjectBase, repomutator.Policy{
		AllowWorkspaceGit: cfg.AllowWorkspaceGit,
		DeniedExtensions:  cfg.BlockedExts,
	}, logger, mutatorOpts...)
	gitRunner := repomutator.NewGitRunner(cfg.ProjectBase, logger)

	steps.RegisterAll(steps.Dependencies{
		PersonaClient:  personaC,
		CallerGroup:    "workflow-engine",
		DefaultTimeout: 5 * time.Minute,
		Scanner:        steps.DefaultScanner{},
		Mutator:        mutator,
		Git:            gitRunner,
		Dashboard:      dash,
		Engine:         engine,
		Transport:      tr,
		KeepLogs:       cfg.TaskLogKeep,
	})

	definitions, err := config.LoadWorkflowDefinitions(cfg)
	if err != nil {
		return nil, fmt.Errorf("load workflow definitions: %w", err)
	}

	coord := coordinator.New(dash, engine, tr, definitions, logger)

	return &App{
		cfg: cfg, registry: registry, tr: tr, dup: dup,
		dash: dash, personaC: personaC, engine: engine, coord: coord,
	}, nil
}

func buildTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Type {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis_url: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		return redisstream.NewFromOptions(opts), nil
	case "local":
		return localstream.New(), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// Start connects the transport and begins the dedup tracker's sweep loop.
func (a *App) Start(ctx context.Context) error {
	if err := a.tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	a.dup.StartSweeper(ctx, time.Hour)
	return nil
}

// Shutdown releases the transport connection and stops background work.
func (a *App) Shutdown(ctx context.Context) {
	a.dup.StopSweeper()
	if a.httpServer != nil {
		a.httpServer.Shutdown(ctx)
	}
	a.tr.Disconnect(ctx)
}

// ServeHTTP starts the /healthz and /metrics HTTP server on addr and blocks
// until the listener fails or ctx is cancelled; Shutdown stops the server.
func (a *App) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", a.handleHealthz)

	a.httpServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- a.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.tr.Connect(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "transport unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// CoordinateProject runs the coordinator for one project, per spec.md
// §4.K's "coordinate this project" entry point.
func (a *App) CoordinateProject(ctx context.Context, projectID string) (coordinator.Result, error) {
	return a.coord.CoordinateProject(ctx, projectID)
}
