// Package main implements the entry point for the flowrt runtime: a
// flow-based dataflow engine that deploys wired node graphs, routes messages
// between them, and exposes observation endpoints for metrics and events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/flowrt/builtin"
	"github.com/c360/flowrt/config"
	"github.com/c360/flowrt/events"
	"github.com/c360/flowrt/flowcontext"
	"github.com/c360/flowrt/flowstore"
	"github.com/c360/flowrt/health"
	"github.com/c360/flowrt/metric"
	"github.com/c360/flowrt/natsclient"
	"github.com/c360/flowrt/registry"
	rt "github.com/c360/flowrt/runtime"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flowrt"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, cliCfg)

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Info("Starting flowrt (flow-based dataflow runtime)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	metrics := metric.NewRegistry()
	hub := events.NewHub(logger)
	defer hub.Close()
	emitter := events.Multi{hub, events.NewLogEmitter(logger)}

	ctxStore, natsClient, store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	types := registry.New(logger)
	if err := builtin.Register(types, emitter); err != nil {
		return fmt.Errorf("register builtin types: %w", err)
	}
	slog.Info("Node types registered", "types", types.ListTypes())

	engine, err := rt.New(rt.Options{
		Logger:      logger,
		Types:       types,
		Context:     ctxStore,
		Emitter:     emitter,
		Metrics:     metrics,
		Store:       store,
		MailboxSize: cfg.Runtime.MailboxSize,
		StopTimeout: cfg.Runtime.StopTimeout,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	monitor := health.NewMonitor(appName)
	monitor.Update("runtime", health.NewHealthy("runtime", "created"))
	if natsClient != nil {
		monitor.Update("nats", natsHealth(natsClient))
	}

	servers := startObservation(cfg, metrics, hub, monitor, logger)
	defer stopObservation(servers, logger)

	if err := restoreFlows(ctx, engine, store); err != nil {
		return err
	}

	return runWithSignalHandling(ctx, engine, monitor, cliCfg.ShutdownTimeout)
}

// setupStorage selects the context store and flow persistence backends. The
// memory backend needs nothing; the NATS backend shares one connection for
// durable context and the flow bucket.
func setupStorage(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (flowcontext.Store, *natsclient.Client, flowstore.Store, error) {
	if cfg.Context.Backend != config.ContextBackendNATS {
		store, err := flowstore.NewFileStore(cfg.Runtime.FlowFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create flow store: %w", err)
		}
		return flowcontext.NewMemory(), nil, store, nil
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithLogger(logger),
		natsclient.WithConnectTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithClientName(appName),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	ctxStore, err := flowcontext.NewKV(ctx, client, "flowrt_context")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create context store: %w", err)
	}

	store, err := flowstore.NewKV(ctx, client)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create flow store: %w", err)
	}

	return ctxStore, client, store, nil
}

// restoreFlows deploys whatever the store persisted from the previous run.
func restoreFlows(ctx context.Context, engine *rt.Runtime, store flowstore.Store) error {
	set, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted flows: %w", err)
	}
	if len(set) == 0 {
		slog.Info("No persisted flows to restore")
		return nil
	}

	if err := engine.Deploy(ctx, set); err != nil {
		// A stale persisted set must not keep the process from starting.
		slog.Error("Failed to restore persisted flows", "error", err)
		return nil
	}

	slog.Info("Restored persisted flows", "flows", len(set), "nodes", set.NodeCount())
	return nil
}

// startObservation serves the metrics and event endpoints on their
// configured addresses. An empty address disables that endpoint.
func startObservation(
	cfg *config.Config,
	metrics *metric.Registry,
	hub *events.Hub,
	monitor *health.Monitor,
	logger *slog.Logger,
) []*http.Server {
	var servers []*http.Server

	if cfg.HTTP.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", monitor)
		servers = append(servers, serveHTTP(cfg.HTTP.MetricsAddr, mux, "metrics", logger))
	}

	if cfg.HTTP.EventsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/events", hub)
		servers = append(servers, serveHTTP(cfg.HTTP.EventsAddr, mux, "events", logger))
	}

	return servers
}

func serveHTTP(addr string, handler http.Handler, name string, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Serving "+name, "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "endpoint", name, "error", err)
		}
	}()

	return server
}

func stopObservation(servers []*http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP server shutdown failed", "addr", server.Addr, "error", err)
		}
	}
}

// natsHealth maps the connection state to a health status.
func natsHealth(client *natsclient.Client) health.Status {
	if client.IsConnected() {
		return health.NewHealthy("nats", "connected")
	}
	return health.NewDegraded("nats", "reconnecting")
}

// runWithSignalHandling starts the runtime and blocks until a shutdown
// signal arrives.
func runWithSignalHandling(
	ctx context.Context,
	engine *rt.Runtime,
	monitor *health.Monitor,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := engine.Start(signalCtx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	monitor.Update("runtime", health.NewHealthy("runtime", "started"))
	slog.Info("flowrt started successfully")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")
	monitor.Update("runtime", health.NewUnhealthy("runtime", "shutting down"))

	done := make(chan error, 1)
	go func() { done <- engine.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown did not complete within %s", shutdownTimeout)
	}

	slog.Info("flowrt shutdown complete")
	return nil
}
