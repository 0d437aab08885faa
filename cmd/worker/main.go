package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/sift/internal/config"
	"github.com/efebarandurmaz/sift/internal/observability"
	"github.com/efebarandurmaz/sift/internal/pipeline"
	"github.com/efebarandurmaz/sift/internal/server"
	"github.com/efebarandurmaz/sift/internal/temporal"
	"github.com/efebarandurmaz/sift/internal/vector/neo4j"
	"github.com/efebarandurmaz/sift/internal/vector/qdrant"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := server.NewShutdownHandler(0, logger)

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "sift-worker",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	shutdown.RegisterHook("tracing", server.PriorityTracing, tp.Shutdown)

	return serve(ctx, cfg, logger, shutdown)
}

// serve builds the pipeline, starts the health server and the Temporal worker,
// and blocks until ctx is done. Hooks registered before a failure still run.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdown *server.ShutdownHandler) (err error) {
	defer func() {
		if err != nil {
			_ = shutdown.Shutdown()
		}
	}()

	comps, err := pipeline.Build(cfg, logger)
	if err != nil {
		return err
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	health := server.NewHealthServer(&server.HealthConfig{
		Version: version,
		Metrics: observability.Metrics().Handler(),
		Logger:  logger,
	})
	health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	health.RegisterCheck("vector", server.VectorHealthChecker(cfg.Vector.Backend, vectorPing(cfg.Vector)))
	health.RegisterCheck("llm", server.LLMHealthChecker(cfg.LLM.Provider, cfg.LLM.Model))

	httpCtx, stopHTTP := context.WithCancel(context.Background())
	httpDone := make(chan error, 1)
	go func() { httpDone <- health.ListenAndServe(httpCtx, cfg.Server.HealthAddr) }()
	shutdown.RegisterHook("http", server.PriorityHTTP, func(context.Context) error {
		stopHTTP()
		return <-httpDone
	})

	w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue, &temporal.Activities{
		Source:    comps.Source,
		MapReduce: comps.MapReduce,
		RAG:       comps.RAG,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	shutdown.RegisterHook("worker", server.PriorityWorker, func(context.Context) error {
		w.Stop()
		return nil
	})
	shutdown.RegisterHook("readiness", server.PriorityReadiness, func(context.Context) error {
		health.SetReady(false)
		return nil
	})
	health.SetReady(true)

	logger.Info("worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"vector", cfg.Vector.Backend,
		"health_addr", cfg.Server.HealthAddr,
	)

	waitErr := shutdown.Wait(ctx)
	logger.Info("worker stopped")
	return waitErr
}

// vectorPing checks the configured vector backend. The in-memory backend is
// always available.
func vectorPing(cfg config.VectorConfig) func(ctx context.Context) error {
	switch cfg.Backend {
	case "qdrant":
		return func(ctx context.Context) error {
			return qdrant.Ping(ctx, cfg.Host, cfg.Port)
		}
	case "neo4j":
		return func(ctx context.Context) error {
			return neo4j.Ping(ctx, pipeline.Neo4jConfig(cfg.Neo4j))
		}
	default:
		return func(context.Context) error { return nil }
	}
}
