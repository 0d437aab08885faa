package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sift/internal/config"
	"github.com/efebarandurmaz/sift/internal/observability"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:           "sift",
		Short:         "Answer questions about large documents and chat histories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: configs/sift.yaml or ./sift.yaml)")

	rootCmd.AddCommand(
		newAskCmd(&configPath),
		newChatCmd(&configPath),
		newSubmitCmd(&configPath),
		newProvidersCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is the configuration and ambient services shared by every command.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracing *observability.TracerProvider
}

// setup loads configuration, builds the logger and starts tracing. Logs go to
// stderr so answers on stdout stay pipeable.
func setup(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(logger)

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "sift",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return &env{cfg: cfg, logger: logger, tracing: tp}, nil
}

// close flushes pending spans.
func (e *env) close() {
	if err := e.tracing.Shutdown(context.Background()); err != nil {
		e.logger.Warn("tracing shutdown failed", "error", err)
	}
}
