package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lorekeeper/internal/api"
	"github.com/MrWong99/lorekeeper/internal/config"
	"github.com/MrWong99/lorekeeper/internal/observe"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.configPath, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file when it changes")
	return cmd
}

func runServe(parent context.Context, configPath string, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Telemetry goes first so the application's instruments bind to the
	// Prometheus-backed meter provider.
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	rt, err := start(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}

	slog.Info("lorekeeper starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"llm", providerLabel(cfg.Providers.LLM),
		"embeddings", providerLabel(cfg.Providers.Embeddings),
		"cache", cfg.Cache.Enabled,
	)

	if err := rt.app.StartCachePurger(); err != nil {
		return err
	}

	if watch {
		w, err := config.NewWatcher(configPath, rt.app.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	var certFile, keyFile string
	if tls := cfg.Server.TLS; tls != nil {
		certFile, keyFile = tls.CertFile, tls.KeyFile
	}
	apiOpts := api.Options{Health: rt.app.Health(), Metrics: rt.app.Metrics()}
	if fb := rt.app.Feedback(); fb != nil {
		apiOpts.Feedback = fb
		slog.Info("answer feedback enabled", "path", fb.Path())
	}
	srv := api.New(rt.app, apiOpts)
	serveErr := srv.ListenAndServe(ctx, cfg.Server.ListenAddr, certFile, keyFile)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := rt.app.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	slog.Info("goodbye")
	return nil
}
