// Command lorekeeper is the entry point for the Lorekeeper campaign assistant.
//
// Subcommands:
//
//	serve   run the HTTP API
//	ask     answer one question from the terminal
//	import  load a campaign file and index it
//	mcp     expose the lore as MCP tools over stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lorekeeper/internal/app"
	"github.com/MrWong99/lorekeeper/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lorekeeper",
		Short:         "Lorekeeper - answers questions about your tabletop campaign",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newImportCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// runtime is a started application plus the pieces the commands need to
// tear it down.
type runtime struct {
	cfg      *config.Config
	app      *app.App
	logLevel *slog.LevelVar
}

// bootstrap loads the config, installs the logger, builds the providers and
// creates the application. Logs go to logOut.
func bootstrap(ctx context.Context, configPath string, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return start(ctx, cfg, logOut)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return cfg, err
}

// start is bootstrap for an already loaded config.
func start(ctx context.Context, cfg *config.Config, logOut io.Writer) (*runtime, error) {
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(logOut, level))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	a, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, app: a, logLevel: level}, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
