package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lorekeeper/internal/entity"
)

// Campaign file formats accepted by the import command.
const (
	formatYAML    = "yaml"
	formatFoundry = "foundry"
	formatRoll20  = "roll20"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load campaign files into the store and index them",
		Long: `Load one or more campaign files, merge them in order and import the result.

The format of each file is detected from its extension and, for JSON, from
its top-level keys; --format forces one format for every file. Foundry VTT
journal entries and Roll20 handouts become session logs numbered after the
sessions of the files before them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := loadCampaigns(args, format)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), root.configPath, cf, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "input format for every file: yaml, foundry or roll20 (default: detect)")
	return cmd
}

// loadCampaigns parses every path and merges them into one campaign.
func loadCampaigns(paths []string, format string) (*entity.CampaignFile, error) {
	merged := &entity.CampaignFile{}
	for _, path := range paths {
		cf, err := loadCampaign(path, format)
		if err != nil {
			return nil, err
		}
		merged.Merge(cf)
	}
	return merged, nil
}

func loadCampaign(path, format string) (*entity.CampaignFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == "" {
		if format, err = detectFormat(path, data); err != nil {
			return nil, err
		}
	}

	var parse func(io.Reader) (*entity.CampaignFile, error)
	switch format {
	case formatYAML:
		parse = entity.LoadCampaignFromReader
	case formatFoundry:
		parse = entity.ParseFoundryVTT
	case formatRoll20:
		parse = entity.ParseRoll20
	default:
		return nil, fmt.Errorf("unknown format %q (want %s, %s or %s)", format, formatYAML, formatFoundry, formatRoll20)
	}
	cf, err := parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf, nil
}

// detectFormat picks a format from the file extension. JSON exports are told
// apart by their top-level keys.
func detectFormat(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".json":
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(data, &keys); err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		for _, k := range []string{"actors", "journal"} {
			if _, ok := keys[k]; ok {
				return formatFoundry, nil
			}
		}
		for _, k := range []string{"characters", "handouts"} {
			if _, ok := keys[k]; ok {
				return formatRoll20, nil
			}
		}
	}
	return "", fmt.Errorf("cannot detect the format of %q; use --format", path)
}

func runImport(ctx context.Context, configPath string, cf *entity.CampaignFile, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := bootstrap(ctx, configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.app.Shutdown(shutdownCtx)
	}()

	if rt.cfg.Storage.PostgresDSN == "" {
		slog.Warn("importing into the in-memory store; nothing will persist after this command")
	}

	start := time.Now()
	report, err := rt.app.Importer().Import(ctx, cf)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "imported %d entities and %d logs (%d chunks) in %s\n",
		report.Entities, report.Logs, report.Chunks, time.Since(start).Round(time.Millisecond))
	return err
}
