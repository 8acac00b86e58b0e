package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lorekeeper/internal/chat"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

type askOptions struct {
	sessionID string
	threshold float64
	types     []string
	asJSON    bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer one question about the campaign",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := chat.Request{
				SessionID: opts.sessionID,
				Message:   strings.Join(args, " "),
			}
			if cmd.Flags().Changed("threshold") {
				req.SimilarityThreshold = &opts.threshold
			}
			for _, t := range opts.types {
				req.ContentTypes = append(req.ContentTypes, lore.ContentType(t))
			}
			return runAsk(cmd.Context(), root.configPath, req, opts.asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "chat session to ask in")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "similarity threshold for this question")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "restrict the answer to these content types")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func runAsk(ctx context.Context, configPath string, req chat.Request, asJSON bool, out io.Writer) error {
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

	resp, err := rt.app.Ask(ctx, req)
	if err != nil {
		return err
	}
	return printAnswer(out, resp, asJSON)
}

// printAnswer writes resp as plain text followed by its sources, or as
// indented JSON.
func printAnswer(w io.Writer, resp *chat.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if _, err := fmt.Fprintln(w, resp.Response); err != nil {
		return err
	}
	if len(resp.Sources.Items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("\nSources:\n")
	for _, s := range resp.Sources.Items {
		fmt.Fprintf(&sb, "  - %s/%s\n", s.Type, s.ID)
	}
	if resp.Cached {
		sb.WriteString("(cached)\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
