// Package mcpserver exposes campaign lookups as Model Context Protocol tools
// so that MCP clients (desktop assistants, IDE agents) can query the lore.
//
// Three tools are registered:
//
//   - ask_lore answers a question with the full retrieval pipeline.
//   - resolve_entities lists the campaign entities mentioned in a text.
//   - roll_dice evaluates a dice expression such as 2d6+3.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/lorekeeper/internal/chat"
	"github.com/MrWong99/lorekeeper/internal/dice"
	"github.com/MrWong99/lorekeeper/internal/resolve"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// Tool names.
const (
	ToolAskLore         = "ask_lore"
	ToolResolveEntities = "resolve_entities"
	ToolRollDice        = "roll_dice"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Resolver finds entity mentions.
type Resolver interface {
	Resolve(ctx context.Context, text string) ([]resolve.Resolution, error)
}

// Server is an MCP server backed by the chat pipeline.
type Server struct {
	srv      *mcpsdk.Server
	asker    Asker
	resolver Resolver
	roller   dice.Roller
}

// New creates a Server with all tools registered.
func New(asker Asker, resolver Resolver, version string) *Server {
	s := &Server{
		srv:      mcpsdk.NewServer(&mcpsdk.Implementation{Name: "lorekeeper", Version: version}, nil),
		asker:    asker,
		resolver: resolver,
	}

	s.srv.AddTool(&mcpsdk.Tool{
		Name:        ToolAskLore,
		Description: "Answer a question about the tabletop campaign from its characters, places, items and session logs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "description": "The question to answer."},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Optional chat session for follow-up questions.",
				},
				"similarity_threshold": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				"content_types": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": contentTypeNames()},
				},
			},
			"required": []string{"question"},
		},
	}, s.askLore)

	s.srv.AddTool(&mcpsdk.Tool{
		Name:        ToolResolveEntities,
		Description: "List the campaign entities mentioned in a text, tolerating misspellings.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
	}, s.resolveEntities)

	s.srv.AddTool(&mcpsdk.Tool{
		Name:        ToolRollDice,
		Description: "Roll dice in standard notation, e.g. 2d6+3, d20 or 4d8-1. Returns each die and the total.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string"},
			},
			"required": []string{"expression"},
		},
	}, s.rollDice)

	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.srv }

// Run serves a single client over t until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	return s.srv.Run(ctx, t)
}

// RunStdio serves over stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcpsdk.StdioTransport{})
}

type askArgs struct {
	Question            string   `json:"question"`
	SessionID           string   `json:"session_id"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	ContentTypes        []string `json:"content_types"`
}

func (s *Server) askLore(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args askArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError(err), nil
	}
	types := make([]lore.ContentType, len(args.ContentTypes))
	for i, t := range args.ContentTypes {
		types[i] = lore.ContentType(t)
	}

	resp, err := s.asker.Ask(ctx, chat.Request{
		SessionID:           args.SessionID,
		Message:             args.Question,
		SimilarityThreshold: args.SimilarityThreshold,
		ContentTypes:        types,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return toolError(err), nil
	}

	var sb strings.Builder
	sb.WriteString(resp.Response)
	if len(resp.Sources.Items) > 0 {
		sb.WriteString("\n\nSources:")
		for _, src := range resp.Sources.Items {
			fmt.Fprintf(&sb, "\n- %s/%s", src.Type, src.ID)
		}
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: sb.String()}}}, nil
}

type resolveArgs struct {
	Text string `json:"text"`
}

// entityMatch is one element of the resolve_entities result.
type entityMatch struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Alias      string  `json:"alias"`
	Similarity float64 `json:"similarity"`
	Phonetic   bool    `json:"phonetic,omitempty"`
}

func (s *Server) resolveEntities(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args resolveArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError(err), nil
	}
	if strings.TrimSpace(args.Text) == "" {
		return toolError(errors.New("text is required")), nil
	}

	res, err := s.resolver.Resolve(ctx, args.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return toolError(err), nil
	}

	out := make([]entityMatch, len(res))
	for i, r := range res {
		out[i] = entityMatch{
			ID:         r.Entity.ID,
			Type:       string(r.Entity.Type),
			Name:       r.Entity.Name,
			Alias:      r.Alias,
			Similarity: r.Similarity,
			Phonetic:   r.Phonetic,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}}}, nil
}

type rollArgs struct {
	Expression string `json:"expression"`
}

func (s *Server) rollDice(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args rollArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError(err), nil
	}
	res, err := s.roller.Roll(args.Expression)
	if err != nil {
		return toolError(err), nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}}}, nil
}

func decodeArgs(req *mcpsdk.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return errors.New("missing arguments")
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func toolError(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

func contentTypeNames() []string {
	names := make([]string, len(lore.AllContentTypes))
	for i, t := range lore.AllContentTypes {
		names[i] = string(t)
	}
	return names
}
