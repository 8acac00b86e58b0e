package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// Guard wraps a [lore.ChatStore] and makes turn persistence non-fatal. If the
// underlying store fails to append or list messages, Guard logs a warning and
// returns defaults instead of propagating the error, so a question is still
// answered while the chat backend is unavailable. [Guard.IsDegraded] reports
// whether the most recent guarded operation failed.
//
// Session lookup, creation and memory updates are passed through unchanged:
// a missing session must stay an error.
//
// Guard implements [lore.ChatStore]. All methods are safe for concurrent use.
type Guard struct {
	lore.ChatStore
	degraded atomic.Bool
}

// NewGuard creates a new [Guard] wrapping the given store.
func NewGuard(store lore.ChatStore) *Guard {
	return &Guard{ChatStore: store}
}

// AppendMessage attempts to store m. On failure the error is logged and
// swallowed, m is returned unchanged, and the store is marked as degraded.
func (g *Guard) AppendMessage(ctx context.Context, m lore.ChatMessage) (lore.ChatMessage, error) {
	stored, err := g.ChatStore.AppendMessage(ctx, m)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("chat guard: AppendMessage failed, swallowing error",
			"session_id", m.SessionID,
			"err", err,
		)
		return m, nil
	}
	g.degraded.Store(false)
	return stored, nil
}

// Messages attempts to list the session's messages. On failure an empty slice
// is returned and the store is marked as degraded.
func (g *Guard) Messages(ctx context.Context, sessionID string, limit int) ([]lore.ChatMessage, error) {
	msgs, err := g.ChatStore.Messages(ctx, sessionID, limit)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("chat guard: Messages failed, returning empty",
			"session_id", sessionID,
			"err", err,
		)
		return []lore.ChatMessage{}, nil
	}
	g.degraded.Store(false)
	return msgs, nil
}

// IsDegraded reports whether the most recent guarded operation failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

var _ lore.ChatStore = (*Guard)(nil)
