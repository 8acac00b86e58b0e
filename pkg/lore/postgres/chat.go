package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// CreateSession implements [lore.ChatStore].
func (s *Store) CreateSession(ctx context.Context, userID, title string) (lore.ChatSession, error) {
	const q = `
		INSERT INTO chat_sessions (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, title, summary, created_at, updated_at`

	row := s.pool.QueryRow(ctx, q, uuid.NewString(), userID, title)
	sess, err := scanSession(row)
	if err != nil {
		return lore.ChatSession{}, fmt.Errorf("chat store: create session: %w", err)
	}
	return sess, nil
}

// Session implements [lore.ChatStore].
func (s *Store) Session(ctx context.Context, id string) (lore.ChatSession, error) {
	const q = `SELECT id, user_id, title, summary, created_at, updated_at FROM chat_sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return lore.ChatSession{}, fmt.Errorf("chat store: session %q: %w", id, lore.ErrNotFound)
	}
	if err != nil {
		return lore.ChatSession{}, fmt.Errorf("chat store: session %q: %w", id, err)
	}
	return sess, nil
}

func scanSession(row pgx.Row) (lore.ChatSession, error) {
	var sess lore.ChatSession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Summary, &sess.CreatedAt, &sess.UpdatedAt)
	return sess, err
}

// AppendMessage implements [lore.ChatStore].
func (s *Store) AppendMessage(ctx context.Context, m lore.ChatMessage) (lore.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return lore.ChatMessage{}, fmt.Errorf("chat store: encode sources: %w", err)
	}
	types := make([]string, len(m.ContentTypes))
	for i, t := range m.ContentTypes {
		types[i] = string(t)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insert = `
			INSERT INTO chat_messages
			    (id, session_id, message, response, tokens_used, similarity_threshold,
			     content_types, sources, included_in_summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at`
		if err := tx.QueryRow(ctx, insert,
			m.ID, m.SessionID, m.Message, m.Response, m.TokensUsed, m.SimilarityThreshold,
			types, sources, m.IncludedInSummary,
		).Scan(&m.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, m.SessionID)
		return err
	})
	if err != nil {
		return lore.ChatMessage{}, fmt.Errorf("chat store: append message: %w", err)
	}
	return m, nil
}

const selectMessages = `
	SELECT id, session_id, message, response, tokens_used, similarity_threshold,
	       content_types, sources, included_in_summary, created_at
	FROM   chat_messages`

// Messages implements [lore.ChatStore].
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]lore.ChatMessage, error) {
	args := []any{sessionID}
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = "LIMIT $2"
	}
	// Newest first for LIMIT, then reversed to chronological order.
	q := selectMessages + `
	WHERE  session_id = $1
	ORDER  BY created_at DESC, id DESC
	` + limitClause

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("chat store: messages: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("chat store: scan messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []lore.ChatMessage{}
	}
	return out, nil
}

func scanMessage(row pgx.CollectableRow) (lore.ChatMessage, error) {
	var (
		m       lore.ChatMessage
		types   []string
		sources []byte
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.Message, &m.Response, &m.TokensUsed,
		&m.SimilarityThreshold, &types, &sources, &m.IncludedInSummary, &m.CreatedAt); err != nil {
		return lore.ChatMessage{}, err
	}
	for _, t := range types {
		m.ContentTypes = append(m.ContentTypes, lore.ContentType(t))
	}
	if err := json.Unmarshal(sources, &m.Sources); err != nil {
		return lore.ChatMessage{}, err
	}
	return m, nil
}

// UpdateMemory implements [lore.ChatStore]. The session row is locked with
// SELECT … FOR UPDATE for the duration of fn, so concurrent folds of the same
// session are serialised and a message is never folded twice.
func (s *Store) UpdateMemory(ctx context.Context, sessionID string, fn func(lore.MemorySnapshot) (lore.MemoryUpdate, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chat store: update memory: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := scanSession(tx.QueryRow(ctx,
		`SELECT id, user_id, title, summary, created_at, updated_at FROM chat_sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("chat store: update memory of %q: %w", sessionID, lore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("chat store: update memory: lock session: %w", err)
	}

	rows, err := tx.Query(ctx, selectMessages+`
	WHERE  session_id = $1 AND NOT included_in_summary
	ORDER  BY created_at DESC, id DESC`, sessionID)
	if err != nil {
		return fmt.Errorf("chat store: update memory: load messages: %w", err)
	}
	unfolded, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return fmt.Errorf("chat store: update memory: scan messages: %w", err)
	}

	upd, err := fn(lore.MemorySnapshot{Session: sess, Unfolded: unfolded})
	if err != nil {
		return err
	}
	if len(upd.Fold) == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_messages SET included_in_summary = true WHERE session_id = $1 AND id = ANY($2)`,
		sessionID, upd.Fold,
	); err != nil {
		return fmt.Errorf("chat store: update memory: mark folded: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET summary = $2, updated_at = now() WHERE id = $1`,
		sessionID, upd.Summary,
	); err != nil {
		return fmt.Errorf("chat store: update memory: write summary: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chat store: update memory: commit: %w", err)
	}
	return nil
}
