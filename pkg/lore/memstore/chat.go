package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// CreateSession implements [lore.ChatStore].
func (s *Store) CreateSession(_ context.Context, userID, title string) (lore.ChatSession, error) {
	now := s.now()
	sess := lore.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Session implements [lore.ChatStore].
func (s *Store) Session(_ context.Context, id string) (lore.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return lore.ChatSession{}, fmt.Errorf("memstore: session %q: %w", id, lore.ErrNotFound)
	}
	return sess, nil
}

// AppendMessage implements [lore.ChatStore].
func (s *Store) AppendMessage(_ context.Context, m lore.ChatMessage) (lore.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[m.SessionID]
	if !ok {
		return lore.ChatMessage{}, fmt.Errorf("memstore: append message to %q: %w", m.SessionID, lore.ErrNotFound)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = s.now()
	m.ContentTypes = slices.Clone(m.ContentTypes)
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	sess.UpdatedAt = m.CreatedAt
	s.sessions[m.SessionID] = sess
	return m, nil
}

// Messages implements [lore.ChatStore].
func (s *Store) Messages(_ context.Context, sessionID string, limit int) ([]lore.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

// UpdateMemory implements [lore.ChatStore]. Calls for the same session are
// serialised by a per-session mutex; fn runs without holding the store lock.
func (s *Store) UpdateMemory(ctx context.Context, sessionID string, fn func(lore.MemorySnapshot) (lore.MemoryUpdate, error)) error {
	l, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	lock := l.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	var unfolded []lore.ChatMessage
	msgs := s.messages[sessionID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IncludedInSummary {
			unfolded = append(unfolded, msgs[i])
		}
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("memstore: update memory of %q: %w", sessionID, lore.ErrNotFound)
	}

	upd, err := fn(lore.MemorySnapshot{Session: sess, Unfolded: unfolded})
	if err != nil {
		return err
	}
	if len(upd.Fold) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fold := make(map[string]bool, len(upd.Fold))
	for _, id := range upd.Fold {
		fold[id] = true
	}
	msgs = s.messages[sessionID]
	for i := range msgs {
		if fold[msgs[i].ID] {
			msgs[i].IncludedInSummary = true
		}
	}
	sess = s.sessions[sessionID]
	sess.Summary = upd.Summary
	sess.UpdatedAt = s.now()
	s.sessions[sessionID] = sess
	return nil
}
