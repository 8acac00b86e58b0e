package lore

import "time"

// ChatSession is one conversation between a user and the assistant.
//
// Summary is the evolving rolled-up memory of older turns. It only changes
// through [ChatStore.UpdateMemory].
type ChatSession struct {
	ID        string
	UserID    string
	Title     string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one question/answer turn within a [ChatSession].
type ChatMessage struct {
	ID        string
	SessionID string

	// Message is the user's question.
	Message string

	// Response is the assistant's answer.
	Response string

	// TokensUsed is the generation service's total token count for the turn.
	TokensUsed int

	// SimilarityThreshold is the vector threshold the turn was answered with.
	SimilarityThreshold float64

	// ContentTypes lists the content types that were searched.
	ContentTypes []ContentType

	// Sources are the records the answer was grounded on.
	Sources Sources

	// IncludedInSummary is true once the turn has been folded into the session
	// summary. It never reverts to false.
	IncludedInSummary bool

	CreatedAt time.Time
}

// MemorySnapshot is the state handed to a [ChatStore.UpdateMemory] callback.
type MemorySnapshot struct {
	// Session is the session row as read under the lock.
	Session ChatSession

	// Unfolded holds every message with IncludedInSummary == false, newest
	// first.
	Unfolded []ChatMessage
}

// MemoryUpdate is what a [ChatStore.UpdateMemory] callback asks to persist.
// A zero MemoryUpdate persists nothing.
type MemoryUpdate struct {
	// Summary replaces the session summary when Fold is non-empty.
	Summary string

	// Fold lists message IDs to mark as included in the summary.
	Fold []string
}
