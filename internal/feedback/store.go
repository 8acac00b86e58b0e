// Package feedback records how users rate individual answers. Ratings are
// appended as JSON lines to a local file so they can be reviewed offline
// when tuning retrieval.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Rating is a user's verdict on one answer.
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// ErrInvalidRating is returned by [FileStore.Save] for a rating other than
// [RatingUp] or [RatingDown].
var ErrInvalidRating = errors.New(`feedback: rating must be "up" or "down"`)

// Valid reports whether r is a known rating.
func (r Rating) Valid() bool {
	return r == RatingUp || r == RatingDown
}

// Record is a single feedback entry.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	Rating    Rating    `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
}

// FileStore persists feedback as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Save appends r to the file. A zero Timestamp is set to the current time.
func (fs *FileStore) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.Rating.Valid() {
		return ErrInvalidRating
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = fs.now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}
