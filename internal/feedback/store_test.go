package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestFileStore_Save(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fs := NewFileStore(path)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := fs.Save(ctx, Record{SessionID: "s1", MessageID: "m1", Rating: RatingUp}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stamped := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := fs.Save(ctx, Record{SessionID: "s1", MessageID: "m2", Rating: RatingDown, Comment: "wrong NPC", Timestamp: stamped}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := readRecords(t, path)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("first timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
	if !got[1].Timestamp.Equal(stamped) {
		t.Errorf("explicit timestamp overwritten: %v", got[1].Timestamp)
	}
	if got[1].Rating != RatingDown || got[1].Comment != "wrong NPC" || got[1].MessageID != "m2" {
		t.Errorf("second record = %+v", got[1])
	}
}

func TestFileStore_Save_Rejects(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fs := NewFileStore(path)

	if err := fs.Save(context.Background(), Record{Rating: "meh"}); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("invalid rating: err = %v, want ErrInvalidRating", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fs.Save(ctx, Record{Rating: RatingUp}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx: err = %v, want context.Canceled", err)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rejected saves must not create the file, stat err = %v", err)
	}
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fs := NewFileStore(path)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := Record{SessionID: "s", MessageID: string(rune('a' + i%26)), Rating: RatingUp}
			if err := fs.Save(context.Background(), r); err != nil {
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(readRecords(t, path)); got != n {
		t.Errorf("got %d records, want %d", got, n)
	}
}
