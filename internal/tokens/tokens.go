// Package tokens counts model tokens and tracks token budgets.
//
// A Counter uses a tiktoken BPE encoding for the configured model, falling back
// to the cl100k_base encoding and finally to a characters/4 heuristic when no
// encoding can be loaded (for example when the BPE ranks cannot be fetched).
// Every budget decision in the retrieval pipeline goes through a Counter so that
// the memory manager and the context assembler agree on what a token is.
package tokens

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when the model has no registered encoding.
const fallbackEncoding = "cl100k_base"

// charsPerToken is the heuristic ratio used when no encoding is available.
const charsPerToken = 4

// Counter counts tokens in text. The zero value is not usable; construct one
// with [New] or [Heuristic]. A Counter is safe for concurrent use.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New returns a Counter for model. It never fails: if neither the model's
// encoding nor cl100k_base can be loaded the Counter degrades to the
// characters/4 heuristic and logs a warning once.
func New(model string) *Counter {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &Counter{enc: enc}
		}
	}
	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		slog.Warn("tokens: no BPE encoding available, using heuristic", "model", model, "err", err)
		return Heuristic()
	}
	return &Counter{enc: enc}
}

// Heuristic returns a Counter that always estimates one token per four
// characters.
func Heuristic() *Counter {
	return &Counter{}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.enc == nil {
		return utf8.RuneCountInString(text) / charsPerToken
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// CountAll returns the sum of Count over texts.
func (c *Counter) CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
