package ingest

import (
	"strings"
	"unicode"
)

// Chunking defaults, in words.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100

	// DefaultSplitThreshold is the word count above which a text is split at
	// all. Shorter texts are embedded as one chunk.
	DefaultSplitThreshold = 1000
)

// maxRun is the longest run of one repeated character that [Clean] keeps.
const maxRun = 10

// boundaryRatio is how far into a chunk the last sentence end must be for
// the chunk to be cut there.
const boundaryRatio = 0.6

// Clean collapses whitespace runs into single spaces, squashes runs of more
// than ten identical characters (scanning artifacts, ASCII rulers) into one,
// and trims the result.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	runes := []rune(text)
	space := false
	for i := 0; i < len(runes); {
		r := runes[i]
		if unicode.IsSpace(r) {
			space = true
			i++
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false

		j := i + 1
		for j < len(runes) && runes[j] == r {
			j++
		}
		if n := j - i; n > maxRun {
			b.WriteRune(r)
		} else {
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

// Split cleans text and cuts it into chunks of at most size words, each
// starting overlap words before the end of the previous one. A chunk that is
// not the last is shortened to its final sentence end when that end lies past
// 60% of the chunk. Text of at most size words is one chunk.
func Split(text string, size, overlap int) []string {
	text = Clean(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(words); {
		end := min(start+size, len(words))
		chunk := strings.Join(words[start:end], " ")

		if end < len(words) && !strings.HasSuffix(chunk, ".") && !strings.HasSuffix(chunk, "!") && !strings.HasSuffix(chunk, "?") {
			if cut := strings.LastIndexAny(chunk, ".!?"); float64(cut) > float64(len(chunk))*boundaryRatio {
				chunk = chunk[:cut+1]
				end = start + len(strings.Fields(chunk))
			}
		}
		if c := strings.TrimSpace(chunk); c != "" {
			chunks = append(chunks, c)
		}
		if end >= len(words) {
			break
		}
		start = max(start+1, end-overlap)
	}
	return chunks
}
