package lore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SourcesVersion is the payload version written by [Sources.MarshalJSON].
const SourcesVersion = 1

// ErrUnsupportedSourceVersion is returned when a persisted sources payload
// carries a version no decoder is registered for.
var ErrUnsupportedSourceVersion = errors.New("lore: unsupported sources version")

// Source is one entry of a [Sources] payload.
type Source struct {
	Type ContentType `json:"type"`
	ID   string      `json:"id"`
}

// Sources is the versioned list of records an answer was grounded on.
//
// The wire form is:
//
//	{"source_version": 1, "sources": [{"type": "character", "id": "42"}]}
//
// Decoding dispatches on source_version so that future versions can be read
// alongside old rows.
type Sources struct {
	Version int
	Items   []Source
}

// NewSources builds a current-version payload from refs, dropping duplicate
// keys while keeping first occurrences.
func NewSources(refs ...Ref) Sources {
	s := Sources{Version: SourcesVersion, Items: []Source{}}
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		s.Items = append(s.Items, Source{Type: r.Type, ID: r.ID})
	}
	return s
}

// Refs returns the payload entries as refs.
func (s Sources) Refs() []Ref {
	out := make([]Ref, len(s.Items))
	for i, it := range s.Items {
		out[i] = Ref{Type: it.Type, ID: it.ID}
	}
	return out
}

// EntityRefs returns the refs that point at entities, skipping game logs.
func (s Sources) EntityRefs() []Ref {
	var out []Ref
	for _, r := range s.Refs() {
		if r.Type.IsEntity() {
			out = append(out, r)
		}
	}
	return out
}

type sourcesV1 struct {
	Version int      `json:"source_version"`
	Sources []Source `json:"sources"`
}

// sourceDecoders maps a payload version to its decoder.
var sourceDecoders = map[int]func([]byte) (Sources, error){
	1: decodeSourcesV1,
}

func decodeSourcesV1(data []byte) (Sources, error) {
	var v sourcesV1
	if err := json.Unmarshal(data, &v); err != nil {
		return Sources{}, err
	}
	out := Sources{Version: 1, Items: make([]Source, 0, len(v.Sources))}
	for _, it := range v.Sources {
		if !it.Type.IsValid() {
			return Sources{}, fmt.Errorf("lore: unknown source type %q", it.Type)
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}

// MarshalJSON implements [json.Marshaler]. It always writes the current
// version.
func (s Sources) MarshalJSON() ([]byte, error) {
	items := s.Items
	if items == nil {
		items = []Source{}
	}
	return json.Marshal(sourcesV1{Version: SourcesVersion, Sources: items})
}

// UnmarshalJSON implements [json.Unmarshaler]. A JSON null or an empty object
// decodes to an empty payload.
func (s *Sources) UnmarshalJSON(data []byte) error {
	var head struct {
		Version *int `json:"source_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("lore: decode sources: %w", err)
	}
	if head.Version == nil {
		*s = NewSources()
		return nil
	}
	dec, ok := sourceDecoders[*head.Version]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedSourceVersion, *head.Version)
	}
	out, err := dec(data)
	if err != nil {
		return fmt.Errorf("lore: decode sources v%d: %w", *head.Version, err)
	}
	*s = out
	return nil
}
