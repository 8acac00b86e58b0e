package postgres

import "testing"

func TestOrQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{name: "single", terms: []string{"Rivendell"}, want: "rivendell"},
		{name: "phrase", terms: []string{"Grey Pilgrim", "Gandalf"}, want: "(grey <-> pilgrim) | gandalf"},
		{name: "operators stripped", terms: []string{"a & b", "c:*", "!d"}, want: "(a <-> b) | c | d"},
		{name: "duplicates", terms: []string{"Moria", "moria"}, want: "moria"},
		{name: "empty", terms: []string{"", "  ", "!!"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orQuery(tt.terms); got != tt.want {
				t.Errorf("orQuery(%q) = %q, want %q", tt.terms, got, tt.want)
			}
		})
	}
}
