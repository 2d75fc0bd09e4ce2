package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortIsUnchanged(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	lines := []string{"1. One Piece", "2. Blue Lock", "3. Frieren", "4. Dandadan"}
	in := strings.Join(lines, "\n")

	got := splitText(in, 30)
	for _, chunk := range got {
		if utf8.RuneCountInString(chunk) > 30 {
			t.Fatalf("chunk too long: %q", chunk)
		}
		if strings.HasPrefix(chunk, "\n") || strings.HasSuffix(chunk, "\n") {
			t.Fatalf("chunk has edge newline: %q", chunk)
		}
	}
	if joined := strings.Join(got, "\n"); joined != in {
		t.Fatalf("lost content:\n%q\n%q", joined, in)
	}
	if got[0] != "1. One Piece\n2. Blue Lock" {
		t.Fatalf("first chunk=%q", got[0])
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("📢", 25)
	got := splitText(in, 10)
	if len(got) != 3 {
		t.Fatalf("chunks=%d", len(got))
	}
	for _, c := range got[:2] {
		if utf8.RuneCountInString(c) != 10 {
			t.Fatalf("chunk=%q", c)
		}
	}
}
