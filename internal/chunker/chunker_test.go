package chunker

import (
	"reflect"
	"testing"

	"course-rag/internal/config"
)

func paragraphChunker(t *testing.T, window, step int) *Chunker {
	t.Helper()
	c, err := New(config.ChunkingConfig{Policy: PolicyParagraph, Window: window, Step: step})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	if _, err := New(config.ChunkingConfig{Policy: "semantic"}); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestNewRejectsNonPositiveWindow(t *testing.T) {
	if _, err := New(config.ChunkingConfig{Policy: PolicyParagraph, Window: 0}); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestParagraphWindows(t *testing.T) {
	c := paragraphChunker(t, 2, 1)
	got, err := c.Chunk([]string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	want := []string{"alpha\n\nbeta", "beta\n\ngamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chunks = %q, want %q", got, want)
	}
}

func TestParagraphFewerThanWindow(t *testing.T) {
	c := paragraphChunker(t, 5, 2)
	got, err := c.Chunk([]string{"only one paragraph"})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(got) != 1 || got[0] != "only one paragraph" {
		t.Errorf("chunks = %q, want single paragraph", got)
	}
}

func TestChunkDropsNonAlphabetic(t *testing.T) {
	c := paragraphChunker(t, 1, 1)
	got, err := c.Chunk([]string{"12 34 56", "---", "real words", "7%"})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"real words"}) {
		t.Errorf("chunks = %q, want only the alphabetic paragraph", got)
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := paragraphChunker(t, 3, 2)
	in := []string{"a one", "b two", "c three", "d four", "e five"}
	first, err := c.Chunk(in)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	second, err := c.Chunk(in)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated runs differ: %q vs %q", first, second)
	}
}

func TestCharacterPolicySplitsAndFilters(t *testing.T) {
	c, err := New(config.ChunkingConfig{Policy: PolicyCharacter, Size: 40, Overlap: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	paragraphs := []string{
		"The quick brown fox jumps over the lazy dog.",
		"Pack my box with five dozen liquor jugs.",
	}
	got, err := c.Chunk(paragraphs)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected text split into multiple chunks, got %d", len(got))
	}
	for _, chunk := range got {
		if chunk == "" {
			t.Error("empty chunk emitted")
		}
		if len(chunk) > 45 {
			t.Errorf("chunk longer than configured size: %q", chunk)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a\tb", "a b"},
		{"a    b", "a b"},
		{"a\n\n\nb", "a\nb"},
		{"  padded  ", "padded"},
		{"mixed\t\t  ws\n\n\nhere", "mixed ws\nhere"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
