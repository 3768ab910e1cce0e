package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"course-rag/internal/config"
)

// Chunk policies. Both are always available; configuration decides which one
// a course uses. The paragraph policy groups extracted paragraphs into fixed
// windows; the character policy splits the joined text into fixed-size
// character windows with overlap.
const (
	PolicyParagraph = "paragraph"
	PolicyCharacter = "character"
)

var (
	letterRE  = regexp.MustCompile(`[A-Za-z]`)
	tabRE     = regexp.MustCompile(`\t`)
	spaceRE   = regexp.MustCompile(`  +`)
	newlineRE = regexp.MustCompile(`\n\n+`)
)

// Chunker turns a document's paragraphs into chunk texts ready for embedding.
type Chunker struct {
	policy   string
	window   int
	step     int
	splitter textsplitter.RecursiveCharacter
}

// New builds a Chunker from configuration.
func New(cfg config.ChunkingConfig) (*Chunker, error) {
	switch cfg.Policy {
	case PolicyParagraph:
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("paragraph window must be positive, got %d", cfg.Window)
		}
		step := cfg.Step
		if step <= 0 || step > cfg.Window {
			step = cfg.Window
		}
		return &Chunker{policy: cfg.Policy, window: cfg.Window, step: step}, nil
	case PolicyCharacter:
		if cfg.Size <= 0 {
			return nil, fmt.Errorf("character chunk size must be positive, got %d", cfg.Size)
		}
		overlap := cfg.Overlap
		if overlap < 0 || overlap >= cfg.Size {
			overlap = 0
		}
		sp := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.Size),
			textsplitter.WithChunkOverlap(overlap),
		)
		return &Chunker{policy: cfg.Policy, splitter: sp}, nil
	}
	return nil, fmt.Errorf("unknown chunking policy %q", cfg.Policy)
}

// Chunk produces the chunk sequence for one document. Chunks with no
// alphabetic content (tables of numbers, blank slides) are dropped, never
// stored. The result is deterministic for identical input and configuration.
func (c *Chunker) Chunk(paragraphs []string) ([]string, error) {
	if c.policy == PolicyCharacter {
		return c.chunkCharacters(paragraphs)
	}
	return c.chunkParagraphs(paragraphs), nil
}

func (c *Chunker) chunkParagraphs(paragraphs []string) []string {
	var chunks []string
	for i := 0; i < len(paragraphs); i += c.step {
		end := i + c.window
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		window := make([]string, end-i)
		for j, p := range paragraphs[i:end] {
			window[j] = Normalize(p)
		}
		text := strings.Join(window, "\n\n")
		if letterRE.MatchString(text) {
			chunks = append(chunks, text)
		}
		if end == len(paragraphs) {
			break
		}
	}
	return chunks
}

func (c *Chunker) chunkCharacters(paragraphs []string) ([]string, error) {
	text := strings.Join(paragraphs, "\n\n")
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	var chunks []string
	for _, part := range parts {
		part = Normalize(part)
		if letterRE.MatchString(part) {
			chunks = append(chunks, part)
		}
	}
	return chunks, nil
}

// Normalize collapses runs of tabs and spaces and multiple newlines so
// chunk text stays compact in prompts.
func Normalize(s string) string {
	s = tabRE.ReplaceAllString(s, " ")
	s = spaceRE.ReplaceAllString(s, " ")
	s = newlineRE.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
