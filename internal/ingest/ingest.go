// Package ingest builds a course's chunk store from its corpus directory.
// Documents are processed concurrently by a bounded pool; a failure in one
// document's pipeline is logged and leaves that document out of the store,
// never aborting the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"

	"course-rag/internal/chunker"
	"course-rag/internal/config"
	"course-rag/internal/extractor"
	"course-rag/internal/models"
	"course-rag/internal/store"
)

// descriptionPrompt asks the helper model for the per-document description
// stored alongside each document and later shown to the selection stage.
const descriptionPrompt = "Please reply with a short description for the document below " +
	"(30 words or fewer). Your description does not need to be a complete sentence. " +
	"It should consist only of ASCII characters with no tabs, newlines, or form feeds. " +
	"Be sure to mention any authors, and the year of publication, if you can find them. " +
	"If the document is an exam, specify the semester, and which exam it was " +
	"(first midterm, second midterm, final exam, etc.). " +
	"Then at the end of the same line, list 5 or fewer keywords for the document's content. " +
	"If the document clearly does not belong in a course corpus, reply with \"Irrelevant\"."

// descriptionPrefixChars caps how much document text the description call
// sees, to bound token usage.
const descriptionPrefixChars = 5000

const descriptionMaxTokens = 200

// descriptionTimeout bounds each description call so a stuck request cannot
// hold a worker, and with it the rebuild, indefinitely.
const descriptionTimeout = 60 * time.Second

// Embedder is the part of the embedding client the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Added    int
	Skipped  int
	Failed   int
	Chunks   int
	Duration time.Duration
}

// Pipeline processes corpus files into a store.Builder.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	helper   llms.Model
	builder  *store.Builder
	cfg      config.IngestConfig

	// extract is swappable in tests; defaults to extractor.Paragraphs.
	extract func(path string) ([]string, error)

	mu    sync.Mutex
	stats Stats
}

// New wires a pipeline. The helper model generates document descriptions.
func New(ch *chunker.Chunker, embedder Embedder, helper llms.Model, builder *store.Builder, cfg config.IngestConfig) *Pipeline {
	return &Pipeline{
		chunker:  ch,
		embedder: embedder,
		helper:   helper,
		builder:  builder,
		cfg:      cfg,
		extract:  extractor.Paragraphs,
	}
}

// Run walks the corpus directory and processes every supported file through
// the bounded worker pool. Per-document failures are logged and counted, not
// returned; Run fails only if the corpus cannot be walked at all.
func (p *Pipeline) Run(ctx context.Context, corpusDir string) (Stats, error) {
	start := time.Now()

	var files []string
	err := filepath.WalkDir(corpusDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extractor.Supported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("walking corpus: %w", err)
	}
	log.Info().Int("files", len(files)).Str("dir", corpusDir).Msg("corpus scan complete")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, path := range files {
		path := path
		g.Go(func() error {
			switch err := p.processFile(ctx, path); {
			case err == nil:
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				log.Error().Err(err).Str("file", path).Msg("document failed, excluded from store")
				p.count(func(s *Stats) { s.Failed++ })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()
	stats.Duration = time.Since(start)
	return stats, nil
}

func (p *Pipeline) processFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	// Oversized files are a cost control, not an error.
	if info.Size() > p.cfg.MaxFileBytes {
		log.Info().Str("file", path).Int64("bytes", info.Size()).Msg("file above size ceiling, skipping")
		p.count(func(s *Stats) { s.Skipped++ })
		return nil
	}

	paragraphs, err := p.extract(path)
	if err != nil {
		if errors.Is(err, extractor.ErrUnsupported) {
			log.Info().Str("file", path).Msg("unsupported format, skipping")
			p.count(func(s *Stats) { s.Skipped++ })
			return nil
		}
		return fmt.Errorf("extracting: %w", err)
	}
	if len(paragraphs) == 0 {
		log.Info().Str("file", path).Msg("no text extracted, skipping")
		p.count(func(s *Stats) { s.Skipped++ })
		return nil
	}

	texts, err := p.chunker.Chunk(paragraphs)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if len(texts) == 0 {
		log.Info().Str("file", path).Msg("no chunks survived, skipping")
		p.count(func(s *Stats) { s.Skipped++ })
		return nil
	}

	description, err := p.describe(ctx, strings.Join(paragraphs, "\n\n"))
	if err != nil {
		return err
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	doc := store.Document{
		FilePath:    path,
		Description: description,
		SourceType:  models.ClassifySource(path),
	}
	if err := p.builder.AddDocument(ctx, doc, texts, vectors); err != nil {
		return err
	}

	p.count(func(s *Stats) {
		s.Added++
		s.Chunks += len(texts)
	})
	log.Info().Str("file", path).Int("chunks", len(texts)).Msg("document ingested")
	return nil
}

func (p *Pipeline) count(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *Pipeline) describe(ctx context.Context, text string) (string, error) {
	if len(text) > descriptionPrefixChars {
		cut := descriptionPrefixChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	ctx, cancel := context.WithTimeout(ctx, descriptionTimeout)
	defer cancel()

	resp, err := p.helper.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, descriptionPrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, text),
		},
		llms.WithMaxTokens(descriptionMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("description call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("description call returned no choices")
	}
	return resp.Choices[0].Content, nil
}
