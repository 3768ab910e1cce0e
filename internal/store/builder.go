package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// Builder assembles a fresh store at a temporary path. Commit atomically
// renames it over the live path; until then the previous store stays valid,
// and an interrupted build leaves it untouched.
//
// AddDocument is safe for concurrent use by ingestion workers; each call is
// one short transaction so no lock is held across network calls.
type Builder struct {
	db       *bun.DB
	tmpPath  string
	livePath string

	mu  sync.Mutex
	dim int
}

// NewBuilder creates the temporary store and its schema. A stale temporary
// file from an interrupted run is removed first.
func NewBuilder(livePath string, debug bool) (*Builder, error) {
	tmpPath := livePath + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale temp store: %w", err)
	}

	db, err := open(tmpPath+"?_busy_timeout=10000", debug)
	if err != nil {
		return nil, err
	}

	b := &Builder{db: db, tmpPath: tmpPath, livePath: livePath}
	if err := b.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return b, nil
}

func (b *Builder) createSchema(ctx context.Context) error {
	if _, err := b.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := b.db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().
		ForeignKey(`("doc_id") REFERENCES documents ("doc_id")`).
		Exec(ctx)
	return err
}

// AddDocument appends one document row and its chunk rows in a single
// transaction. Chunk texts and vectors are parallel slices; every vector
// must match the store's dimension, fixed by the first document added.
func (b *Builder) AddDocument(ctx context.Context, doc Document, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("%d chunk texts but %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return fmt.Errorf("document %s has no chunks", doc.FilePath)
	}
	if err := b.checkDimension(vectors); err != nil {
		return err
	}

	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&doc).Exec(ctx); err != nil {
			return fmt.Errorf("inserting document %s: %w", doc.FilePath, err)
		}
		chunks := make([]Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = Chunk{
				DocID:     doc.ID,
				Text:      text,
				Embedding: EncodeVector(vectors[i]),
			}
		}
		if _, err := tx.NewInsert().Model(&chunks).Exec(ctx); err != nil {
			return fmt.Errorf("inserting %d chunks for %s: %w", len(chunks), doc.FilePath, err)
		}
		return nil
	})
}

func (b *Builder) checkDimension(vectors [][]float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("empty embedding vector")
		}
		if b.dim == 0 {
			b.dim = len(vec)
		}
		if len(vec) != b.dim {
			return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(vec), b.dim)
		}
	}
	return nil
}

// Commit closes the temporary store and renames it over the live path.
// Only after the rename does the new store become visible to readers.
func (b *Builder) Commit() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing temp store: %w", err)
	}
	if err := os.Rename(b.tmpPath, b.livePath); err != nil {
		return fmt.Errorf("publishing store: %w", err)
	}
	log.Info().Str("path", b.livePath).Msg("store published")
	return nil
}

// Abort discards the temporary store, leaving the live store as it was.
func (b *Builder) Abort() {
	_ = b.db.Close()
	if err := os.Remove(b.tmpPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", b.tmpPath).Msg("could not remove temp store")
	}
}
