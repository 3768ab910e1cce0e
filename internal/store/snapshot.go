package store

import (
	"context"
	"fmt"
	"os"
)

// ChunkRecord is a chunk with its decoded embedding, ready for scoring.
type ChunkRecord struct {
	ID      int64
	DocID   int64
	DocPath string
	Text    string
	Vector  []float32
}

// Snapshot is a fully loaded, immutable view of one store file. All rows are
// read into memory at open and the database handle is closed again, so a
// Snapshot is safe for concurrent readers and can be swapped wholesale when
// a rebuild publishes a new store.
type Snapshot struct {
	docs   []Document
	byPath map[string]Document
	chunks []ChunkRecord
	dim    int
}

// Open loads the store at path. The file must exist (a rebuild publishes it
// atomically); every chunk's embedding must decode to the store's dimension.
func Open(path string, debug bool) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store not found: %w", err)
	}

	db, err := open("file:"+path+"?mode=ro", debug)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ctx := context.Background()

	var docs []Document
	if err := db.NewSelect().Model(&docs).Order("doc_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}

	byPath := make(map[string]Document, len(docs))
	byID := make(map[int64]string, len(docs))
	for _, doc := range docs {
		byPath[doc.FilePath] = doc
		byID[doc.ID] = doc.FilePath
	}

	var rows []Chunk
	if err := db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}

	snap := &Snapshot{docs: docs, byPath: byPath}
	snap.chunks = make([]ChunkRecord, 0, len(rows))
	for _, row := range rows {
		vec, err := DecodeVector(row.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", row.ID, err)
		}
		if snap.dim == 0 {
			snap.dim = len(vec)
		}
		if len(vec) != snap.dim {
			return nil, fmt.Errorf("chunk %d: dimension %d does not match store dimension %d", row.ID, len(vec), snap.dim)
		}
		snap.chunks = append(snap.chunks, ChunkRecord{
			ID:      row.ID,
			DocID:   row.DocID,
			DocPath: byID[row.DocID],
			Text:    row.Text,
			Vector:  vec,
		})
	}
	return snap, nil
}

// Documents returns all document rows in insertion order.
func (s *Snapshot) Documents() []Document { return s.docs }

// Lookup finds a document by file path.
func (s *Snapshot) Lookup(path string) (Document, bool) {
	doc, ok := s.byPath[path]
	return doc, ok
}

// Chunks returns all chunk records in id order.
func (s *Snapshot) Chunks() []ChunkRecord { return s.chunks }

// Dimension is the embedding dimension shared by every stored chunk.
func (s *Snapshot) Dimension() int { return s.dim }

// DocumentCount and ChunkCount report store size, e.g. for health checks.
func (s *Snapshot) DocumentCount() int { return len(s.docs) }
func (s *Snapshot) ChunkCount() int    { return len(s.chunks) }
