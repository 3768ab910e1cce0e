// Package store persists the chunk corpus for one course in a single SQLite
// file: a documents relation and a chunks relation with embedding BLOBs.
// A rebuild writes to a temporary file and atomically renames it over the
// live path, so readers never observe a partially populated store.
package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// Document is one corpus file: its path (the identity), the LLM-generated
// description used by the document-selection stage, and its source
// classification.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          int64  `bun:"doc_id,pk,autoincrement"`
	FilePath    string `bun:"file_path,notnull,unique"`
	Description string `bun:"description,notnull"`
	SourceType  string `bun:"source_type,notnull"`
}

// Chunk is one retrieval unit: a bounded span of document text plus its
// embedding, stored as a little-endian IEEE-754 float32 BLOB.
type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID        int64  `bun:"id,pk,autoincrement"`
	DocID     int64  `bun:"doc_id,notnull"`
	Text      string `bun:"chunk_text,notnull"`
	Embedding []byte `bun:"embedding,notnull,type:blob"`
}

func open(dsn string, debug bool) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithEnabled(debug)))
	return db, nil
}

// EncodeVector serializes an embedding to its BLOB form.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes an embedding BLOB.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
