// Package search ranks stored chunks against a query embedding. Scoring is
// the raw inner product, not cosine similarity: embedding magnitude carries
// signal here and is deliberately not normalized away. The scan is exact
// brute force over every stored vector; corpora are course-sized, so an
// approximate index would buy nothing and cost exactness.
package search

import (
	"sort"
	"strings"

	"course-rag/internal/store"
)

// Result is a ranked chunk.
type Result struct {
	Chunk store.ChunkRecord
	Score float64
}

// Index holds the chunk records of one snapshot. It is immutable after
// construction and safe for concurrent use.
type Index struct {
	chunks []store.ChunkRecord
}

// New builds an index over the snapshot's chunks.
func New(snap *store.Snapshot) *Index {
	return &Index{chunks: snap.Chunks()}
}

// TopK returns the k highest-scoring chunks in descending score order.
// Ties keep store iteration order.
func (ix *Index) TopK(query []float32, k int) []Result {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil
	}

	scored := make([]Result, len(ix.chunks))
	for i, c := range ix.chunks {
		scored[i] = Result{Chunk: c, Score: Dot(query, c.Vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Rerank reorders semantic candidates by keyword overlap and cuts to k.
// It never touches chunks outside the candidate set; semantic order breaks
// ties between equal lexical scores.
func Rerank(candidates []Result, keywords []string, k int) []Result {
	if len(keywords) == 0 {
		if k < len(candidates) {
			return candidates[:k]
		}
		return candidates
	}

	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(strings.ToLower(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}

	type scored struct {
		Result
		hits int
	}
	rescored := make([]scored, len(candidates))
	for i, r := range candidates {
		text := strings.ToLower(r.Chunk.Text)
		hits := 0
		for _, kw := range lowered {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		rescored[i] = scored{Result: r, hits: hits}
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].hits > rescored[j].hits
	})
	reranked := make([]Result, len(rescored))
	for i, s := range rescored {
		reranked[i] = s.Result
	}

	if k < len(reranked) {
		return reranked[:k]
	}
	return reranked
}

// Dot is the inner product of two vectors, accumulated in float64.
// Mismatched lengths score over the shorter prefix.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
