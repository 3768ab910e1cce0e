package llm

import (
	"context"
	"fmt"
	"time"
)

// embedderClient is the part of langchaingo's embedder the wrapper uses.
type embedderClient interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder wraps an embedding client with bounded retry. Embedding calls hit
// provider rate limits during ingestion, so transient failures back off
// exponentially before the error is surfaced.
type Embedder struct {
	client     embedderClient
	maxRetries int
	baseDelay  time.Duration
}

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 200 * time.Millisecond
	maxDelay          = 5 * time.Second
)

// NewEmbedder wraps client with the default retry policy.
func NewEmbedder(client embedderClient) *Embedder {
	return &Embedder{
		client:     client,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
}

// EmbedQuery embeds a single text, typically a search string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.retry(ctx, func() error {
		var err error
		vec, err = e.client.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

// EmbedDocuments embeds a batch of chunk texts.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := e.retry(ctx, func() error {
		var err error
		vecs, err = e.client.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	return vecs, nil
}

func (e *Embedder) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == e.maxRetries {
			break
		}
		select {
		case <-time.After(e.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (e *Embedder) delay(attempt int) time.Duration {
	d := e.baseDelay << attempt
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
