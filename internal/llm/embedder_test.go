package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyClient struct {
	failures int
	queries  int
	batches  int
}

func (f *flakyClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queries++
	if f.queries <= f.failures {
		return nil, errors.New("rate limited")
	}
	return []float32{1, 2, 3}, nil
}

func (f *flakyClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches++
	if f.batches <= f.failures {
		return nil, errors.New("rate limited")
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(i)}
	}
	return vecs, nil
}

func testEmbedder(client embedderClient) *Embedder {
	return &Embedder{client: client, maxRetries: 3, baseDelay: time.Millisecond}
}

func TestEmbedQueryRetriesTransientFailures(t *testing.T) {
	client := &flakyClient{failures: 2}
	vec, err := testEmbedder(client).EmbedQuery(context.Background(), "what is a heap")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
	if client.queries != 3 {
		t.Errorf("attempts = %d, want 3", client.queries)
	}
}

func TestEmbedDocumentsGivesUpAfterMaxRetries(t *testing.T) {
	client := &flakyClient{failures: 100}
	_, err := testEmbedder(client).EmbedDocuments(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if client.batches != 4 {
		t.Errorf("attempts = %d, want initial try plus 3 retries", client.batches)
	}
}

func TestEmbedQueryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &flakyClient{failures: 100}
	_, err := testEmbedder(client).EmbedQuery(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDelayCapped(t *testing.T) {
	e := &Embedder{baseDelay: time.Second}
	if d := e.delay(0); d != time.Second {
		t.Errorf("delay(0) = %v", d)
	}
	if d := e.delay(1); d != 2*time.Second {
		t.Errorf("delay(1) = %v", d)
	}
	if d := e.delay(10); d != maxDelay {
		t.Errorf("delay(10) = %v, want cap %v", d, maxDelay)
	}
}
