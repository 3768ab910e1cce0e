package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75e-3}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("roundtrip = %v, want %v", out, in)
	}
}

func TestDecodeVectorRejectsRaggedBlob(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for blob not a multiple of 4 bytes")
	}
}

func TestBuildCommitAndOpen(t *testing.T) {
	ctx := context.Background()
	live := filepath.Join(t.TempDir(), "course.db")

	b, err := NewBuilder(live, false)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	docs := []Document{
		{FilePath: "Syllabus.txt", Description: "course syllabus", SourceType: "Other"},
		{FilePath: "Week1.pdf", Description: "intro lecture", SourceType: "Teaching materials such as lecture notes"},
	}
	for i := range docs {
		texts := []string{"first chunk " + docs[i].FilePath, "second chunk"}
		vectors := [][]float32{{1, 0, 0}, {0, float32(i + 1), 0}}
		if err := b.AddDocument(ctx, docs[i], texts, vectors); err != nil {
			t.Fatalf("AddDocument(%s): %v", docs[i].FilePath, err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := os.Stat(live + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp store left behind after commit")
	}

	snap, err := Open(live, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if snap.DocumentCount() != 2 || snap.ChunkCount() != 4 {
		t.Errorf("counts = %d docs, %d chunks, want 2 and 4", snap.DocumentCount(), snap.ChunkCount())
	}
	if snap.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", snap.Dimension())
	}

	doc, ok := snap.Lookup("Week1.pdf")
	if !ok {
		t.Fatal("Lookup(Week1.pdf) missed")
	}
	if doc.Description != "intro lecture" {
		t.Errorf("description = %q", doc.Description)
	}

	chunks := snap.Chunks()
	for i := 1; i < len(chunks); i++ {
		if chunks[i].ID <= chunks[i-1].ID {
			t.Errorf("chunks not in id order at %d", i)
		}
	}
	if chunks[0].DocPath != "Syllabus.txt" {
		t.Errorf("first chunk DocPath = %q, want Syllabus.txt", chunks[0].DocPath)
	}
}

func TestAbortLeavesLiveStoreUntouched(t *testing.T) {
	ctx := context.Background()
	live := filepath.Join(t.TempDir(), "course.db")

	first, err := NewBuilder(live, false)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	doc := Document{FilePath: "old.txt", Description: "survivor", SourceType: "Other"}
	if err := first.AddDocument(ctx, doc, []string{"kept"}, [][]float32{{1, 2}}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if err := first.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	second, err := NewBuilder(live, false)
	if err != nil {
		t.Fatalf("NewBuilder (rebuild): %v", err)
	}
	doc = Document{FilePath: "new.txt", Description: "discarded", SourceType: "Other"}
	if err := second.AddDocument(ctx, doc, []string{"dropped"}, [][]float32{{3, 4}}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	second.Abort()

	if _, err := os.Stat(live + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp store survived abort")
	}
	snap, err := Open(live, false)
	if err != nil {
		t.Fatalf("Open after abort: %v", err)
	}
	if _, ok := snap.Lookup("old.txt"); !ok {
		t.Error("live store lost its document")
	}
	if _, ok := snap.Lookup("new.txt"); ok {
		t.Error("aborted document leaked into live store")
	}
}

func TestAddDocumentValidation(t *testing.T) {
	ctx := context.Background()
	b, err := NewBuilder(filepath.Join(t.TempDir(), "course.db"), false)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	defer b.Abort()

	doc := Document{FilePath: "a.txt"}
	if err := b.AddDocument(ctx, doc, []string{"one"}, nil); err == nil {
		t.Error("expected error for mismatched texts and vectors")
	}
	if err := b.AddDocument(ctx, doc, nil, nil); err == nil {
		t.Error("expected error for document with no chunks")
	}
	if err := b.AddDocument(ctx, doc, []string{"one"}, [][]float32{{1, 2, 3}}); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	doc.FilePath = "b.txt"
	if err := b.AddDocument(ctx, doc, []string{"one"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected error for embedding dimension mismatch")
	}
}

func TestOpenMissingStore(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.db"), false); err == nil {
		t.Fatal("expected error opening a store that does not exist")
	}
}
