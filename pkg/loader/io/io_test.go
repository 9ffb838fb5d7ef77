package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chirality-ai/valley/pkg/loader"
)

func TestIODocumentLoaderCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"version":"1","components":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewIODocumentLoader()
	src := loader.NewDocumentSource(path, l)

	docs, err := src.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Version != "1" {
		t.Fatalf("unexpected documents %+v", docs)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := src.GetBytes(context.Background()); err != nil {
		t.Fatalf("expected cached bytes after removal, got %v", err)
	}
}

func TestIODocumentLoaderMissingFile(t *testing.T) {
	l := NewIODocumentLoader()
	src := loader.NewDocumentSource(filepath.Join(t.TempDir(), "missing.json"), l)
	if _, err := src.GetBytes(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
