package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
)

type fakeEmbedder struct {
	encode func(ctx context.Context, text string) ([]float32, error)
}

func (f fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	return f.encode(ctx, text)
}

// recordingIndex collects upserted documents.
type recordingIndex struct {
	mu   sync.Mutex
	docs []retrieval.Document
}

func (r *recordingIndex) Upsert(docs []retrieval.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, docs...)
	return nil
}

func constEmbedder() fakeEmbedder {
	return fakeEmbedder{encode: func(_ context.Context, text string) ([]float32, error) {
		if text == "" {
			return nil, errors.New("empty chunk")
		}
		return []float32{1, 0, 0}, nil
	}}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"paragraphs", "first para\n\nsecond para\n\nthird", []string{"first para", "second para", "third"}},
		{"blank runs dropped", "a\n\n\n\n  \n\nb", []string{"a", "b"}},
		{"single paragraph", "just one", []string{"just one"}},
		{"empty", "   \n\n  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Chunk = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("alpha\n\nbeta\n\ngamma"), 0o644); err != nil {
		t.Fatal(err)
	}

	index := &recordingIndex{}
	ing := New(constEmbedder(), index)

	n, err := ing.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 3 {
		t.Errorf("chunks = %d, want 3", n)
	}
	if len(index.docs) != 3 {
		t.Fatalf("upserted = %d, want 3", len(index.docs))
	}
	seen := make(map[string]bool)
	for _, d := range index.docs {
		if d.ID == "" {
			t.Error("document with empty ID")
		}
		if seen[d.ID] {
			t.Errorf("duplicate document ID %s", d.ID)
		}
		seen[d.ID] = true
		if len(d.Embedding) != 3 {
			t.Errorf("embedding dim = %d, want 3", len(d.Embedding))
		}
	}
}

func TestIngestFileEmptyCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n\n "), 0o644); err != nil {
		t.Fatal(err)
	}

	index := &recordingIndex{}
	n, err := New(constEmbedder(), index).IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 0 || len(index.docs) != 0 {
		t.Errorf("n = %d, upserted = %d, want 0, 0", n, len(index.docs))
	}
}

func TestIngestFileEmbedderFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("alpha\n\nbeta"), 0o644); err != nil {
		t.Fatal(err)
	}

	emb := fakeEmbedder{encode: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("encoder down")
	}}
	index := &recordingIndex{}
	if _, err := New(emb, index).IngestFile(context.Background(), path); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(index.docs) != 0 {
		t.Errorf("upserted = %d, want 0 after embed failure", len(index.docs))
	}
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":      "one\n\ntwo",
		"b.md":       "three",
		"sub/c.txt":  "four",
		"ignored.go": "not corpus",
	}
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	index := &recordingIndex{}
	n, err := New(constEmbedder(), index).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if n != 4 {
		t.Errorf("chunks = %d, want 4", n)
	}
}

func TestIsCorpusFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"doc.txt", true},
		{"doc.md", true},
		{"doc.PDF", true},
		{"doc.go", false},
		{"doc", false},
	}
	for _, tt := range tests {
		if got := isCorpusFile(tt.path); got != tt.want {
			t.Errorf("isCorpusFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
