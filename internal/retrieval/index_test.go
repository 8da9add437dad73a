package retrieval

import (
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestSearchOrdersByScore(t *testing.T) {
	ix := newTestIndex(t)

	err := ix.Upsert([]Document{
		{ID: "exact", Text: "exact match", Embedding: []float32{1, 0, 0}},
		{ID: "close", Text: "close match", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Text: "far away", Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0, 0}, 3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("len(hits) = %d, want 3", len(hits))
	}
	if hits[0].ID != "exact" || hits[1].ID != "close" || hits[2].ID != "far" {
		t.Errorf("order = [%s %s %s], want [exact close far]", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("exact match score = %v, want ~1", hits[0].Score)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted descending at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestSearchHonorsTopK(t *testing.T) {
	ix := newTestIndex(t)
	err := ix.Upsert([]Document{
		{ID: "a", Text: "a", Embedding: []float32{1, 0}},
		{ID: "b", Text: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Text: "c", Embedding: []float32{0.8, 0.2}},
		{ID: "d", Text: "d", Embedding: []float32{0.7, 0.3}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("top-2 = [%s %s], want [a b]", hits[0].ID, hits[1].ID)
	}
}

func TestSearchScoreThreshold(t *testing.T) {
	ix := newTestIndex(t)
	err := ix.Upsert([]Document{
		{ID: "relevant", Text: "relevant", Embedding: []float32{1, 0}},
		{ID: "orthogonal", Text: "orthogonal", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 3, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "relevant" {
		t.Errorf("hits = %+v, want only the relevant document", hits)
	}
}

func TestSearchEdgeCases(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Upsert([]Document{{ID: "a", Text: "a", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if hits, err := ix.Search([]float32{1, 0}, 0, 0); err != nil || hits != nil {
		t.Errorf("topK=0: hits=%v err=%v, want nil, nil", hits, err)
	}
	if hits, err := ix.Search([]float32{0, 0}, 3, 0); err != nil || hits != nil {
		t.Errorf("zero vector: hits=%v err=%v, want nil, nil", hits, err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := newTestIndex(t)
	hits, err := ix.Search([]float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil on empty index", hits)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	ix := newTestIndex(t)
	if err := ix.Upsert([]Document{{ID: "a", Text: "old", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ix.Upsert([]Document{{ID: "a", Text: "new", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	if count, err := ix.Count(); err != nil || count != 1 {
		t.Fatalf("Count = %d, %v; want 1", count, err)
	}
	hits, err := ix.Search([]float32{1, 0}, 1, 0)
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Document != "new" {
		t.Errorf("Document = %q, want %q", hits[0].Document, "new")
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159}
	blob := encodeFloat32s(in)
	out, err := decodeFloat32sInto(nil, blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32sInto(nil, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
