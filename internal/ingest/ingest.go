// Package ingest implements the one-time batch job that chunks a text
// corpus, embeds each chunk through the encoder service, and upserts the
// vectors into the retrieval index.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
)

// Embedder generates embeddings for chunk text.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Upserter inserts documents into the retrieval index.
type Upserter interface {
	Upsert(docs []retrieval.Document) error
}

// Ingestor runs the batch ingestion.
type Ingestor struct {
	embedder Embedder
	index    Upserter
	logger   *slog.Logger
}

// New creates an Ingestor with the given dependencies.
func New(embedder Embedder, index Upserter) *Ingestor {
	return &Ingestor{
		embedder: embedder,
		index:    index,
		logger:   slog.Default(),
	}
}

// IngestFile chunks and indexes a single corpus file (.txt, .md, or .pdf).
// It returns the number of chunks indexed.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	text, err := readCorpusFile(path)
	if err != nil {
		return 0, err
	}

	chunks := Chunk(text)
	if len(chunks) == 0 {
		ing.logger.Warn("no chunks found", "path", path)
		return 0, nil
	}

	vectors, err := ing.embedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks from %s: %w", path, err)
	}

	docs := make([]retrieval.Document, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		docs[i] = retrieval.Document{
			ID:        uuid.New().String(),
			Text:      chunk,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}
	if err := ing.index.Upsert(docs); err != nil {
		return 0, fmt.Errorf("upserting documents from %s: %w", path, err)
	}

	ing.logger.Info("file ingested", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestDir walks dir and ingests every corpus file it finds.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isCorpusFile(path) {
			return nil
		}
		n, err := ing.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("walking %s: %w", dir, err)
	}
	return total, nil
}

// embedBatch embeds chunks concurrently with bounded parallelism so the
// encoder service isn't overwhelmed.
func (ing *Ingestor) embedBatch(ctx context.Context, chunks []string) ([][]float32, error) {
	results := make([][]float32, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			vec, err := ing.embedder.Encode(gCtx, chunk)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Chunk splits corpus text into paragraphs on blank lines, dropping empties.
func Chunk(text string) []string {
	parts := strings.Split(text, "\n\n")
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

func isCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

func readCorpusFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// extractPDFText pulls the plain text out of a PDF corpus file.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", path, err)
	}
	return buf.String(), nil
}
