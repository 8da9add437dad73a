package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

// Searcher is the nearest-neighbor capability the retrieve stage invokes.
type Searcher interface {
	Search(vector []float32, topK int, minScore float32) ([]retrieval.ScoredDocument, error)
}

// RetrieveStage turns an Embedded job into an Augmented job: it searches the
// corpus index with the query vector, assembles the augmented prompt, and
// pushes it to the generate queue. The replica hint from dispatch is carried
// through as a label for the generate stage.
type RetrieveStage struct {
	searcher Searcher
	queue    state.Queue
	replicas []string
	topK     int
	minScore float32
	logger   *slog.Logger
}

// NewRetrieveStage creates the retrieve stage handler. replicas maps the
// dispatched replica index back to its label.
func NewRetrieveStage(searcher Searcher, queue state.Queue, replicas []string, topK int, minScore float32) *RetrieveStage {
	return &RetrieveStage{
		searcher: searcher,
		queue:    queue,
		replicas: replicas,
		topK:     topK,
		minScore: minScore,
		logger:   slog.Default().With("stage", "retrieve"),
	}
}

func (s *RetrieveStage) Handle(ctx context.Context, raw []byte) error {
	e, err := job.DecodeEmbedded(raw)
	if err != nil {
		return err
	}

	start := time.Now()
	hits, err := s.searcher.Search(e.Vector, s.topK, s.minScore)
	if err != nil {
		return fmt.Errorf("searching corpus for job %s: %w", e.JobID, err)
	}
	s.logger.Debug("retrieval complete", "job_id", e.JobID, "hits", len(hits), "took", time.Since(start))

	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}

	out := job.Augmented{
		JobID:           e.JobID,
		AugmentedPrompt: BuildPrompt(e.Query, docs),
		RetrievalTime:   float64(time.Now().UnixNano()) / float64(time.Second),
		Replica:         s.replicaLabel(e.ReplicaIndex),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshalling augmented job %s: %w", e.JobID, err)
	}
	if err := s.queue.Push(ctx, job.QueueGenerate, payload); err != nil {
		return fmt.Errorf("publishing augmented job %s: %w", e.JobID, err)
	}
	return nil
}

func (s *RetrieveStage) replicaLabel(idx int) string {
	if idx < 0 || idx >= len(s.replicas) {
		return ""
	}
	return s.replicas[idx]
}

// BuildPrompt assembles the final prompt: retrieved context joined by
// separators, followed by the user's question.
func BuildPrompt(query string, docs []string) string {
	contextText := strings.Join(docs, "\n---\n")
	return "You are an expert RAG system. Use the provided context to answer the user's question. " +
		"If the context does not contain the answer, state that you cannot answer based on the provided documents.\n\n" +
		"CONTEXT:\n" + contextText + "\n\n" +
		"USER QUESTION: " + query
}
