package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

// Encoder is the embedding capability the encode stage invokes.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// EncodeStage turns a Query job into an Embedded job: it embeds the query
// text and pushes the result to the retrieve queue.
type EncodeStage struct {
	encoder Encoder
	queue   state.Queue
	logger  *slog.Logger
}

// NewEncodeStage creates the encode stage handler.
func NewEncodeStage(encoder Encoder, queue state.Queue) *EncodeStage {
	return &EncodeStage{
		encoder: encoder,
		queue:   queue,
		logger:  slog.Default().With("stage", "encode"),
	}
}

func (s *EncodeStage) Handle(ctx context.Context, raw []byte) error {
	q, err := job.DecodeQuery(raw)
	if err != nil {
		return err
	}

	start := time.Now()
	vec, err := s.encoder.Encode(ctx, q.Text)
	if err != nil {
		return fmt.Errorf("encoding query for job %s: %w", q.JobID, err)
	}
	s.logger.Debug("query encoded", "job_id", q.JobID, "dim", len(vec), "took", time.Since(start))

	out := job.Embedded{
		JobID:        q.JobID,
		Query:        q.Text,
		Vector:       vec,
		ReplicaIndex: q.ReplicaIndex,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshalling embedded job %s: %w", q.JobID, err)
	}
	if err := s.queue.Push(ctx, job.QueueRetrieve, payload); err != nil {
		return fmt.Errorf("publishing embedded job %s: %w", q.JobID, err)
	}
	return nil
}
