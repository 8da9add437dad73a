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

// Generator is the text-generation capability the generate stage invokes.
type Generator interface {
	DefaultEndpoint() string
	EndpointFor(replica string) string
	Generate(ctx context.Context, endpoint, prompt, jobID string) (string, error)
}

// GenerateConfig tunes the retry/fallback protocol.
type GenerateConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	EnableFallback bool
	CompletionTTL  time.Duration
}

// completionWriteAttempts bounds retries of the completion write itself.
// If all attempts fail the job is lost and logged as such; the gateway's
// deadline turns that into a timeout for the caller.
const completionWriteAttempts = 3

const completionWritePause = 100 * time.Millisecond

// GenerateStage is the terminal stage. It calls the generation backend with
// retries and a configured fallback, and always writes a completion record
// for any job it receives, even on total failure, so the gateway never polls
// forever for a job that reached this stage.
type GenerateStage struct {
	gen         Generator
	completions state.Completions
	cfg         GenerateConfig
	logger      *slog.Logger
}

// NewGenerateStage creates the generate stage handler.
func NewGenerateStage(gen Generator, completions state.Completions, cfg GenerateConfig) *GenerateStage {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.CompletionTTL <= 0 {
		cfg.CompletionTTL = time.Hour
	}
	return &GenerateStage{
		gen:         gen,
		completions: completions,
		cfg:         cfg,
		logger:      slog.Default().With("stage", "generate"),
	}
}

// retryState is the retry loop's bookkeeping, threaded explicitly through
// the attempts.
type retryState struct {
	attempt int
	backoff time.Duration
	lastErr error
}

func (s *GenerateStage) Handle(ctx context.Context, raw []byte) error {
	a, err := job.DecodeAugmented(raw)
	if err != nil {
		return err
	}

	start := time.Now()

	answer, ok := s.generateWithRetry(ctx, a)
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	completion := job.Completion{
		JobID:     a.JobID,
		Answer:    answer,
		LatencyMS: latencyMS,
	}
	if err := s.writeCompletion(ctx, completion); err != nil {
		return fmt.Errorf("writing completion for job %s, job lost: %w", a.JobID, err)
	}
	if ok {
		s.logger.Info("completion written", "job_id", a.JobID, "latency_ms", latencyMS)
	} else {
		s.logger.Warn("completion written with degraded answer", "job_id", a.JobID, "latency_ms", latencyMS)
	}
	return nil
}

// generateWithRetry runs the retry/fallback protocol. The second return is
// false when both the primary attempts and the fallback failed and the
// answer is a degraded diagnostic string.
func (s *GenerateStage) generateWithRetry(ctx context.Context, a job.Augmented) (string, bool) {
	primary := s.gen.DefaultEndpoint()
	if a.Replica != "" {
		primary = s.gen.EndpointFor(a.Replica)
	}

	st := retryState{backoff: s.cfg.InitialBackoff}
	for st.attempt = 1; st.attempt <= s.cfg.MaxAttempts; st.attempt++ {
		answer, err := s.gen.Generate(ctx, primary, a.AugmentedPrompt, a.JobID)
		if err == nil {
			return answer, true
		}
		st.lastErr = err
		s.logger.Warn("generation attempt failed",
			"job_id", a.JobID, "endpoint", primary,
			"attempt", st.attempt, "max_attempts", s.cfg.MaxAttempts, "error", err)

		if st.attempt < s.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				st.lastErr = ctx.Err()
				return degradedAnswer(st.lastErr), false
			case <-time.After(st.backoff):
			}
			st.backoff *= 2
		}
	}

	// Exactly one fallback attempt against the default endpoint. It only
	// differs from the primary target when a replica hint was used.
	if s.cfg.EnableFallback {
		fallback := s.gen.DefaultEndpoint()
		s.logger.Warn("primary target failed, trying fallback", "job_id", a.JobID, "endpoint", fallback)
		answer, err := s.gen.Generate(ctx, fallback, a.AugmentedPrompt, a.JobID)
		if err == nil {
			return answer, true
		}
		st.lastErr = err
		s.logger.Warn("fallback failed", "job_id", a.JobID, "error", err)
	}

	return degradedAnswer(st.lastErr), false
}

func degradedAnswer(err error) string {
	return fmt.Sprintf("generation failed: %v", err)
}

func (s *GenerateStage) writeCompletion(ctx context.Context, c job.Completion) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling completion: %w", err)
	}

	key := job.CompletionKey(c.JobID)
	var lastErr error
	for attempt := 1; attempt <= completionWriteAttempts; attempt++ {
		if lastErr = s.completions.Put(ctx, key, payload, s.cfg.CompletionTTL); lastErr == nil {
			return nil
		}
		s.logger.Warn("completion write failed",
			"job_id", c.JobID, "attempt", attempt, "error", lastErr)
		if attempt < completionWriteAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(completionWritePause):
			}
		}
	}
	return lastErr
}
