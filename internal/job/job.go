// Package job defines the record types a query passes through on its way
// across the pipeline, plus the queue and key names that form the wire
// contract between the gateway and the stage workers.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Queue names, one per stage boundary.
const (
	QueueEncode   = "job:encoder_in"
	QueueRetrieve = "job:retriever_in"
	QueueGenerate = "job:llm_in"
)

const (
	completionKeyPrefix = "job:completion:"
	loadKeyPrefix       = "llm_load_"
)

// CompletionKey returns the completion-store key for a job.
func CompletionKey(jobID string) string {
	return completionKeyPrefix + jobID
}

// LoadKey returns the load-counter key for a replica index.
func LoadKey(idx int) string {
	return fmt.Sprintf("%s%d", loadKeyPrefix, idx)
}

// ErrMalformed marks a payload that fails schema validation. Workers drop
// such jobs without retrying.
var ErrMalformed = errors.New("malformed job payload")

// Query is the job the gateway publishes to the encode queue.
type Query struct {
	JobID        string `json:"job_id"`
	Text         string `json:"text"`
	ReplicaIndex int    `json:"selected_replica_index"`
}

// Embedded is the job the encode worker publishes to the retrieve queue.
type Embedded struct {
	JobID        string    `json:"job_id"`
	Query        string    `json:"query"`
	Vector       []float32 `json:"vector"`
	ReplicaIndex int       `json:"selected_replica_index"`
}

// Augmented is the job the retrieve worker publishes to the generate queue.
// Replica is an optional routing hint carried through from dispatch.
type Augmented struct {
	JobID           string  `json:"job_id"`
	AugmentedPrompt string  `json:"augmented_prompt"`
	RetrievalTime   float64 `json:"retrieval_time"`
	Replica         string  `json:"selected_replica,omitempty"`
}

// Completion is the terminal record the generate worker writes to the
// completion store. It expires after the configured retention window.
type Completion struct {
	JobID     string  `json:"job_id"`
	Answer    string  `json:"answer"`
	LatencyMS float64 `json:"latency_ms"`
}

// DecodeQuery parses and validates a raw encode-queue payload.
func DecodeQuery(raw []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(raw, &q); err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if q.JobID == "" {
		return Query{}, fmt.Errorf("%w: missing job_id", ErrMalformed)
	}
	if q.Text == "" {
		return Query{}, fmt.Errorf("%w: missing text", ErrMalformed)
	}
	return q, nil
}

// DecodeEmbedded parses and validates a raw retrieve-queue payload.
func DecodeEmbedded(raw []byte) (Embedded, error) {
	var e Embedded
	if err := json.Unmarshal(raw, &e); err != nil {
		return Embedded{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.JobID == "" {
		return Embedded{}, fmt.Errorf("%w: missing job_id", ErrMalformed)
	}
	if e.Query == "" {
		return Embedded{}, fmt.Errorf("%w: missing query", ErrMalformed)
	}
	if len(e.Vector) == 0 {
		return Embedded{}, fmt.Errorf("%w: missing vector", ErrMalformed)
	}
	return e, nil
}

// DecodeAugmented parses and validates a raw generate-queue payload.
func DecodeAugmented(raw []byte) (Augmented, error) {
	var a Augmented
	if err := json.Unmarshal(raw, &a); err != nil {
		return Augmented{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if a.JobID == "" {
		return Augmented{}, fmt.Errorf("%w: missing job_id", ErrMalformed)
	}
	if a.AugmentedPrompt == "" {
		return Augmented{}, fmt.Errorf("%w: missing augmented_prompt", ErrMalformed)
	}
	return a, nil
}

// DecodeCompletion parses a completion-store payload.
func DecodeCompletion(raw []byte) (Completion, error) {
	var c Completion
	if err := json.Unmarshal(raw, &c); err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}
