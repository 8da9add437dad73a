package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
	kStringList
)

// keySpec binds a dotted config-file key and an environment variable to one
// Config field. The file backend and env overrides both go through this
// table so the two sources can never drift apart.
type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ELASTICRAG_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "redis.addr", typ: kString, env: "ELASTICRAG_REDIS_ADDR",
		apply: func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
	},
	{
		key: "redis.password", typ: kString, env: "ELASTICRAG_REDIS_PASSWORD",
		apply: func(cfg *Config, v any) { cfg.Redis.Password = v.(string) },
	},
	{
		key: "redis.db", typ: kInt, env: "ELASTICRAG_REDIS_DB",
		apply: func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
	},
	{
		key: "encoder.base_url", typ: kString, env: "ELASTICRAG_ENCODER_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Encoder.BaseURL = v.(string) },
	},
	{
		key: "encoder.dimension", typ: kInt, env: "ELASTICRAG_ENCODER_DIMENSION",
		apply: func(cfg *Config, v any) { cfg.Encoder.Dimension = v.(int) },
	},
	{
		key: "encoder.timeout", typ: kDuration, env: "ELASTICRAG_ENCODER_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Encoder.Timeout = v.(time.Duration) },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "ELASTICRAG_RETRIEVAL_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		key: "retrieval.score_threshold", typ: kFloat, env: "ELASTICRAG_RETRIEVAL_SCORE_THRESHOLD",
		apply: func(cfg *Config, v any) { cfg.Retrieval.ScoreThreshold = float32(v.(float64)) },
	},
	{
		key: "generation.base_url", typ: kString, env: "ELASTICRAG_GENERATION_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Generation.BaseURL = v.(string) },
	},
	{
		key: "generation.api_path", typ: kString, env: "ELASTICRAG_GENERATION_API_PATH",
		apply: func(cfg *Config, v any) { cfg.Generation.APIPath = v.(string) },
	},
	{
		key: "generation.max_attempts", typ: kInt, env: "ELASTICRAG_GENERATION_MAX_ATTEMPTS",
		apply: func(cfg *Config, v any) { cfg.Generation.MaxAttempts = v.(int) },
	},
	{
		key: "generation.initial_backoff", typ: kDuration, env: "ELASTICRAG_GENERATION_INITIAL_BACKOFF",
		apply: func(cfg *Config, v any) { cfg.Generation.InitialBackoff = v.(time.Duration) },
	},
	{
		key: "generation.enable_fallback", typ: kBool, env: "ELASTICRAG_GENERATION_ENABLE_FALLBACK",
		apply: func(cfg *Config, v any) { cfg.Generation.EnableFallback = v.(bool) },
	},
	{
		key: "generation.timeout", typ: kDuration, env: "ELASTICRAG_GENERATION_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Generation.Timeout = v.(time.Duration) },
	},
	{
		key: "generation.replica_base_urls", typ: kStringList, env: "ELASTICRAG_GENERATION_REPLICA_BASE_URLS",
		apply: func(cfg *Config, v any) { cfg.Generation.ReplicaBaseURLs = v.([]string) },
	},
	{
		key: "gateway.poll_interval", typ: kDuration, env: "ELASTICRAG_GATEWAY_POLL_INTERVAL",
		apply: func(cfg *Config, v any) { cfg.Gateway.PollInterval = v.(time.Duration) },
	},
	{
		key: "gateway.deadline", typ: kDuration, env: "ELASTICRAG_GATEWAY_DEADLINE",
		apply: func(cfg *Config, v any) { cfg.Gateway.Deadline = v.(time.Duration) },
	},
	{
		key: "gateway.replicas", typ: kStringList, env: "ELASTICRAG_GATEWAY_REPLICAS",
		apply: func(cfg *Config, v any) { cfg.Gateway.Replicas = v.([]string) },
	},
	{
		key: "gateway.completion_ttl", typ: kDuration, env: "ELASTICRAG_GATEWAY_COMPLETION_TTL",
		apply: func(cfg *Config, v any) { cfg.Gateway.CompletionTTL = v.(time.Duration) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ELASTICRAG_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "ELASTICRAG_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b *fileBackend) error {
	for _, spec := range specs {
		raw, ok := b.get(spec.key)
		if !ok {
			continue
		}
		v, err := coerce(spec, raw)
		if err != nil {
			return fmt.Errorf("config key %s: %w", spec.key, err)
		}
		spec.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, spec := range specs {
		raw := os.Getenv(spec.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(spec.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: %v\n", spec.env, raw, err)
			continue
		}
		spec.apply(cfg, v)
	}
}

// coerce converts a JSON-decoded value to the spec's Go type.
func coerce(spec keySpec, raw any) (any, error) {
	switch spec.typ {
	case kString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case kInt:
		switch v := raw.(type) {
		case float64:
			return int(v), nil
		case string:
			return strconv.Atoi(v)
		}
		return nil, fmt.Errorf("expected integer, got %T", raw)
	case kBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return b, nil
	case kFloat:
		f, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return f, nil
	case kDuration:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf(`expected duration string (e.g. "250ms"), got %T`, raw)
		}
		return time.ParseDuration(s)
	case kStringList:
		switch v := raw.(type) {
		case string:
			return splitList(v), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected string list element, got %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected string list, got %T", raw)
	}
	return nil, fmt.Errorf("unknown key type %d", spec.typ)
}

// parseValue converts an environment variable string to the spec's Go type.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	case kStringList:
		return splitList(raw), nil
	}
	return nil, fmt.Errorf("unknown key type %d", typ)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
