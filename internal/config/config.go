// Package config loads pipeline configuration from defaults, an optional
// JSON config file, and ELASTICRAG_* environment variable overrides.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Encoder    EncoderConfig
	Retrieval  RetrievalConfig
	Generation GenerationConfig
	Gateway    GatewayConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EncoderConfig struct {
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

type RetrievalConfig struct {
	TopK           int
	ScoreThreshold float32
}

type GenerationConfig struct {
	BaseURL        string
	APIPath        string
	MaxAttempts    int
	InitialBackoff time.Duration
	EnableFallback bool
	Timeout        time.Duration

	// ReplicaBaseURLs optionally maps replica labels (by position in
	// Gateway.Replicas) to distinct generation endpoints. When empty or
	// shorter than the replica list, unmapped replicas use BaseURL.
	ReplicaBaseURLs []string
}

type GatewayConfig struct {
	PollInterval time.Duration
	Deadline     time.Duration
	Replicas     []string

	// CompletionTTL bounds completion-store growth; records for jobs the
	// gateway never reads back are reclaimed by expiry.
	CompletionTTL time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Encoder: EncoderConfig{
			BaseURL:   "http://localhost:8001",
			Dimension: 384,
			Timeout:   10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:           3,
			ScoreThreshold: 0.5,
		},
		Generation: GenerationConfig{
			BaseURL:        "http://localhost:8000",
			APIPath:        "/generate",
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			EnableFallback: true,
			Timeout:        10 * time.Second,
		},
		Gateway: GatewayConfig{
			PollInterval:  250 * time.Millisecond,
			Deadline:      60 * time.Second,
			Replicas:      []string{"replica-1", "replica-2", "replica-3"},
			CompletionTTL: time.Hour,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the default config file path
// ($XDG_CONFIG_HOME/elasticrag/config.json) with environment variable
// overrides applied on top.
func Load() (Config, error) {
	return LoadFile(configFilePath())
}

// LoadFile reads configuration from the given JSON file. A missing file is
// not an error; defaults plus environment overrides apply.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	b := newFileBackend(path)
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Gateway.Replicas) == 0 {
		return fmt.Errorf("config: gateway replica set must not be empty")
	}
	if c.Encoder.Dimension <= 0 {
		return fmt.Errorf("config: encoder dimension must be positive, got %d", c.Encoder.Dimension)
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("config: generation max attempts must be at least 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Gateway.PollInterval <= 0 {
		return fmt.Errorf("config: gateway poll interval must be positive")
	}
	if c.Gateway.Deadline <= 0 {
		return fmt.Errorf("config: gateway deadline must be positive")
	}
	return nil
}
