package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileBackend reads config as a flat JSON object of dotted keys, e.g.
// {"server.port": 8080, "gateway.replicas": ["replica-1"]}.
type fileBackend struct {
	data map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{data: make(map[string]any)}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return b
	}
	if err := json.Unmarshal(data, &b.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
	}
	return b
}

func (b *fileBackend) get(key string) (any, bool) {
	v, ok := b.data[key]
	return v, ok
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "elasticrag", "config.json")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "elasticrag-data"
		}
	}
	return filepath.Join(dir, "elasticrag")
}
