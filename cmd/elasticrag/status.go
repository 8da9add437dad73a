package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func showStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Gateway health.
	client := &http.Client{Timeout: 2 * time.Second}
	gatewayURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	resp, err := client.Get(gatewayURL + "/health")
	if err != nil {
		printStatus("Gateway", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Gateway", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Gateway", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Redis and queue depths.
	rdb, err := state.NewRedis(ctx, state.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		printStatus("Redis", "unreachable at %s", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
		printStatus("Redis", "connected at %s", cfg.Redis.Addr)
		for _, q := range []string{job.QueueEncode, job.QueueRetrieve, job.QueueGenerate} {
			depth, err := rdb.Len(ctx, q)
			if err != nil {
				printStatus(q, "error: %v", err)
				continue
			}
			printStatus(q, "%d queued", depth)
		}
		loads := rdb.Loads()
		for idx, label := range cfg.Gateway.Replicas {
			load, err := loads.Get(ctx, job.LoadKey(idx))
			if err != nil {
				printStatus(label, "error: %v", err)
				continue
			}
			printStatus(label, "%d in flight", load)
		}
	}

	// Retrieval index.
	index, err := retrieval.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Index", "error: %v", err)
	} else {
		defer index.Close()
		if count, err := index.Count(); err == nil {
			printStatus("Index", "%d documents", count)
		} else {
			printStatus("Index", "error: %v", err)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
