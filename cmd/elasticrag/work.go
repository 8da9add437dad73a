package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/config"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/encoder"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/generation"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work [encode|retrieve|generate|all]",
	Short: "Run stage workers against the shared queues",
	Long: `Run stage workers against the shared Redis queues.

Each invocation runs one worker per named stage; run multiple processes of
the same stage to scale it horizontally. "all" runs one worker of each stage
in a single process.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"encode", "retrieve", "generate", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWork(args[0])
	},
}

func runWork(stage string) error {
	fmt.Fprintf(os.Stderr, "elasticrag version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := state.NewRedis(ctx, state.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	g, gCtx := errgroup.WithContext(ctx)

	run := func(w *worker.Worker) {
		g.Go(func() error {
			w.Run(gCtx)
			return nil
		})
	}

	if stage == "encode" || stage == "all" {
		enc := encoder.New(cfg.Encoder.BaseURL, cfg.Encoder.Dimension, cfg.Encoder.Timeout)
		run(worker.New("encode", rdb, job.QueueEncode, worker.NewEncodeStage(enc, rdb), 0))
	}
	if stage == "retrieve" || stage == "all" {
		index, err := retrieval.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening retrieval index: %w", err)
		}
		defer index.Close()
		run(worker.New("retrieve", rdb, job.QueueRetrieve,
			worker.NewRetrieveStage(index, rdb, cfg.Gateway.Replicas, cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold), 0))
	}
	if stage == "generate" || stage == "all" {
		gen := newGenerationClient(cfg)
		run(worker.New("generate", rdb, job.QueueGenerate,
			worker.NewGenerateStage(gen, rdb, worker.GenerateConfig{
				MaxAttempts:    cfg.Generation.MaxAttempts,
				InitialBackoff: cfg.Generation.InitialBackoff,
				EnableFallback: cfg.Generation.EnableFallback,
				CompletionTTL:  cfg.Gateway.CompletionTTL,
			}), 0))
	}

	return g.Wait()
}

func newGenerationClient(cfg config.Config) *generation.Client {
	return generation.New(cfg.Generation.BaseURL, cfg.Generation.APIPath,
		cfg.Gateway.Replicas, cfg.Generation.ReplicaBaseURLs, cfg.Generation.Timeout)
}
