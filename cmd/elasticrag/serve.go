package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/config"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/encoder"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/gateway"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/routing"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/worker"
)

var standalone bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Start the gateway HTTP server.

By default the gateway talks to the shared Redis instance and expects stage
workers to run as separate processes (see "elasticrag work"). With
--standalone, queues and stores live in process memory and all three stage
workers run inside this process; nothing is shared or durable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&standalone, "standalone", false, "run workers in-process with in-memory state (single-node dev mode)")
}

func runServe() error {
	fmt.Fprintf(os.Stderr, "elasticrag version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		queue       state.Queue
		completions state.Completions
		loads       state.Loads
	)
	if standalone {
		mem := state.NewMemory()
		queue, completions, loads = mem, mem, mem.Loads()
	} else {
		rdb, err := state.NewRedis(ctx, state.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		queue, completions, loads = rdb, rdb, rdb.Loads()
	}

	selector := routing.NewSelector(cfg.Gateway.Replicas, loads)
	orch := gateway.NewOrchestrator(queue, completions, loads, selector, gateway.Config{
		PollInterval: cfg.Gateway.PollInterval,
		Deadline:     cfg.Gateway.Deadline,
	})

	g, gCtx := errgroup.WithContext(ctx)

	if standalone {
		index, err := retrieval.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening retrieval index: %w", err)
		}
		defer index.Close()
		startWorkers(gCtx, g, cfg, queue, completions, index)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: gateway.NewHandler(orch),
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "elasticrag gateway listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startWorkers launches one worker per stage on the supplied errgroup.
func startWorkers(ctx context.Context, g *errgroup.Group, cfg config.Config, queue state.Queue, completions state.Completions, index *retrieval.Index) {
	enc := encoder.New(cfg.Encoder.BaseURL, cfg.Encoder.Dimension, cfg.Encoder.Timeout)
	gen := newGenerationClient(cfg)

	stages := []*worker.Worker{
		worker.New("encode", queue, job.QueueEncode, worker.NewEncodeStage(enc, queue), 0),
		worker.New("retrieve", queue, job.QueueRetrieve,
			worker.NewRetrieveStage(index, queue, cfg.Gateway.Replicas, cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold), 0),
		worker.New("generate", queue, job.QueueGenerate,
			worker.NewGenerateStage(gen, completions, worker.GenerateConfig{
				MaxAttempts:    cfg.Generation.MaxAttempts,
				InitialBackoff: cfg.Generation.InitialBackoff,
				EnableFallback: cfg.Generation.EnableFallback,
				CompletionTTL:  cfg.Gateway.CompletionTTL,
			}), 0),
	}
	for _, w := range stages {
		w := w
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
}
