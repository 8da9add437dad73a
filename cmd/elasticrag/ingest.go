package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/encoder"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/ingest"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/retrieval"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a text corpus into the retrieval index",
	Long: `Ingest a text corpus into the retrieval index.

Chunks the corpus on blank lines, embeds each chunk through the encoder
service, and upserts the vectors. Supports .txt, .md, and .pdf files.

Examples:
  elasticrag ingest --file data/corpus.txt
  elasticrag ingest --dir data/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dir, _ := cmd.Flags().GetString("dir")
		if file == "" && dir == "" {
			return fmt.Errorf("one of --file or --dir is required")
		}
		return runIngest(file, dir)
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "corpus file to ingest")
	ingestCmd.Flags().String("dir", "", "directory of corpus files to ingest")
}

func runIngest(file, dir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	index, err := retrieval.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening retrieval index: %w", err)
	}
	defer index.Close()

	enc := encoder.New(cfg.Encoder.BaseURL, cfg.Encoder.Dimension, cfg.Encoder.Timeout)
	ctx := context.Background()
	if !enc.IsRunning(ctx) {
		printWarning("encoder service at %s is not responding; ingestion will fail without it", cfg.Encoder.BaseURL)
	}

	ing := ingest.New(enc, index)

	var n int
	if file != "" {
		n, err = ing.IngestFile(ctx, file)
	} else {
		n, err = ing.IngestDir(ctx, dir)
	}
	if err != nil {
		printError("ingestion failed: %v", err)
		return err
	}

	total, err := index.Count()
	if err != nil {
		return fmt.Errorf("counting indexed documents: %w", err)
	}
	printSuccess("Ingested %d chunks (%d total in index)", n, total)
	return nil
}
