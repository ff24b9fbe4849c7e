package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/knowledge"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

var kbConfigPath string

// kbCmd groups knowledge-base operations
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Knowledge-base operations",
}

// kbIngestCmd loads documents into the knowledge base
var kbIngestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest a directory of .md and .txt documents into the knowledge base.

Files are split into overlapping chunks, tagged with their file name and
section heading for citations, embedded, and added to the configured
collection. Ingestion reads the same configuration the daemon does; point
--config at the daemon's config file or set MEDASSISTD_* variables.

The embedded chromem backend is single-process: stop the daemon before
ingesting into its store, or use the qdrant backend for live updates.

Examples:
  # Ingest with the daemon's config
  medctl kb ingest --config configs/medassistd.yaml ./docs/knowledge

  # Ingest into a remote qdrant collection
  MEDASSISTD_KNOWLEDGE_BACKEND=qdrant medctl kb ingest ./docs/knowledge`,
	Args: cobra.ExactArgs(1),
	RunE: runKBIngest,
}

func init() {
	kbIngestCmd.Flags().StringVar(&kbConfigPath, "config", "", "path to YAML config file (optional)")
	kbCmd.AddCommand(kbIngestCmd)
}

// runKBIngest handles the kb ingest command
func runKBIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(kbConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg, err := logging.FromAppConfig(config.LoggingConfig{
		Level:  "info",
		Format: "console",
		Redact: true,
	})
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	embedder, err := knowledge.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}
	store, err := knowledge.NewStore(cfg.Knowledge, embedder, logger)
	if err != nil {
		return fmt.Errorf("initialize knowledge base: %w", err)
	}
	ingestor, err := knowledge.NewIngestor(store, cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap, logger)
	if err != nil {
		return err
	}

	added, err := ingestor.IngestDir(ctx, args[0])
	if err != nil {
		return fmt.Errorf("ingestion failed after %d chunks: %w", added, err)
	}

	fmt.Printf("Ingested %d chunks into %q (%s backend)\n", added, cfg.Knowledge.Collection, cfg.Knowledge.Backend)
	return nil
}
