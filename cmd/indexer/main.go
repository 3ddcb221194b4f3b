package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/internal/indexing"
	"github.com/spf13/cobra"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "conkydocs-indexer",
	Short: "Build the Conky documentation search index",
	Long: `conkydocs-indexer reads config_settings.yaml, variables.yaml and lua.yaml,
normalizes the entries and writes the search index artifact plus its manifest.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runIndexer,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("docs", config.DefaultDocsDir, "Directory holding the YAML documentation sources")
	flags.String("out", config.DefaultIndexPath, "Path of the search index artifact")
	flags.Int("max-description", indexing.MaxDescriptionChars, "Maximum description length in characters")
	flags.String("config", "", "Config file (default: ./conkydocs.yaml)")

	if err := config.BindFlags(v, flags, map[string]string{
		"docs.dir":              "docs",
		"index.path":            "out",
		"index.max_description": "max-description",
	}); err != nil {
		log.Fatalf("Failed to bind flags: %v", err)
	}
}

func runIndexer(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log.Printf("Conky Documentation Indexer v%d", indexing.IndexSchemaVersion)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Step 1: Load sources
	log.Printf("Loading sources: %s", cfg.Docs.Dir)
	src, files, err := indexing.LoadSources(cfg.Docs.Dir)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	if len(files) == 0 {
		log.Printf("Warning: No sources found in %s, writing an empty index", cfg.Docs.Dir)
	}
	for _, kind := range indexing.Kinds {
		log.Printf("  %-7s %d entries", kind, src.Count(kind))
	}

	// Step 2: Build
	opts := cfg.BuildOptions()
	idx := indexing.BuildIndex(src, opts)
	log.Printf("✓ Built %d records (descriptions ≤ %d chars)", len(idx.List), opts.MaxDescription)

	// Step 3: Write artifact and manifest
	if err := os.MkdirAll(filepath.Dir(cfg.Index.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := indexing.WriteArtifactFile(cfg.Index.Path, idx); err != nil {
		return err
	}
	manifestPath := indexing.ManifestPath(cfg.Index.Path)
	if err := indexing.WriteManifest(manifestPath, indexing.NewManifest(idx, opts, files)); err != nil {
		return err
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete in %v", time.Since(startTime).Round(time.Millisecond))
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Artifact: %s", cfg.Index.Path)
	log.Printf("  Manifest: %s", manifestPath)
	log.Printf("  Records:  %d", len(idx.List))
	log.Printf("  Schema:   v%d", indexing.IndexSchemaVersion)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
