package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/internal/search"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

const fetchTimeout = 30 * time.Second

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "conkydocs",
	Short: "Search the Conky documentation",
	Long: `conkydocs serves and queries the Conky documentation search index built by
conkydocs-indexer. The index can be read from a local file or fetched over HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: ./conkydocs.yaml)")
	flags.String("index", config.DefaultIndexPath, "Search index artifact (path or http(s) URL)")
	flags.String("base-url", config.DefaultBaseURL, "Base URL of the documentation site")
	flags.Float64("threshold", search.DefaultThreshold, "Maximum score of a match (0 = perfect, 1 = anything)")

	if err := config.BindFlags(v, flags, map[string]string{
		"index.path":       "index",
		"docs.base_url":    "base-url",
		"search.threshold": "threshold",
	}); err != nil {
		log.Fatalf("Failed to bind flags: %v", err)
	}

	rootCmd.AddCommand(serveCmd, searchCmd, browseCmd)
}

// loadConfig resolves the configuration for a command run
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	return config.Load(v)
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// artifactFetch returns the loader fetch function for location
func artifactFetch(location string) search.FetchFunc {
	if isURL(location) {
		return search.FromURL(&http.Client{Timeout: fetchTimeout}, location)
	}
	return search.FromFile(location)
}

// readArtifact returns the raw artifact bytes from a file or URL
func readArtifact(location string) func(ctx context.Context) ([]byte, error) {
	if !isURL(location) {
		return func(context.Context) ([]byte, error) {
			return os.ReadFile(location)
		}
	}

	client := &http.Client{Timeout: fetchTimeout}
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch search index: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch failed with status: %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

func main() {
	log.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
