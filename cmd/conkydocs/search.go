package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/navigation"
	"github.com/conky/docsearch/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a single query against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().Bool("json", false, "Output in JSON format")
}

// searchHit is the printed form of a result
type searchHit struct {
	Kind    indexing.Kind `json:"kind"`
	Name    string        `json:"name"`
	Score   float64       `json:"score"`
	Path    string        `json:"path"`
	Excerpt string        `json:"excerpt"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()

	loader := search.NewLoader(cfg.SearchOptions())
	loader.Start(ctx, artifactFetch(cfg.Index.Path))
	if err := loader.Wait(ctx); err != nil {
		return fmt.Errorf("failed to load search index: %w", err)
	}

	start := time.Now()
	results, err := loader.Search(strings.Join(args, " "))
	if err != nil {
		return err
	}
	hits := toHits(results, limit)

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	printHits(cmd.OutOrStdout(), hits)
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d results in %v\n", len(hits), len(results), time.Since(start).Round(time.Microsecond))
	return nil
}

func toHits(results []search.Result, limit int) []searchHit {
	hits := make([]searchHit, 0, min(len(results), max(limit, 0)))
	for _, r := range results {
		if len(hits) == limit {
			break
		}
		hit := searchHit{
			Kind:    r.Record.Kind,
			Name:    r.Record.Name,
			Score:   r.Score,
			Excerpt: indexing.Excerpt(r.Record.Desc, indexing.ExcerptChars),
		}
		if req, err := navigation.Resolve(*r.Record); err == nil {
			hit.Path = req.Path()
		}
		hits = append(hits, hit)
	}
	return hits
}

func printHits(w io.Writer, hits []searchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tNAME\tPATH\tDESCRIPTION")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", h.Score, h.Kind, h.Name, h.Path, h.Excerpt)
	}
	tw.Flush()
}
