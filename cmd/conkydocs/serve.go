package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/internal/metrics"
	"github.com/conky/docsearch/internal/search"
	"github.com/conky/docsearch/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search index, search API and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", config.DefaultListenAddress, "Listen address")
	flags.Float64("rate-limit", config.DefaultRateLimit, "API requests per second (0 disables)")
	flags.Bool("debug", false, "Run gin in debug mode")

	if err := config.BindFlags(v, flags, map[string]string{
		"server.listen":     "listen",
		"server.rate_limit": "rate-limit",
	}); err != nil {
		log.Fatalf("Failed to bind flags: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.NewMetrics(version)
	loader := search.NewLoader(cfg.SearchOptions())
	srv := server.New(cfg, loader, m)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Loading search index from %s", cfg.Index.Path)
	loader.Start(ctx, srv.Fetch(readArtifact(cfg.Index.Path)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A failed load leaves the server up in degraded mode
		if err := loader.Wait(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Warning: serving without search: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	return g.Wait()
}
