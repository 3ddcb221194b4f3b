package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/navigation"
	"github.com/conky/docsearch/internal/search"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	cacheTTL        = 7 * 24 * time.Hour // 7 days
	docDir          = "doc"
	cacheMetaFile   = "doc/cache.meta"
	artifactFile    = "search/search-index.json"
	downloadTimeout = 30 * time.Second
	maxResultsLimit = 50
)

var (
	dataDir  string // Data directory for downloaded sources and the local index
	settings *config.Config
	docMgr   *docHolder
)

func init() {
	dataDir = resolveDataDir()
	settings = defaultSettings()
}

// resolveDataDir prefers ~/.conkydocs and falls back to ./data
func resolveDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(homeDir, ".conkydocs")
	}
	log.Printf("Warning: Could not determine user home directory: %v", err)
	return filepath.Join(".", "data")
}

func defaultSettings() *config.Config {
	v := config.New()
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("Warning: failed to decode default settings: %v", err)
	}
	return &cfg
}

// Configure applies loaded settings. Call before RegisterDocSearchTools.
func Configure(cfg *config.Config) {
	settings = cfg
	if cfg.Data.Dir != "" {
		dataDir = cfg.Data.Dir
	}
	log.Printf("✓ Data directory: %s", dataDir)
}

// docHolder owns the session's loader and the sources behind the loaded index
type docHolder struct {
	loader *search.Loader

	// sources backs describe_documentation_entry; swapped together with the engine
	sources atomic.Pointer[indexing.Sources]

	// refreshMu prevents concurrent refresh operations. Searches never take it.
	refreshMu sync.Mutex
}

func newDocHolder() *docHolder {
	return &docHolder{loader: search.NewLoader(settings.SearchOptions())}
}

// DocHit is one search result as returned by search_documentation
type DocHit struct {
	Kind    indexing.Kind `json:"kind"`
	Name    string        `json:"name"`
	Excerpt string        `json:"excerpt"`
	Score   float64       `json:"score"`
	Path    string        `json:"path"`
}

// SearchDocumentationInput defines input for search_documentation tool
type SearchDocumentationInput struct {
	Query      string `json:"query" jsonschema:"Search query, e.g. a variable or setting name"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (optional, defaults to the configured limit)"`
}

// SearchDocumentationOutput defines output for search_documentation tool
type SearchDocumentationOutput struct {
	Query     string   `json:"query"`
	Loading   bool     `json:"loading"`
	TotalHits int      `json:"total_hits"`
	Results   []DocHit `json:"results"`
	Message   string   `json:"message,omitempty"`
}

// EntryRef identifies one documentation entry
type EntryRef struct {
	Kind string `json:"kind" jsonschema:"Entry kind: config, var or lua"`
	Name string `json:"name" jsonschema:"Entry name, e.g. cpu"`
}

// OpenDocumentationOutput defines output for open_documentation tool
type OpenDocumentationOutput struct {
	Page   navigation.Page `json:"page"`
	Anchor string          `json:"anchor"`
	Path   string          `json:"path"`
	URL    string          `json:"url"`
}

// DescribeDocumentationEntryOutput defines output for describe_documentation_entry tool.
// Default and Args are omitted when the source does not define them.
type DescribeDocumentationEntryOutput struct {
	Kind        indexing.Kind `json:"kind"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Default     *string       `json:"default,omitempty"`
	Args        []string      `json:"args,omitempty"`
	URL         string        `json:"url"`
}

// RefreshDocumentationIndexInput defines input for refresh_documentation_index tool
type RefreshDocumentationIndexInput struct {
	Force bool `json:"force,omitempty" jsonschema:"Force re-download and re-indexing (optional, defaults to false)"`
}

// RefreshDocumentationIndexOutput defines output for refresh_documentation_index tool
type RefreshDocumentationIndexOutput struct {
	Updated        bool      `json:"updated"`
	LastUpdate     time.Time `json:"last_update"`
	RecordsIndexed int       `json:"records_indexed"`
	Message        string    `json:"message"`
}

// InitializeDocSearch starts loading the index in the background.
// Priority: local index (from a previous refresh) > embedded sources.
func InitializeDocSearch(ctx context.Context) {
	if docMgr == nil {
		docMgr = newDocHolder()
	}
	log.Printf("Initializing documentation search...")
	docMgr.loader.Start(ctx, loadIndex)
}

// loadIndex is the session's single load
func loadIndex(ctx context.Context) (*indexing.SearchIndex, error) {
	artifactPath := filepath.Join(dataDir, artifactFile)

	// Strategy 1: local index written by a previous refresh or first run
	if _, err := os.Stat(artifactPath); err == nil {
		idx, src, err := openLocalIndex(artifactPath)
		if err == nil {
			docMgr.sources.CompareAndSwap(nil, &src)
			if needsRefresh() {
				log.Printf("ℹ️  Local documentation is >7 days old. Consider using refresh_documentation_index tool to update.")
			}
			return idx, nil
		}
		log.Printf("Warning: Local index unusable (%v), rebuilding from embedded sources...", err)
	}

	// Strategy 2: build from the embedded sources and keep a local copy
	src, err := readBundledSources(defaultDataProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded sources: %w", err)
	}
	idx := indexing.BuildIndex(src, settings.BuildOptions())
	docMgr.sources.CompareAndSwap(nil, &src)

	if err := persistIndex(ctx, idx, nil); err != nil {
		log.Printf("Warning: Failed to store local index: %v", err)
	}
	log.Printf("ℹ️  Using embedded documentation (build-time). Use refresh_documentation_index to get latest docs.")
	return idx, nil
}

// openLocalIndex reads the local artifact after checking its manifest
func openLocalIndex(artifactPath string) (*indexing.SearchIndex, indexing.Sources, error) {
	if _, err := indexing.ReadManifest(indexing.ManifestPath(artifactPath)); err != nil {
		return nil, indexing.Sources{}, err
	}
	idx, err := indexing.ReadArtifactFile(artifactPath)
	if err != nil {
		return nil, indexing.Sources{}, err
	}

	// Downloaded sources back describe_documentation_entry; fall back to the bundled ones
	src, files, err := indexing.LoadSources(filepath.Join(dataDir, docDir))
	if err != nil || len(files) == 0 {
		src, err = readBundledSources(defaultDataProvider)
		if err != nil {
			return nil, indexing.Sources{}, err
		}
	}
	return idx, src, nil
}

// persistIndex writes the artifact and its manifest under the index lock
func persistIndex(ctx context.Context, idx *indexing.SearchIndex, sourceFiles []string) error {
	lock := newIndexLock(dataDir)
	if err := lock.acquire(ctx); err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer lock.release()

	artifactPath := filepath.Join(dataDir, artifactFile)
	if err := indexing.WriteArtifactFile(artifactPath, idx); err != nil {
		return err
	}
	manifest := indexing.NewManifest(idx, settings.BuildOptions(), sourceFiles)
	return indexing.WriteManifest(indexing.ManifestPath(artifactPath), manifest)
}

// needsRefresh checks whether the downloaded sources are missing or stale
func needsRefresh() bool {
	info, err := os.Stat(filepath.Join(dataDir, cacheMetaFile))
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > cacheTTL
}

// downloadSources fetches the three YAML sources into the data directory
func downloadSources(ctx context.Context) ([]string, error) {
	docsPath := filepath.Join(dataDir, docDir)
	if err := os.MkdirAll(docsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create docs directory: %w", err)
	}

	client := &http.Client{Timeout: downloadTimeout}
	base := strings.TrimSuffix(settings.Docs.SourceURL, "/")

	var files []string
	for _, kind := range indexing.Kinds {
		name := indexing.SourceFile(kind)
		url := base + "/" + name
		log.Printf("Downloading %s", url)

		if err := downloadFile(ctx, client, url, filepath.Join(docsPath, name)); err != nil {
			return nil, err
		}
		files = append(files, filepath.Join(docsPath, name))
	}

	metaPath := filepath.Join(dataDir, cacheMetaFile)
	meta := fmt.Sprintf("last_update: %s\n", time.Now().Format(time.RFC3339))
	if err := os.WriteFile(metaPath, []byte(meta), 0644); err != nil {
		return nil, fmt.Errorf("failed to write cache metadata: %w", err)
	}
	return files, nil
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status: %d", url, resp.StatusCode)
	}

	tmp := dest + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, dest)
}

// errCacheFresh reports a refresh skipped because the sources are recent
var errCacheFresh = errors.New("documentation cache is fresh")

// refreshDocumentationIndex downloads the sources, rebuilds and swaps the engine.
// It returns errCacheFresh when nothing needed refreshing.
func refreshDocumentationIndex(ctx context.Context, force bool) (int, error) {
	startTime := time.Now()

	if !force && !needsRefresh() {
		log.Printf("Documentation cache is fresh, skipping refresh")
		return 0, errCacheFresh
	}

	// The session load persists its own index; let it finish first
	if err := docMgr.loader.Wait(ctx); err != nil && ctx.Err() != nil {
		return 0, fmt.Errorf("waiting for initial index load: %w", err)
	}

	docMgr.refreshMu.Lock()
	defer docMgr.refreshMu.Unlock()

	// Another caller may have refreshed while we were waiting
	if !force && !needsRefresh() {
		log.Printf("Documentation was refreshed by another request, skipping")
		return 0, errCacheFresh
	}

	log.Printf("Starting documentation refresh (force=%v)...", force)

	downloadStart := time.Now()
	files, err := downloadSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	log.Printf("Download completed in %v", time.Since(downloadStart).Round(time.Millisecond))

	src, _, err := indexing.LoadSources(filepath.Join(dataDir, docDir))
	if err != nil {
		return 0, fmt.Errorf("parse failed: %w", err)
	}

	idx := indexing.BuildIndex(src, settings.BuildOptions())
	if err := persistIndex(ctx, idx, files); err != nil {
		return 0, fmt.Errorf("indexing failed: %w", err)
	}

	docMgr.sources.Store(&src)
	docMgr.loader.Swap(search.NewEngine(idx, settings.SearchOptions()))

	log.Printf("✓ Documentation refresh completed in %v (%d records)",
		time.Since(startTime).Round(time.Millisecond), len(idx.List))
	return len(idx.List), nil
}

// SearchDocumentation searches the Conky configuration, variable and Lua docs
func SearchDocumentation(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentationInput) (*mcp.CallToolResult, SearchDocumentationOutput, error) {
	if docMgr == nil {
		InitializeDocSearch(context.Background())
	}

	output := SearchDocumentationOutput{Query: input.Query, Results: []DocHit{}}

	results, err := docMgr.loader.Search(input.Query)
	if err != nil {
		if errors.Is(err, search.ErrIndexLoading) {
			output.Loading = true
			output.Message = "Documentation index is loading, try again shortly"
			return nil, output, nil
		}
		return nil, output, fmt.Errorf("search failed: %w", err)
	}

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = settings.Search.MaxResults
	}
	maxResults = min(maxResults, maxResultsLimit)

	output.TotalHits = len(results)
	for _, r := range results {
		if len(output.Results) == maxResults {
			break
		}
		hit := DocHit{
			Kind:    r.Record.Kind,
			Name:    r.Record.Name,
			Excerpt: indexing.Excerpt(r.Record.Desc, indexing.ExcerptChars),
			Score:   r.Score,
		}
		if nav, err := navigation.Resolve(*r.Record); err == nil {
			hit.Path = nav.Path()
		}
		output.Results = append(output.Results, hit)
	}
	if input.Query != "" && len(results) == 0 {
		output.Message = "No results."
	}
	return nil, output, nil
}

// resolveEntry validates a reference and returns its navigation request
func resolveEntry(ref EntryRef) (navigation.Request, string, error) {
	req, err := navigation.Resolve(indexing.DocRecord{Kind: indexing.Kind(ref.Kind), Name: ref.Name})
	if err != nil {
		return navigation.Request{}, "", err
	}
	url, err := req.URL(settings.Docs.BaseURL)
	if err != nil {
		return navigation.Request{}, "", err
	}
	return req, url, nil
}

// OpenDocumentation maps an entry to the page and anchor that document it
func OpenDocumentation(ctx context.Context, req *mcp.CallToolRequest, input EntryRef) (*mcp.CallToolResult, OpenDocumentationOutput, error) {
	nav, url, err := resolveEntry(input)
	if err != nil {
		log.Printf("Error: open_documentation rejected: %v", err)
		return nil, OpenDocumentationOutput{}, err
	}
	return nil, OpenDocumentationOutput{
		Page:   nav.Page,
		Anchor: nav.Anchor,
		Path:   nav.Path(),
		URL:    url,
	}, nil
}

// DescribeDocumentationEntry returns the full source entry
func DescribeDocumentationEntry(ctx context.Context, req *mcp.CallToolRequest, input EntryRef) (*mcp.CallToolResult, DescribeDocumentationEntryOutput, error) {
	_, url, err := resolveEntry(input)
	if err != nil {
		return nil, DescribeDocumentationEntryOutput{}, err
	}
	if docMgr == nil || docMgr.sources.Load() == nil {
		return nil, DescribeDocumentationEntryOutput{}, search.ErrIndexLoading
	}

	kind := indexing.Kind(input.Kind)
	entry, ok := docMgr.sources.Load().Lookup(kind, input.Name)
	if !ok {
		return nil, DescribeDocumentationEntryOutput{}, fmt.Errorf("no %s entry named %q", kind, input.Name)
	}

	output := DescribeDocumentationEntryOutput{
		Kind:        kind,
		Name:        entry.Name,
		Description: indexing.RenderPlainText(entry.Desc),
		URL:         url,
	}
	if entry.Default != nil {
		output.Default = entry.Default
	}
	if entry.HasArgs {
		output.Args = entry.Args
	}
	return nil, output, nil
}

// RefreshDocumentationIndex re-downloads the sources and rebuilds the index
func RefreshDocumentationIndex(ctx context.Context, req *mcp.CallToolRequest, input RefreshDocumentationIndexInput) (*mcp.CallToolResult, RefreshDocumentationIndexOutput, error) {
	if docMgr == nil {
		InitializeDocSearch(context.Background())
	}
	output := RefreshDocumentationIndexOutput{}

	if !input.Force && !needsRefresh() {
		if info, err := os.Stat(filepath.Join(dataDir, cacheMetaFile)); err == nil {
			output.LastUpdate = info.ModTime()
			output.Message = fmt.Sprintf("Cache is fresh (last updated: %s)", info.ModTime().Format(time.RFC3339))
			return nil, output, nil
		}
	}

	count, err := refreshDocumentationIndex(ctx, input.Force)
	if errors.Is(err, errCacheFresh) {
		if info, statErr := os.Stat(filepath.Join(dataDir, cacheMetaFile)); statErr == nil {
			output.LastUpdate = info.ModTime()
		}
		output.Message = "Cache is fresh, documentation was already refreshed"
		return nil, output, nil
	}
	if err != nil {
		return nil, output, fmt.Errorf("refresh failed: %w", err)
	}

	output.Updated = true
	output.LastUpdate = time.Now()
	output.RecordsIndexed = count
	output.Message = fmt.Sprintf("Documentation refreshed successfully, %d records indexed", count)
	return nil, output, nil
}

// RegisterDocSearchTools starts the index load and registers the tools
func RegisterDocSearchTools(server *mcp.Server) error {
	InitializeDocSearch(context.Background())

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_documentation",
			Description: "Fuzzy search over Conky configuration settings, variables and Lua API docs. Returns ranked entries (score 0 is a perfect match).",
		},
		SearchDocumentation,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "open_documentation",
			Description: "Resolve a documentation entry (kind + name) to the page and anchor documenting it.",
		},
		OpenDocumentation,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "describe_documentation_entry",
			Description: "Return the full description of a Conky documentation entry, with its default value and arguments when it has them.",
		},
		DescribeDocumentationEntry,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "refresh_documentation_index",
			Description: "Re-download the Conky documentation sources and rebuild the search index (auto-suggested if cache > 7 days old)",
		},
		RefreshDocumentationIndex,
	)

	return nil
}

// CloseDocSearch releases the index lock if a shutdown interrupted a write
func CloseDocSearch() error {
	if err := newIndexLock(dataDir).release(); err != nil {
		log.Printf("Error releasing lock: %v", err)
		return err
	}
	return nil
}
