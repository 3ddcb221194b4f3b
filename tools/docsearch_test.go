package tools

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/navigation"
)

const (
	testConfigYAML = `values:
  - name: alignment
    desc: Aligned position on screen.
    default: top_left
  - name: double_buffer
    desc: Use the Xdbe extension to eliminate flicker.
`
	testVarsYAML = `values:
  - name: cpu
    desc: CPU usage in percents.
    args:
      - (cpuN)
  - name: mem
    desc: Amount of memory in use.
`
	testLuaYAML = `- name: conky_parse
  desc: Parses a string with Conky variables.
`
)

// mapDataProvider serves bundled sources from memory
type mapDataProvider map[string]string

func (p mapDataProvider) ReadFile(name string) ([]byte, error) {
	data, ok := p[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func testSources() mapDataProvider {
	return mapDataProvider{
		"data/doc/config_settings.yaml": testConfigYAML,
		"data/doc/variables.yaml":       testVarsYAML,
		"data/doc/lua.yaml":             testLuaYAML,
	}
}

// setupDocSearch points the package at a temp data dir and loads the index
func setupDocSearch(t *testing.T, provider DataProvider) {
	t.Helper()

	oldDataDir, oldMgr := dataDir, docMgr
	dataDir = t.TempDir()
	docMgr = nil
	SetDefaultDataProvider(provider)
	t.Cleanup(func() {
		dataDir, docMgr = oldDataDir, oldMgr
		ResetDefaultDataProvider()
	})

	startDocSearch(t)
}

func startDocSearch(t *testing.T) {
	t.Helper()
	docMgr = nil
	InitializeDocSearch(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := docMgr.loader.Wait(ctx); err != nil {
		t.Fatalf("index load failed: %v", err)
	}
}

func TestSearchDocumentation(t *testing.T) {
	setupDocSearch(t, testSources())

	tests := []struct {
		name      string
		query     string
		wantFirst string
		wantPath  string
		wantNone  bool
		wantMsg   string
	}{
		{name: "exact variable", query: "cpu", wantFirst: "cpu", wantPath: "/variables#cpu"},
		{name: "config setting", query: "alignment", wantFirst: "alignment", wantPath: "/config_settings#alignment"},
		{name: "lua function", query: "conky_parse", wantFirst: "conky_parse", wantPath: "/lua#conky_parse"},
		{name: "typo", query: "alignmnt", wantFirst: "alignment"},
		{name: "nothing matches", query: "xyz123", wantNone: true, wantMsg: "No results."},
		{name: "empty query", query: "", wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: tt.query})
			if err != nil {
				t.Fatalf("SearchDocumentation() error = %v", err)
			}
			if out.Loading {
				t.Fatal("index should be loaded")
			}
			if out.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", out.Message, tt.wantMsg)
			}
			if tt.wantNone {
				if len(out.Results) != 0 || out.TotalHits != 0 {
					t.Errorf("expected no results, got %d", len(out.Results))
				}
				return
			}
			if len(out.Results) == 0 {
				t.Fatal("expected results")
			}
			if out.Results[0].Name != tt.wantFirst {
				t.Errorf("first result = %q, want %q", out.Results[0].Name, tt.wantFirst)
			}
			if tt.wantPath != "" && out.Results[0].Path != tt.wantPath {
				t.Errorf("path = %q, want %q", out.Results[0].Path, tt.wantPath)
			}
			for i := 1; i < len(out.Results); i++ {
				if out.Results[i].Score < out.Results[i-1].Score {
					t.Errorf("results not sorted by score at %d", i)
				}
			}
		})
	}
}

func TestSearchDocumentation_MaxResults(t *testing.T) {
	setupDocSearch(t, testSources())

	// "use" appears in both double_buffer and mem
	_, all, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "use"})
	if err != nil {
		t.Fatalf("SearchDocumentation() error = %v", err)
	}
	if all.TotalHits < 2 {
		t.Fatalf("TotalHits = %d, want at least 2", all.TotalHits)
	}

	_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "use", MaxResults: 1})
	if err != nil {
		t.Fatalf("SearchDocumentation() error = %v", err)
	}
	if len(out.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(out.Results))
	}
	if out.TotalHits != all.TotalHits {
		t.Errorf("TotalHits = %d, want %d", out.TotalHits, all.TotalHits)
	}
}

func TestSearchDocumentation_Loading(t *testing.T) {
	oldMgr := docMgr
	docMgr = newDocHolder() // never started
	defer func() { docMgr = oldMgr }()

	_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "cpu"})
	if err != nil {
		t.Fatalf("SearchDocumentation() error = %v", err)
	}
	if !out.Loading {
		t.Error("expected Loading while the index is pending")
	}
	if len(out.Results) != 0 {
		t.Errorf("expected no results while loading, got %d", len(out.Results))
	}
}

func TestInitializeDocSearch_PersistsAndReusesIndex(t *testing.T) {
	setupDocSearch(t, testSources())

	artifactPath := filepath.Join(dataDir, artifactFile)
	if _, err := os.Stat(artifactPath); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	m, err := indexing.ReadManifest(indexing.ManifestPath(artifactPath))
	if err != nil {
		t.Fatalf("manifest not readable: %v", err)
	}
	if m.Records != 5 {
		t.Errorf("manifest records = %d, want 5", m.Records)
	}

	// The second session must come from the local artifact, not the (now empty) bundle
	SetDefaultDataProvider(mapDataProvider{})
	startDocSearch(t)

	_, out, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "cpu"})
	if err != nil {
		t.Fatalf("SearchDocumentation() error = %v", err)
	}
	if len(out.Results) == 0 || out.Results[0].Name != "cpu" {
		t.Errorf("expected cpu from local index, got %+v", out.Results)
	}
}

func TestInitializeDocSearch_StaleSchemaRebuilds(t *testing.T) {
	setupDocSearch(t, testSources())

	artifactPath := filepath.Join(dataDir, artifactFile)
	stale := indexing.Manifest{SchemaVersion: indexing.IndexSchemaVersion + 1}
	if err := indexing.WriteManifest(indexing.ManifestPath(artifactPath), stale); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}

	startDocSearch(t)

	m, err := indexing.ReadManifest(indexing.ManifestPath(artifactPath))
	if err != nil {
		t.Fatalf("manifest should have been rewritten: %v", err)
	}
	if m.SchemaVersion != indexing.IndexSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", m.SchemaVersion, indexing.IndexSchemaVersion)
	}
}

func TestOpenDocumentation(t *testing.T) {
	tests := []struct {
		name     string
		input    EntryRef
		wantPage navigation.Page
		wantURL  string
		wantErr  bool
	}{
		{name: "variable", input: EntryRef{Kind: "var", Name: "cpu"}, wantPage: navigation.PageVariables, wantURL: "https://conky.cc/variables#cpu"},
		{name: "config", input: EntryRef{Kind: "config", Name: "alignment"}, wantPage: navigation.PageConfigSettings, wantURL: "https://conky.cc/config_settings#alignment"},
		{name: "lua", input: EntryRef{Kind: "lua", Name: "conky_parse"}, wantPage: navigation.PageLua, wantURL: "https://conky.cc/lua#conky_parse"},
		{name: "unknown kind", input: EntryRef{Kind: "widget", Name: "cpu"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := OpenDocumentation(context.Background(), nil, tt.input)
			if tt.wantErr {
				if !errors.Is(err, indexing.ErrUnknownKind) {
					t.Errorf("error = %v, want ErrUnknownKind", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenDocumentation() error = %v", err)
			}
			if out.Page != tt.wantPage {
				t.Errorf("Page = %q, want %q", out.Page, tt.wantPage)
			}
			if out.Anchor != tt.input.Name {
				t.Errorf("Anchor = %q, want %q", out.Anchor, tt.input.Name)
			}
			if out.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", out.URL, tt.wantURL)
			}
		})
	}
}

func TestDescribeDocumentationEntry(t *testing.T) {
	setupDocSearch(t, testSources())

	t.Run("default present", func(t *testing.T) {
		_, out, err := DescribeDocumentationEntry(context.Background(), nil, EntryRef{Kind: "config", Name: "alignment"})
		if err != nil {
			t.Fatalf("DescribeDocumentationEntry() error = %v", err)
		}
		if out.Default == nil || *out.Default != "top_left" {
			t.Errorf("Default = %v, want top_left", out.Default)
		}
		if out.Args != nil {
			t.Errorf("Args = %v, want none", out.Args)
		}
	})

	t.Run("default absent", func(t *testing.T) {
		_, out, err := DescribeDocumentationEntry(context.Background(), nil, EntryRef{Kind: "config", Name: "double_buffer"})
		if err != nil {
			t.Fatalf("DescribeDocumentationEntry() error = %v", err)
		}
		if out.Default != nil {
			t.Errorf("Default = %q, want absent", *out.Default)
		}
	})

	t.Run("args", func(t *testing.T) {
		_, out, err := DescribeDocumentationEntry(context.Background(), nil, EntryRef{Kind: "var", Name: "cpu"})
		if err != nil {
			t.Fatalf("DescribeDocumentationEntry() error = %v", err)
		}
		if len(out.Args) != 1 || out.Args[0] != "(cpuN)" {
			t.Errorf("Args = %v, want [(cpuN)]", out.Args)
		}
		if out.Description != "CPU usage in percents." {
			t.Errorf("Description = %q", out.Description)
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		if _, _, err := DescribeDocumentationEntry(context.Background(), nil, EntryRef{Kind: "var", Name: "nope"}); err == nil {
			t.Error("expected error for unknown entry")
		}
	})
}

func TestRefreshDocumentationIndex(t *testing.T) {
	setupDocSearch(t, testSources())

	upstream := map[string]string{
		"/doc/config_settings.yaml": testConfigYAML,
		"/doc/variables.yaml":       testVarsYAML + "  - name: gpu_temp\n    desc: GPU temperature.\n",
		"/doc/lua.yaml":             testLuaYAML,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := upstream[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	oldSourceURL := settings.Docs.SourceURL
	settings.Docs.SourceURL = srv.URL + "/doc"
	defer func() { settings.Docs.SourceURL = oldSourceURL }()

	_, out, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{Force: true})
	if err != nil {
		t.Fatalf("RefreshDocumentationIndex() error = %v", err)
	}
	if !out.Updated || out.RecordsIndexed != 6 {
		t.Errorf("got Updated=%v RecordsIndexed=%d, want true/6", out.Updated, out.RecordsIndexed)
	}

	_, res, err := SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "gpu_temp"})
	if err != nil {
		t.Fatalf("SearchDocumentation() error = %v", err)
	}
	if len(res.Results) == 0 || res.Results[0].Name != "gpu_temp" {
		t.Errorf("refreshed entry not searchable: %+v", res.Results)
	}

	_, desc, err := DescribeDocumentationEntry(context.Background(), nil, EntryRef{Kind: "var", Name: "gpu_temp"})
	if err != nil {
		t.Fatalf("refreshed entry not describable: %v", err)
	}
	if desc.Description != "GPU temperature." {
		t.Errorf("Description = %q", desc.Description)
	}

	_, again, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{})
	if err != nil {
		t.Fatalf("RefreshDocumentationIndex() error = %v", err)
	}
	if again.Updated || !strings.HasPrefix(again.Message, "Cache is fresh") {
		t.Errorf("expected fresh cache, got %+v", again)
	}
}

func TestRefreshDocumentationIndex_DownloadFailure(t *testing.T) {
	setupDocSearch(t, testSources())

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	oldSourceURL := settings.Docs.SourceURL
	settings.Docs.SourceURL = srv.URL
	defer func() { settings.Docs.SourceURL = oldSourceURL }()

	if _, _, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{Force: true}); err == nil {
		t.Fatal("expected error when the sources cannot be downloaded")
	}

	// The engine loaded before the failed refresh keeps serving
	results, err := docMgr.loader.Search("cpu")
	if err != nil || len(results) == 0 {
		t.Errorf("previous index should still serve, err = %v", err)
	}
}

// blockingDataProvider holds every read until release is closed
type blockingDataProvider struct {
	mapDataProvider
	release chan struct{}
}

func (p blockingDataProvider) ReadFile(name string) ([]byte, error) {
	<-p.release
	return p.mapDataProvider.ReadFile(name)
}

func TestRefreshDocumentationIndex_DuringInitialLoad(t *testing.T) {
	oldDataDir, oldMgr := dataDir, docMgr
	dataDir = t.TempDir()
	provider := blockingDataProvider{mapDataProvider: testSources(), release: make(chan struct{})}
	SetDefaultDataProvider(provider)
	t.Cleanup(func() {
		dataDir, docMgr = oldDataDir, oldMgr
		ResetDefaultDataProvider()
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc/config_settings.yaml":
			w.Write([]byte(testConfigYAML))
		case "/doc/variables.yaml":
			w.Write([]byte(testVarsYAML + "  - name: gpu_temp\n    desc: GPU temperature.\n"))
		case "/doc/lua.yaml":
			w.Write([]byte(testLuaYAML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	oldSourceURL := settings.Docs.SourceURL
	settings.Docs.SourceURL = srv.URL + "/doc"
	defer func() { settings.Docs.SourceURL = oldSourceURL }()

	docMgr = nil
	InitializeDocSearch(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type refreshResult struct {
		count int
		err   error
	}
	done := make(chan refreshResult, 1)
	go func() {
		n, err := refreshDocumentationIndex(ctx, true)
		done <- refreshResult{n, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("refresh finished before the initial load: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	close(provider.release)

	r := <-done
	if r.err != nil {
		t.Fatalf("refreshDocumentationIndex() error = %v", r.err)
	}
	if r.count != 6 {
		t.Errorf("records indexed = %d, want 6", r.count)
	}

	results, err := docMgr.loader.Search("gpu_temp")
	if err != nil || len(results) == 0 || results[0].Record.Name != "gpu_temp" {
		t.Errorf("refreshed index was replaced by the initial load: %v", err)
	}
	if _, ok := docMgr.sources.Load().Lookup(indexing.KindVar, "gpu_temp"); !ok {
		t.Error("refreshed sources were replaced by the initial load")
	}

	idx, err := indexing.ReadArtifactFile(filepath.Join(dataDir, artifactFile))
	if err != nil {
		t.Fatalf("ReadArtifactFile() error = %v", err)
	}
	if len(idx.List) != 6 {
		t.Errorf("persisted artifact has %d records, want the refreshed 6", len(idx.List))
	}
}

func TestRefreshDocumentationIndex_SkipsFreshCache(t *testing.T) {
	setupDocSearch(t, testSources())

	metaPath := filepath.Join(dataDir, cacheMetaFile)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metaPath, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := refreshDocumentationIndex(context.Background(), false)
	if !errors.Is(err, errCacheFresh) {
		t.Fatalf("refreshDocumentationIndex() error = %v, want errCacheFresh", err)
	}
	if n != 0 {
		t.Errorf("records indexed = %d, want 0", n)
	}

	_, out, err := RefreshDocumentationIndex(context.Background(), nil, RefreshDocumentationIndexInput{})
	if err != nil {
		t.Fatalf("RefreshDocumentationIndex() error = %v", err)
	}
	if out.Updated || out.RecordsIndexed != 0 || !strings.HasPrefix(out.Message, "Cache is fresh") {
		t.Errorf("skipped refresh reported as update: %+v", out)
	}
}

func TestReadBundledSources(t *testing.T) {
	src, err := readBundledSources(NewEmbeddedDataProvider())
	if err != nil {
		t.Fatalf("readBundledSources() error = %v", err)
	}
	for _, kind := range indexing.Kinds {
		if src.Count(kind) == 0 {
			t.Errorf("embedded %s source is empty", kind)
		}
	}
	if _, ok := src.Lookup(indexing.KindVar, "cpu"); !ok {
		t.Error("embedded variables should document cpu")
	}
}
