package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conky/docsearch/internal/indexing"
)

// ErrIndexLoading is returned by Loader.Search until an index is available.
// A failed load keeps returning it: search stays in degraded mode.
var ErrIndexLoading = errors.New("search index is not loaded")

// LoadState reports where a Loader is in its single load
type LoadState int32

const (
	StatePending LoadState = iota
	StateReady
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("LoadState(%d)", int32(s))
}

// FetchFunc produces the index for a session
type FetchFunc func(ctx context.Context) (*indexing.SearchIndex, error)

// Loader loads the index once, in the background, and hands out the engine.
// Readers never block on the load.
type Loader struct {
	opts Options

	// current holds the active engine (atomic access for lock-free reads)
	current atomic.Pointer[Engine]
	state   atomic.Int32

	mu   sync.Mutex
	err  error
	once sync.Once
	done chan struct{}
}

// NewLoader creates a loader in the pending state
func NewLoader(opts Options) *Loader {
	return &Loader{opts: opts, done: make(chan struct{})}
}

// Start runs fetch in a new goroutine. Only the first call has any effect.
func (l *Loader) Start(ctx context.Context, fetch FetchFunc) {
	l.once.Do(func() {
		go l.load(ctx, fetch)
	})
}

func (l *Loader) load(ctx context.Context, fetch FetchFunc) {
	defer close(l.done)

	startTime := time.Now()
	idx, err := fetch(ctx)
	if err != nil {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		l.state.Store(int32(StateFailed))
		log.Printf("Warning: search index unavailable, search disabled: %v", err)
		return
	}

	engine := NewEngine(idx, l.opts)
	// An engine swapped in while fetch ran is newer than this one
	if !l.current.CompareAndSwap(nil, engine) {
		log.Printf("Search index load finished after a swap, keeping the swapped index")
		return
	}
	l.state.Store(int32(StateReady))
	log.Printf("✓ Search index loaded (%d records) in %v", engine.Len(), time.Since(startTime).Round(time.Millisecond))
}

// Wait blocks until the load finished or ctx is done
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current load state
func (l *Loader) State() LoadState {
	return LoadState(l.state.Load())
}

// Err returns the load failure, if any
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Engine returns the loaded engine
func (l *Loader) Engine() (*Engine, bool) {
	e := l.current.Load()
	return e, e != nil
}

// Swap installs a new engine, e.g. after a rebuild, and returns the old one
func (l *Loader) Swap(e *Engine) *Engine {
	old := l.current.Swap(e)
	if e != nil {
		l.state.Store(int32(StateReady))
	}
	return old
}

// Search queries the loaded engine or reports ErrIndexLoading
func (l *Loader) Search(query string) ([]Result, error) {
	e, ok := l.Engine()
	if !ok {
		return nil, ErrIndexLoading
	}
	return e.Search(query), nil
}

// FromIndex serves an index that is already in memory
func FromIndex(idx *indexing.SearchIndex) FetchFunc {
	return func(context.Context) (*indexing.SearchIndex, error) {
		return idx, nil
	}
}

// FromFile reads the artifact from disk
func FromFile(path string) FetchFunc {
	return func(context.Context) (*indexing.SearchIndex, error) {
		return indexing.ReadArtifactFile(path)
	}
}

// FromURL fetches the artifact over HTTP, the way the docs site does
func FromURL(client *http.Client, url string) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (*indexing.SearchIndex, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
		return indexing.ReadArtifact(resp.Body)
	}
}

// Ready returns a loader that already serves e
func Ready(e *Engine) *Loader {
	l := NewLoader(e.opts)
	l.once.Do(func() {})
	l.Swap(e)
	close(l.done)
	return l
}
