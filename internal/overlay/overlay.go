// Package overlay implements the interactive search dialog: a small state
// machine that opens on a shortcut, re-runs the query on every text change
// and closes when a result is selected.
package overlay

import (
	"errors"
	"fmt"
	"log"

	"github.com/conky/docsearch/internal/navigation"
	"github.com/conky/docsearch/internal/search"
)

// State of the overlay
type State int

const (
	Closed State = iota
	OpenEmpty
	OpenResults
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenEmpty:
		return "open-empty"
	case OpenResults:
		return "open-results"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrClosed is returned when the query changes while the overlay is closed
var ErrClosed = errors.New("search overlay is closed")

// OpenKey opens the overlay when no text input has focus
const OpenKey = '/'

// ToggleKey toggles the overlay together with Ctrl or Cmd
const ToggleKey = 'k'

// Key is a key press as seen by the global shortcut handler
type Key struct {
	Rune rune
	// Mod is set when Ctrl (or Cmd on macOS) is held
	Mod bool
	// InputFocused is set when a text input already has focus
	InputFocused bool
}

// Searcher runs queries. *search.Loader satisfies it.
type Searcher interface {
	Search(query string) ([]search.Result, error)
}

// Overlay is owned by a single UI loop and is not safe for concurrent use
type Overlay struct {
	searcher Searcher
	state    State
	query    string
	results  []search.Result
	loading  bool
}

// New returns a closed overlay backed by searcher
func New(searcher Searcher) *Overlay {
	return &Overlay{searcher: searcher, state: Closed}
}

// State returns the current state
func (o *Overlay) State() State { return o.state }

// IsOpen reports whether the dialog is shown
func (o *Overlay) IsOpen() bool { return o.state != Closed }

// Query returns the current query text
func (o *Overlay) Query() string { return o.query }

// Results returns the results of the last query
func (o *Overlay) Results() []search.Result { return o.results }

// Loading reports whether the last query hit an index that is not loaded
func (o *Overlay) Loading() bool { return o.loading }

// Open shows the dialog with an empty query. It returns false if the
// overlay was already open.
func (o *Overlay) Open() bool {
	if o.state != Closed {
		return false
	}
	o.state = OpenEmpty
	o.query = ""
	o.results = nil
	o.loading = false
	return true
}

// Close hides the dialog
func (o *Overlay) Close() {
	o.state = Closed
}

// HandleKey applies the global shortcuts and reports whether the key was
// consumed
func (o *Overlay) HandleKey(k Key) bool {
	toggle := k.Mod && k.Rune == ToggleKey
	switch {
	case toggle && o.IsOpen():
		o.Close()
		return true
	case !o.IsOpen() && (toggle || (k.Rune == OpenKey && !k.Mod && !k.InputFocused)):
		return o.Open()
	}
	return false
}

// SetQuery re-evaluates the results for text. Empty text returns to
// OpenEmpty; anything else lands in OpenResults, with or without matches.
func (o *Overlay) SetQuery(text string) error {
	if o.state == Closed {
		return ErrClosed
	}

	o.query = text
	o.loading = false
	if text == "" {
		o.state = OpenEmpty
		o.results = nil
		return nil
	}

	o.state = OpenResults
	results, err := o.searcher.Search(text)
	if err != nil {
		o.results = nil
		if errors.Is(err, search.ErrIndexLoading) {
			o.loading = true
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}
	o.results = results
	return nil
}

// Select navigates to result and closes the overlay. A nil result means
// nothing was chosen and leaves the overlay as it is.
func (o *Overlay) Select(result *search.Result) (navigation.Request, bool, error) {
	if result == nil || result.Record == nil {
		return navigation.Request{}, false, nil
	}
	req, err := navigation.Resolve(*result.Record)
	if err != nil {
		log.Printf("Error: unroutable search result: %v", err)
		return navigation.Request{}, false, err
	}
	o.Close()
	return req, true, nil
}
