package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/overlay"
	"github.com/conky/docsearch/internal/search"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Interactive search overlay in the terminal",
	Long: `browse opens the search overlay in the terminal. Press / or Ctrl+K to open it,
type to search, Enter to open the best match, Esc or Ctrl+K to close, q or
Ctrl+C to quit.`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

const (
	keyCtrlC     = 0x03
	keyCtrlK     = 0x0b
	keyEnter     = '\r'
	keyEsc       = 0x1b
	keyBackspace = 0x7f
	keyCtrlH     = 0x08

	defaultWidth = 80
	maxShown     = 10
)

type keyKind int

const (
	evRune keyKind = iota
	evToggle
	evEscape
	evEnter
	evBackspace
	evInterrupt
)

type keyEvent struct {
	kind keyKind
	r    rune
}

// decodeKeys splits one raw terminal read into key events. Escape
// sequences (arrows, function keys) are dropped; a lone ESC is kept.
func decodeKeys(buf []byte) []keyEvent {
	var events []keyEvent
	for len(buf) > 0 {
		b := buf[0]
		switch {
		case b == keyEsc:
			if len(buf) == 1 {
				return append(events, keyEvent{kind: evEscape})
			}
			// CSI/SS3 sequence: ESC [ ... final byte in 0x40..0x7e
			if buf[1] == '[' || buf[1] == 'O' {
				i := 2
				for i < len(buf) && (buf[i] < 0x40 || buf[i] > 0x7e) {
					i++
				}
				buf = buf[min(i+1, len(buf)):]
				continue
			}
			events = append(events, keyEvent{kind: evEscape})
			buf = buf[1:]
			continue
		case b == keyCtrlC:
			events = append(events, keyEvent{kind: evInterrupt})
		case b == keyCtrlK:
			events = append(events, keyEvent{kind: evToggle})
		case b == keyEnter || b == '\n':
			events = append(events, keyEvent{kind: evEnter})
		case b == keyBackspace || b == keyCtrlH:
			events = append(events, keyEvent{kind: evBackspace})
		case b < 0x20:
			// other control keys are ignored
		default:
			r, size := utf8.DecodeRune(buf)
			if r != utf8.RuneError {
				events = append(events, keyEvent{kind: evRune, r: r})
			}
			buf = buf[size:]
			continue
		}
		buf = buf[1:]
	}
	return events
}

// browser drives an overlay from key events and renders it as text
type browser struct {
	ov      *overlay.Overlay
	baseURL string
	width   int

	// last navigation, shown under the overlay
	opened string
	status string
}

func newBrowser(s overlay.Searcher, baseURL string, width int) *browser {
	if width <= 0 {
		width = defaultWidth
	}
	return &browser{ov: overlay.New(s), baseURL: baseURL, width: width}
}

// handle applies one event and reports whether the session should end
func (b *browser) handle(ev keyEvent) bool {
	b.status = ""
	switch ev.kind {
	case evInterrupt:
		return true
	case evToggle:
		b.ov.HandleKey(overlay.Key{Rune: overlay.ToggleKey, Mod: true})
	case evEscape:
		b.ov.Close()
	case evRune:
		if !b.ov.IsOpen() {
			if ev.r == 'q' {
				return true
			}
			b.ov.HandleKey(overlay.Key{Rune: ev.r})
			return false
		}
		b.setQuery(b.ov.Query() + string(ev.r))
	case evBackspace:
		if b.ov.IsOpen() {
			q := b.ov.Query()
			_, size := utf8.DecodeLastRuneInString(q)
			b.setQuery(q[:len(q)-size])
		}
	case evEnter:
		if b.ov.IsOpen() {
			b.selectFirst()
		}
	}
	return false
}

func (b *browser) setQuery(text string) {
	if err := b.ov.SetQuery(text); err != nil {
		b.status = err.Error()
	}
}

// refresh re-runs the current query, e.g. once the index finished loading
func (b *browser) refresh() {
	if b.ov.IsOpen() && b.ov.Query() != "" {
		b.setQuery(b.ov.Query())
	}
}

func (b *browser) selectFirst() {
	results := b.ov.Results()
	if len(results) == 0 {
		return
	}
	req, ok, err := b.ov.Select(&results[0])
	if err != nil {
		b.status = err.Error()
		return
	}
	if !ok {
		return
	}
	url, err := req.URL(b.baseURL)
	if err != nil {
		url = req.Path()
	}
	b.opened = url
}

// render draws the current state. Lines end in \r\n for raw mode.
func (b *browser) render(w io.Writer) {
	var sb strings.Builder
	line := func(format string, args ...any) {
		s := fmt.Sprintf(format, args...)
		if utf8.RuneCountInString(s) > b.width {
			s = indexing.Truncate(s, b.width-1) + "…"
		}
		sb.WriteString(s)
		sb.WriteString("\r\n")
	}

	sb.WriteString("\x1b[2J\x1b[H")
	switch b.ov.State() {
	case overlay.Closed:
		line("Conky docs. Press / or Ctrl+K to search, q to quit.")
	case overlay.OpenEmpty:
		line("Search: _")
		line("")
		line("Type a setting, variable or Lua function name.")
	case overlay.OpenResults:
		line("Search: %s_", b.ov.Query())
		line("")
		results := b.ov.Results()
		switch {
		case b.ov.Loading():
			line("Loading search index...")
		case len(results) == 0:
			line("No results.")
		}
		for i, r := range results {
			if i == maxShown {
				line("  ... %d more", len(results)-maxShown)
				break
			}
			line("%s %-7s %-24s %s", marker(i), r.Record.Kind, r.Record.Name,
				indexing.Excerpt(r.Record.Desc, indexing.ExcerptChars))
		}
	}
	if b.opened != "" {
		line("")
		line("Opened %s", b.opened)
	}
	if b.status != "" {
		line("")
		line("Error: %s", b.status)
	}
	io.WriteString(w, sb.String())
}

func marker(i int) string {
	if i == 0 {
		return ">"
	}
	return " "
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("browse needs an interactive terminal")
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = defaultWidth
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The overlay is usable while the index loads
	loader := search.NewLoader(cfg.SearchOptions())
	loader.Start(ctx, artifactFetch(cfg.Index.Path))

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan []byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 64)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case keys <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	loaded := make(chan struct{})
	go func() {
		loader.Wait(ctx)
		close(loaded)
	}()

	b := newBrowser(loader, cfg.Docs.BaseURL, width)
	out := cmd.OutOrStdout()
	b.render(out)

	for {
		select {
		case chunk, ok := <-keys:
			if !ok {
				return nil
			}
			for _, ev := range decodeKeys(chunk) {
				if b.handle(ev) {
					io.WriteString(out, "\x1b[2J\x1b[H")
					return nil
				}
			}
		case <-loaded:
			loaded = nil
			if err := loader.Err(); err != nil {
				b.status = err.Error()
			}
			b.refresh()
		case <-ctx.Done():
			return nil
		}
		b.render(out)
	}
}
