package overlay

import (
	"errors"
	"testing"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/navigation"
	"github.com/conky/docsearch/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySearcher() *search.Loader {
	src := indexing.Sources{
		Config: []indexing.DocEntry{{Name: "alignment", Desc: "Aligned position on screen."}},
		Vars: []indexing.DocEntry{
			{Name: "cpu", Desc: "CPU usage in percents."},
			{Name: "mem", Desc: "Amount of memory in use."},
		},
		Lua: []indexing.DocEntry{{Name: "conky_parse", Desc: "Parses a string."}},
	}
	idx := indexing.BuildIndex(src, indexing.DefaultBuildOptions())
	return search.Ready(search.NewEngine(idx, search.DefaultOptions()))
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(string) ([]search.Result, error) { return nil, f.err }

func TestOverlay_Shortcuts(t *testing.T) {
	tests := []struct {
		name      string
		start     State
		key       Key
		wantState State
		consumed  bool
	}{
		{"slash opens", Closed, Key{Rune: '/'}, OpenEmpty, true},
		{"slash ignored in input", Closed, Key{Rune: '/', InputFocused: true}, Closed, false},
		{"ctrl+k opens", Closed, Key{Rune: 'k', Mod: true}, OpenEmpty, true},
		{"ctrl+k opens from input", Closed, Key{Rune: 'k', Mod: true, InputFocused: true}, OpenEmpty, true},
		{"ctrl+k closes", OpenEmpty, Key{Rune: 'k', Mod: true}, Closed, true},
		{"ctrl+k closes with results", OpenResults, Key{Rune: 'k', Mod: true}, Closed, true},
		{"slash while open is text", OpenEmpty, Key{Rune: '/'}, OpenEmpty, false},
		{"plain k ignored", Closed, Key{Rune: 'k'}, Closed, false},
		{"ctrl+slash ignored", Closed, Key{Rune: '/', Mod: true}, Closed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(readySearcher())
			switch tt.start {
			case OpenEmpty:
				require.True(t, o.Open())
			case OpenResults:
				require.True(t, o.Open())
				require.NoError(t, o.SetQuery("cpu"))
			}

			assert.Equal(t, tt.consumed, o.HandleKey(tt.key))
			assert.Equal(t, tt.wantState, o.State())
		})
	}
}

func TestOverlay_QueryTransitions(t *testing.T) {
	o := New(readySearcher())
	assert.Equal(t, Closed, o.State())
	assert.ErrorIs(t, o.SetQuery("cpu"), ErrClosed)

	require.True(t, o.Open())
	assert.False(t, o.Open(), "opening twice is a no-op")
	assert.Equal(t, OpenEmpty, o.State())

	require.NoError(t, o.SetQuery("cpu"))
	assert.Equal(t, OpenResults, o.State())
	require.NotEmpty(t, o.Results())
	assert.Equal(t, "cpu", o.Results()[0].Record.Name)

	require.NoError(t, o.SetQuery("xyz123"))
	assert.Equal(t, OpenResults, o.State(), "no matches still shows the results view")
	assert.Empty(t, o.Results())

	require.NoError(t, o.SetQuery(""))
	assert.Equal(t, OpenEmpty, o.State())
	assert.Empty(t, o.Results())

	o.Close()
	assert.Equal(t, Closed, o.State())
}

func TestOverlay_OpenResetsQuery(t *testing.T) {
	o := New(readySearcher())
	require.True(t, o.Open())
	require.NoError(t, o.SetQuery("cpu"))
	o.Close()

	require.True(t, o.Open())
	assert.Equal(t, "", o.Query())
	assert.Empty(t, o.Results())
	assert.Equal(t, OpenEmpty, o.State())
}

func TestOverlay_Loading(t *testing.T) {
	o := New(search.NewLoader(search.DefaultOptions()))
	require.True(t, o.Open())

	require.NoError(t, o.SetQuery("cpu"))
	assert.True(t, o.Loading())
	assert.Equal(t, OpenResults, o.State())
	assert.Empty(t, o.Results())

	require.NoError(t, o.SetQuery(""))
	assert.False(t, o.Loading())
}

func TestOverlay_SearchError(t *testing.T) {
	boom := errors.New("boom")
	o := New(failingSearcher{err: boom})
	require.True(t, o.Open())

	err := o.SetQuery("cpu")
	assert.ErrorIs(t, err, boom)
	assert.False(t, o.Loading())
	assert.Empty(t, o.Results())
}

func TestOverlay_Select(t *testing.T) {
	o := New(readySearcher())
	require.True(t, o.Open())
	require.NoError(t, o.SetQuery("cpu"))

	t.Run("nil is a no-op", func(t *testing.T) {
		req, ok, err := o.Select(nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, navigation.Request{}, req)
		assert.Equal(t, OpenResults, o.State())
	})

	t.Run("unknown kind keeps overlay open", func(t *testing.T) {
		bad := search.Result{Record: &indexing.DocRecord{Kind: "guide", Name: "intro"}}
		_, ok, err := o.Select(&bad)
		assert.ErrorIs(t, err, indexing.ErrUnknownKind)
		assert.False(t, ok)
		assert.True(t, o.IsOpen())
	})

	t.Run("result navigates and closes", func(t *testing.T) {
		first := o.Results()[0]
		req, ok, err := o.Select(&first)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, navigation.Request{Page: navigation.PageVariables, Anchor: "cpu"}, req)
		assert.Equal(t, Closed, o.State())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open-empty", OpenEmpty.String())
	assert.Equal(t, "open-results", OpenResults.String())
	assert.Equal(t, "State(9)", State(9).String())
}
