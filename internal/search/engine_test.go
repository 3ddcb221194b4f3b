package search

import (
	"math"
	"reflect"
	"testing"

	"github.com/conky/docsearch/internal/indexing"
)

func fixtureIndex() *indexing.SearchIndex {
	src := indexing.Sources{
		Config: []indexing.DocEntry{
			{Name: "alignment", Desc: "Aligned position on screen, may be top_left, top_right or bottom_left."},
			{Name: "cpu_avg_samples", Desc: "The number of samples to average for CPU monitoring."},
			{Name: "update_interval", Desc: "Update interval in seconds."},
		},
		Vars: []indexing.DocEntry{
			{Name: "cpu", Desc: "CPU usage in percents. For SMP machines, the CPU number can be provided as an argument."},
			{Name: "cpubar", Desc: "Bar that shows CPU usage."},
			{Name: "mem", Desc: "Amount of memory in use."},
			{Name: "uptime", Desc: "Uptime."},
		},
		Lua: []indexing.DocEntry{
			{Name: "conky_parse", Desc: "Parses a string with Conky variables and returns the result."},
		},
	}
	return indexing.BuildIndex(src, indexing.DefaultBuildOptions())
}

func names(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.Name
	}
	return out
}

func TestEngineSearch(t *testing.T) {
	e := NewEngine(fixtureIndex(), DefaultOptions())

	tests := []struct {
		name      string
		query     string
		wantFirst string
		wantKind  indexing.Kind
		wantNone  bool
	}{
		{name: "exact variable", query: "cpu", wantFirst: "cpu", wantKind: indexing.KindVar},
		{name: "case insensitive", query: "CPU", wantFirst: "cpu", wantKind: indexing.KindVar},
		{name: "prefix", query: "alig", wantFirst: "alignment", wantKind: indexing.KindConfig},
		{name: "typo", query: "alignmnt", wantFirst: "alignment", wantKind: indexing.KindConfig},
		{name: "lua name", query: "conky_parse", wantFirst: "conky_parse", wantKind: indexing.KindLua},
		{name: "description word", query: "memory", wantFirst: "mem", wantKind: indexing.KindVar},
		{name: "no match", query: "xyz123", wantNone: true},
		{name: "empty", query: "", wantNone: true},
		{name: "whitespace", query: "   ", wantNone: true},
		{name: "punctuation only", query: "?!", wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := e.Search(tt.query)
			if results == nil {
				t.Fatal("Search() returned nil, want empty slice")
			}
			if tt.wantNone {
				if len(results) != 0 {
					t.Errorf("Search(%q) = %v, want none", tt.query, names(results))
				}
				return
			}
			if len(results) == 0 {
				t.Fatalf("Search(%q) returned no results", tt.query)
			}
			first := results[0]
			if first.Record.Name != tt.wantFirst || first.Record.Kind != tt.wantKind {
				t.Errorf("first = %s/%s, want %s/%s", first.Record.Kind, first.Record.Name, tt.wantKind, tt.wantFirst)
			}
		})
	}
}

func TestEngineSearch_ExactNameScoresZero(t *testing.T) {
	e := NewEngine(fixtureIndex(), DefaultOptions())
	results := e.Search("cpu")
	if results[0].Score != 0 {
		t.Errorf("exact name score = %v, want 0", results[0].Score)
	}
	if results[0].RefIndex != 3 {
		t.Errorf("RefIndex = %d, want 3", results[0].RefIndex)
	}
	if results[0].Record != &e.Index().List[3] {
		t.Error("Record should point into the index list")
	}
}

func TestEngineSearch_AllTermsMustMatch(t *testing.T) {
	e := NewEngine(fixtureIndex(), DefaultOptions())

	got := names(e.Search("cpu usage"))
	want := []string{"cpu", "cpubar"}
	if !reflect.DeepEqual(got[:min(len(got), 2)], want) {
		t.Errorf("Search(cpu usage) = %v, want prefix %v", got, want)
	}
	for _, n := range got {
		if n == "mem" || n == "uptime" {
			t.Errorf("%s matched without containing every term", n)
		}
	}
}

func TestEngineSearch_OrderingAndBounds(t *testing.T) {
	e := NewEngine(fixtureIndex(), DefaultOptions())

	for _, q := range []string{"cpu", "u", "up", "usage", "conky", "time", "samples average"} {
		results := e.Search(q)
		for i, r := range results {
			if r.Score < 0 || r.Score > DefaultThreshold {
				t.Errorf("Search(%q)[%d].Score = %v out of range", q, i, r.Score)
			}
			if i > 0 && r.Score < results[i-1].Score {
				t.Errorf("Search(%q) not sorted at %d", q, i)
			}
			if i > 0 && r.Score == results[i-1].Score && r.RefIndex < results[i-1].RefIndex {
				t.Errorf("Search(%q) tie at %d not in index order", q, i)
			}
		}
	}
}

func TestEngineSearch_TiesKeepIndexOrder(t *testing.T) {
	src := indexing.Sources{
		Config: []indexing.DocEntry{
			{Name: "zeta", Desc: "shared words"},
			{Name: "alpha", Desc: "shared words"},
		},
		Vars: []indexing.DocEntry{{Name: "beta", Desc: "shared words"}},
	}
	e := NewEngine(indexing.BuildIndex(src, indexing.DefaultBuildOptions()), DefaultOptions())

	got := names(e.Search("shared"))
	want := []string{"zeta", "alpha", "beta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(shared) = %v, want %v", got, want)
	}
}

func TestEngineSearch_Deterministic(t *testing.T) {
	e := NewEngine(fixtureIndex(), DefaultOptions())
	for _, q := range []string{"cpu", "usage", "alignmnt"} {
		if a, b := e.Search(q), e.Search(q); !reflect.DeepEqual(a, b) {
			t.Errorf("Search(%q) not deterministic", q)
		}
	}
}

func TestEngineSearch_Threshold(t *testing.T) {
	strict := NewEngine(fixtureIndex(), Options{Threshold: 0.01})
	if got := strict.Search("alignmnt"); len(got) != 0 {
		t.Errorf("strict threshold should drop typo matches, got %v", names(got))
	}
	if got := strict.Search("cpu"); len(got) == 0 || got[0].Record.Name != "cpu" {
		t.Errorf("strict threshold should keep exact matches, got %v", names(got))
	}

	if e := NewEngine(fixtureIndex(), Options{}); e.opts.Threshold != DefaultThreshold {
		t.Errorf("zero threshold should default to %v, got %v", DefaultThreshold, e.opts.Threshold)
	}
}

func TestEngineSearch_EmptyIndex(t *testing.T) {
	e := NewEngine(indexing.BuildIndex(indexing.Sources{}, indexing.DefaultBuildOptions()), DefaultOptions())
	if got := e.Search("cpu"); len(got) != 0 {
		t.Errorf("empty index returned %v", names(got))
	}
	if e.Len() != 0 {
		t.Errorf("Len() = %d", e.Len())
	}
}

func TestTermScore(t *testing.T) {
	tests := []struct {
		q, term string
		want    float64
	}{
		{"cpu", "cpu", 0},
		{"cpu", "cpubar", 0.2},
		{"bar", "cpubar", 0.4},
		{"cpx", "cpu", 0.2 + 0.4/3},
		{"alignmnt", "alignment", 0.25},
		{"ab", "ac", 1},
		{"memory", "xyzzyq", 1},
		{"cpu", "cpu_avg_samples_long", 0.1 + 0.2*(1-3.0/20)},
	}

	for _, tt := range tests {
		if got := termScore(tt.q, tt.term); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("termScore(%q, %q) = %v, want %v", tt.q, tt.term, got, tt.want)
		}
	}
}

func TestFieldScore_NormPenalty(t *testing.T) {
	short := indexing.TokenField{Terms: []string{"cpu"}, Norm: 1}
	long := indexing.TokenField{Terms: []string{"cpu", "usage", "in", "percents"}, Norm: 0.5}

	if fieldScore("cpu", short) >= fieldScore("cpu", long) {
		t.Error("a match in a short field should score better than in a long one")
	}
	if fieldScore("nope", short) != 1 {
		t.Error("no match should score 1")
	}
}
