package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/conky/docsearch/internal/indexing"
)

// DefaultThreshold drops matches scoring worse than this
const DefaultThreshold = 0.6

// Result is one ranked match. Record is shared with the engine and must not
// be modified.
type Result struct {
	Record   *indexing.DocRecord `json:"record"`
	RefIndex int                 `json:"ref_index"` // position in the index list
	Score    float64             `json:"score"`     // 0 is a perfect match, lower is better
}

// Options tunes query evaluation
type Options struct {
	Threshold float64
}

// DefaultOptions returns the options used by the docs site
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold}
}

// Engine answers queries against a loaded SearchIndex. It never mutates the
// index, so one Engine can serve concurrent readers.
type Engine struct {
	index  *indexing.SearchIndex
	fields [][]indexing.TokenField // fields[i] holds the token fields of list entry i
	opts   Options
}

// NewEngine wraps a built or deserialized index
func NewEngine(idx *indexing.SearchIndex, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	fields := make([][]indexing.TokenField, len(idx.List))
	for _, rec := range idx.Index.Records {
		if rec.Index >= 0 && rec.Index < len(fields) {
			fields[rec.Index] = rec.Fields
		}
	}
	return &Engine{index: idx, fields: fields, opts: opts}
}

// Len returns the number of indexed records
func (e *Engine) Len() int {
	return len(e.index.List)
}

// Index returns the underlying index
func (e *Engine) Index() *indexing.SearchIndex {
	return e.index
}

// Search evaluates query against the name and desc keys. Empty queries match
// nothing. Results are ordered by ascending score; equal scores keep index
// order.
func (e *Engine) Search(query string) []Result {
	terms := indexing.Terms(strings.TrimSpace(query))
	if len(terms) == 0 {
		return []Result{}
	}

	results := make([]Result, 0)
	for i := range e.index.List {
		score, ok := e.scoreRecord(terms, e.fields[i])
		if !ok || score > e.opts.Threshold {
			continue
		}
		results = append(results, Result{
			Record:   &e.index.List[i],
			RefIndex: i,
			Score:    score,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score < results[b].Score
	})
	return results
}

// scoreRecord averages the best per-term score over all fields. Every query
// term has to match somewhere.
func (e *Engine) scoreRecord(terms []string, fields []indexing.TokenField) (float64, bool) {
	if len(fields) == 0 {
		return 0, false
	}
	total := 0.0
	for _, q := range terms {
		best := 1.0
		for _, f := range fields {
			s := fieldScore(q, f)
			if s < best {
				best = s
			}
		}
		if best >= 1 {
			return 0, false
		}
		total += best
	}
	return total / float64(len(terms)), true
}

// fieldScore scores q against a field. Matches in long fields are pushed
// slightly towards 1 by the field norm.
func fieldScore(q string, f indexing.TokenField) float64 {
	best := 1.0
	for _, term := range f.Terms {
		s := termScore(q, term)
		if s < best {
			best = s
			if best == 0 {
				break
			}
		}
	}
	if best >= 1 {
		return 1
	}
	return 1 - (1-best)*(0.9+0.1*f.Norm)
}

// termScore compares a query term with an indexed term: exact 0, prefix,
// substring, then bounded edit distance. 1 means no match.
func termScore(q, term string) float64 {
	if q == term {
		return 0
	}

	qLen := utf8.RuneCountInString(q)
	tLen := utf8.RuneCountInString(term)

	if strings.HasPrefix(term, q) {
		return 0.1 + 0.2*(1-float64(qLen)/float64(tLen))
	}
	if strings.Contains(term, q) {
		return 0.3 + 0.2*(1-float64(qLen)/float64(tLen))
	}

	maxEdits := allowedEdits(qLen)
	if maxEdits == 0 {
		return 1
	}
	if diff := tLen - qLen; diff > maxEdits || -diff > maxEdits {
		return 1
	}
	d := blevesearch.LevenshteinDistance(q, term)
	if d > maxEdits {
		return 1
	}
	return 0.2 + 0.4*float64(d)/float64(qLen)
}

// allowedEdits grows typo tolerance with term length
func allowedEdits(runes int) int {
	switch {
	case runes < 3:
		return 0
	case runes < 6:
		return 1
	default:
		return 2
	}
}
