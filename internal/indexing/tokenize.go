package indexing

import (
	"math"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// analyzer is shared by index construction and query parsing. No stop word
// or stemming filters: names like "if_up" must survive intact.
var analyzer analysis.Analyzer = &analysis.DefaultAnalyzer{
	Tokenizer:    unicode.NewUnicodeTokenizer(),
	TokenFilters: []analysis.TokenFilter{lowercase.NewLowerCaseFilter()},
}

// Terms splits text into unique lowercase terms in first-occurrence order
func Terms(text string) []string {
	if text == "" {
		return nil
	}
	stream := analyzer.Analyze([]byte(text))
	seen := make(map[string]struct{}, len(stream))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// TokenizeField builds the indexed form of a single field value
func TokenizeField(value string) TokenField {
	terms := Terms(value)
	if terms == nil {
		terms = []string{}
	}
	return TokenField{Terms: terms, Norm: fieldNorm(len(terms))}
}

// fieldNorm is 1/sqrt(n) rounded to three decimals; longer fields weigh less
func fieldNorm(n int) float64 {
	if n == 0 {
		return 1
	}
	return math.Round(1000/math.Sqrt(float64(n))) / 1000
}
