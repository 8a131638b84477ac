// Package ranking orders candidate records by lexical relevance.
package ranking

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"PaperTriage/internal/domain"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75

	minTokenLen = 2
)

// Scored pairs a record with its relevance.
type Scored struct {
	Record domain.CatalogRecord `json:"record"`
	Score  float64              `json:"score"`
}

// BM25 ranks over title and abstract. The index is built per call from
// exactly the records passed in and is not retained.
type BM25 struct {
	k1 float64
	b  float64
}

// NewBM25 uses k1=1.5 and b=0.75.
func NewBM25() *BM25 {
	return &BM25{k1: DefaultK1, b: DefaultB}
}

// Rank scores records against query, highest first, newer UpdatedAt first on
// ties. A query without usable tokens returns the records unscored in their
// original order; a query matching nothing returns an empty slice. A term
// repeated in the query contributes once per occurrence.
func (r *BM25) Rank(records []domain.CatalogRecord, query string) []Scored {
	queryTokens := Tokenize(query)
	terms := uniqueTerms(queryTokens)
	if len(terms) == 0 {
		out := make([]Scored, len(records))
		for i, rec := range records {
			out[i] = Scored{Record: rec}
		}
		return out
	}

	docs := make([]map[string]int, len(records))
	lengths := make([]int, len(records))
	df := make(map[string]int, len(terms))
	total := 0
	for i, rec := range records {
		tokens := Tokenize(rec.Text())
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		docs[i] = tf
		lengths[i] = len(tokens)
		total += len(tokens)
		for _, term := range terms {
			if tf[term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(records))
	avgdl := 0.0
	if len(records) > 0 {
		avgdl = float64(total) / n
	}

	idf := make(map[string]float64, len(terms))
	for _, term := range terms {
		dfn := float64(df[term])
		idf[term] = math.Log((n-dfn+0.5)/(dfn+0.5) + 1)
	}

	out := make([]Scored, 0, len(records))
	for i, rec := range records {
		score := 0.0
		matched := false
		for _, term := range queryTokens {
			tf := float64(docs[i][term])
			if tf == 0 {
				continue
			}
			matched = true
			norm := 1.0
			if avgdl > 0 {
				norm = 1 - r.b + r.b*float64(lengths[i])/avgdl
			}
			score += idf[term] * tf * (r.k1 + 1) / (tf + r.k1*norm)
		}
		if matched {
			out = append(out, Scored{Record: rec, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.UpdatedAt.After(out[j].Record.UpdatedAt)
	})
	return out
}

// Tokenize lowercases text, splits on anything that is not a letter or digit
// and drops tokens shorter than two characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
