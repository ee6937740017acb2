// Package wordfreq extracts word frequency tables from plain text.
//
// Text is segmented by an Analyzer, filtered by grammatical category, canonical
// form availability and a stopword list, then counted. The resulting Table keeps
// first-encountered order and is capped at Config.Limit entries.
package wordfreq

import (
	"fmt"
	"sort"
)

// DefaultLimit is the number of entries a Table is capped to.
const DefaultLimit = 100

// DefaultCategories keeps nouns only.
var DefaultCategories = []string{"名詞"}

// DefaultStopwords drops URL fragments and generic nouns.
var DefaultStopwords = []string{
	"https", "://", "[", "]", "@", "co", "jp", "com", "/", "in",
	"もの", "これ", "ため", "それ", "ところ", "よう", "の", "こと", "とき", "ん",
}

// UnknownPolicy decides what happens to a token without a canonical form.
type UnknownPolicy string

const (
	// UnknownDrop discards the token.
	UnknownDrop UnknownPolicy = "drop"
	// UnknownSurface counts the token under its surface form.
	UnknownSurface UnknownPolicy = "surface"
)

// ParseUnknownPolicy validates s.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(s); p {
	case UnknownDrop, UnknownSurface:
		return p, nil
	}
	return "", fmt.Errorf("unknown canonical form policy %q (want drop or surface)", s)
}

// TruncatePolicy decides which entries survive the Limit cap.
type TruncatePolicy string

const (
	// TruncateFirst keeps the first Limit distinct words in encounter order,
	// without looking at their counts.
	TruncateFirst TruncatePolicy = "first"
	// TruncateTop sorts by descending count (ties in encounter order) and
	// keeps the first Limit entries.
	TruncateTop TruncatePolicy = "top"
)

// ParseTruncatePolicy validates s.
func ParseTruncatePolicy(s string) (TruncatePolicy, error) {
	switch p := TruncatePolicy(s); p {
	case TruncateFirst, TruncateTop:
		return p, nil
	}
	return "", fmt.Errorf("unknown truncate policy %q (want first or top)", s)
}

// Entry is the count of one distinct word.
type Entry struct {
	Text  string
	Count int
}

// Table is a frequency table.
type Table []Entry

// Max returns the highest count, or 0 for an empty table.
func (t Table) Max() int {
	m := 0
	for _, e := range t {
		if e.Count > m {
			m = e.Count
		}
	}
	return m
}

// Counts returns the table as a map.
func (t Table) Counts() map[string]int {
	m := make(map[string]int, len(t))
	for _, e := range t {
		m[e.Text] = e.Count
	}
	return m
}

// Config configures an Extractor. Zero values fall back to the defaults above.
type Config struct {
	Categories []string
	Stopwords  []string
	Unknown    UnknownPolicy
	Truncate   TruncatePolicy
	Limit      int
}

// Extractor builds frequency tables. It holds no mutable state and is safe
// for concurrent use when its Analyzer is.
type Extractor struct {
	analyzer   Analyzer
	categories map[string]struct{}
	stopwords  map[string]struct{}
	unknown    UnknownPolicy
	truncate   TruncatePolicy
	limit      int
}

// NewExtractor returns an Extractor using a.
func NewExtractor(a Analyzer, cfg Config) *Extractor {
	if cfg.Categories == nil {
		cfg.Categories = DefaultCategories
	}
	if cfg.Stopwords == nil {
		cfg.Stopwords = DefaultStopwords
	}
	if cfg.Unknown == "" {
		cfg.Unknown = UnknownDrop
	}
	if cfg.Truncate == "" {
		cfg.Truncate = TruncateFirst
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Extractor{
		analyzer:   a,
		categories: toSet(cfg.Categories),
		stopwords:  toSet(cfg.Stopwords),
		unknown:    cfg.Unknown,
		truncate:   cfg.Truncate,
		limit:      cfg.Limit,
	}
}

// Extract counts the words of text.
func (e *Extractor) Extract(text string) Table {
	index := make(map[string]int)
	var table Table
	for _, m := range e.analyzer.Analyze(text) {
		if _, ok := e.categories[m.Category]; !ok {
			continue
		}
		word := m.Canonical
		if word == "" {
			if e.unknown != UnknownSurface {
				continue
			}
			word = m.Surface
		}
		if _, ok := e.stopwords[word]; ok || word == "" {
			continue
		}
		if i, ok := index[word]; ok {
			table[i].Count++
			continue
		}
		index[word] = len(table)
		table = append(table, Entry{Text: word, Count: 1})
	}

	if e.truncate == TruncateTop {
		sort.SliceStable(table, func(i, j int) bool {
			return table[i].Count > table[j].Count
		})
	}
	if len(table) > e.limit {
		table = table[:e.limit]
	}
	return table
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
