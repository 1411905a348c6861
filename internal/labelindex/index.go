// Package labelindex provides full-text search over reference accessions and their taxonomy.
package labelindex

import (
	"context"

	"github.com/hyperjump/edna/internal/catalog"
)

// LabelIndex defines reference label search operations.
type LabelIndex interface {
	Index(ctx context.Context, entries []catalog.ReferenceEntry) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	// Suggest returns indexed label terms within maxEdits of term, closest first.
	Suggest(term string, maxEdits, limit int) ([]string, error)
	DocCount() (uint64, error)
	Close() error
}

// SearchOptions optional parameters for label search. Nil means exact term matching.
type SearchOptions struct {
	// Fuzzy matches terms within Fuzziness edits, for misspelled taxon names.
	Fuzzy bool
	// Fuzziness is the maximum edit distance when Fuzzy is set (default 1).
	Fuzziness int
}

// Result is a single label search hit.
type Result struct {
	RefID string  `json:"ref_id"`
	Score float64 `json:"score"`
}
