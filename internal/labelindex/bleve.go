package labelindex

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/edna/internal/catalog"
)

var textFields = []string{"phylum", "class", "scientific_name"}

const indexBatchSize = 1000

// BleveIndex implements LabelIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func labelMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	// standard analyzer keeps taxon names unstemmed
	text.Analyzer = standard.Name
	for _, f := range textFields {
		doc.AddFieldMappingsAt(f, text)
	}
	keyword := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("ref_id", keyword)
	doc.AddFieldMappingsAt("taxid", keyword)
	im.AddDocumentMapping("reference", doc)
	im.DefaultType = "reference"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives an
// in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(labelMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, labelMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces entries keyed by accession, in batches.
func (b *BleveIndex) Index(ctx context.Context, entries []catalog.ReferenceEntry) error {
	batch := b.index.NewBatch()
	for _, e := range entries {
		doc := map[string]interface{}{
			"ref_id":          e.ExternalID,
			"phylum":          e.Phylum,
			"class":           e.Class,
			"taxid":           e.TaxID,
			"scientific_name": e.ScientificName,
		}
		if err := batch.Index(e.ExternalID, doc); err != nil {
			return fmt.Errorf("index %s: %w", e.ExternalID, err)
		}
		if batch.Size() >= indexBatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Search matches query against accession, taxid and label text.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if limit <= 0 {
		limit = 10
	}
	var q blevequery.Query
	if opts != nil && opts.Fuzzy {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		idQuery := bleve.NewTermQuery(strings.TrimSpace(query))
		idQuery.SetField("ref_id")
		taxQuery := bleve.NewTermQuery(strings.TrimSpace(query))
		taxQuery.SetField("taxid")
		q = bleve.NewDisjunctionQuery(idQuery, taxQuery, bleve.NewMatchQuery(query))
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{RefID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildFuzzyQuery ORs a fuzzy query per term over the label text fields.
func buildFuzzyQuery(query string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return bleve.NewMatchQuery(query)
	}
	queries := make([]blevequery.Query, 0, len(terms)*len(textFields))
	for _, term := range terms {
		for _, f := range textFields {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(f)
			queries = append(queries, fq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Suggest walks the label term dictionaries and returns terms within maxEdits of term.
func (b *BleveIndex) Suggest(term string, maxEdits, limit int) ([]string, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	type candidate struct {
		term  string
		dist  int
		count uint64
	}
	seen := make(map[string]struct{})
	var cands []candidate
	for _, f := range textFields {
		dict, err := b.index.FieldDict(f)
		if err != nil {
			return nil, fmt.Errorf("read %s dictionary: %w", f, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; ok || entry.Term == strings.ToLower(catalog.NA) {
				continue
			}
			seen[entry.Term] = struct{}{}
			if d := editDistance(term, entry.Term); d <= maxEdits {
				cands = append(cands, candidate{term: entry.Term, dist: d, count: entry.Count})
			}
		}
		_ = dict.Close()
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].term < cands[j].term
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.term
	}
	return out, nil
}

// editDistance is the Levenshtein distance over runes, kept in two rows.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// DocCount returns the total number of indexed references.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
