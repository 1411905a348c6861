// Package classify turns nearest-neighbour results into taxonomic calls.
package classify

import (
	"fmt"

	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/vector"
)

// Hit is one ranked reference match.
type Hit struct {
	Slot       int64   `json:"-"`
	RefID      string  `json:"ref_id"`
	Similarity float64 `json:"similarity"`
	Distance   float32 `json:"distance"`
	Phylum     string  `json:"phylum"`
	Class      string  `json:"class"`
}

// Record is the classification of one input sequence.
type Record struct {
	ID       string `json:"id,omitempty"`
	InputSeq string `json:"input_seq"`
	TopHit   Hit    `json:"top_hit"`
	IsReject int    `json:"is_reject"`
	Accepted bool   `json:"accepted"`
	TopK     []Hit  `json:"topk"`
}

func sentinelHit() Hit {
	e := catalog.Sentinel()
	return Hit{Slot: e.Slot, RefID: e.ExternalID, Phylum: e.Phylum, Class: e.Class}
}

// Classify resolves qr against cat and applies the acceptance threshold tau.
// The hit order of qr is kept. A query without hits gets the NA sentinel as its
// top hit and is rejected. A slot unknown to cat is a corruption error.
func Classify(input string, qr vector.QueryResult, cat *catalog.Catalog, metric vector.Metric, tau float64) (Record, error) {
	sims := Similarity(metric, qr)
	hits := make([]Hit, len(qr))
	var top catalog.ReferenceEntry
	for i, h := range qr {
		entry, err := cat.Lookup(h.Slot)
		if err != nil {
			return Record{}, fmt.Errorf("classify %q: %w", input, err)
		}
		if i == 0 {
			top = entry
		}
		hits[i] = Hit{
			Slot:       h.Slot,
			RefID:      entry.ExternalID,
			Similarity: sims[i],
			Distance:   h.Distance,
			Phylum:     entry.Phylum,
			Class:      entry.Class,
		}
	}

	rec := Record{InputSeq: input, TopK: hits, TopHit: sentinelHit()}
	if len(hits) > 0 {
		rec.TopHit = hits[0]
		rec.Accepted = hits[0].Similarity >= tau && top.HasLabel()
	}
	if !rec.Accepted {
		rec.IsReject = 1
	}
	return rec, nil
}

// Summary aggregates a batch of records.
type Summary struct {
	Total    int     `json:"total"`
	Assigned int     `json:"assigned"`
	Rejected int     `json:"rejected"`
	Tau      float64 `json:"tau"`
	Metric   string  `json:"metric"`
	TopK     int     `json:"topk"`
}

// Summarize counts accepted and rejected records.
func Summarize(records []Record, metric vector.Metric, topk int, tau float64) Summary {
	s := Summary{Total: len(records), Tau: tau, Metric: string(metric), TopK: topk}
	for _, r := range records {
		if r.Accepted {
			s.Assigned++
		} else {
			s.Rejected++
		}
	}
	return s
}
