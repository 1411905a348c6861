// Package report writes classification and clustering results as TSV, JSON and XLSX.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/novelty"
)

// Row pairs a classification with its ASV id and, when clustering ran, its cluster.
type Row struct {
	ASVID   string
	Record  classify.Record
	Cluster *novelty.Labeled
}

var taxonomyHeader = []string{"ASV_id", "ref_id", "similarity", "phylum", "class", "is_reject"}

func formatSimilarity(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}

// WriteTaxonomyTSV writes one line per ASV with its top hit.
func WriteTaxonomyTSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(taxonomyHeader); err != nil {
		return err
	}
	for _, r := range rows {
		top := r.Record.TopHit
		line := []string{r.ASVID, top.RefID, formatSimilarity(top.Similarity), top.Phylum, top.Class, strconv.Itoa(r.Record.IsReject)}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type topKEntry struct {
	ASVID  string         `json:"asv_id"`
	TopK   []classify.Hit `json:"topk"`
	Reject int            `json:"is_reject"`
}

// WriteTopKJSON writes the ranked hits of every ASV as a JSON array.
func WriteTopKJSON(w io.Writer, rows []Row) error {
	out := make([]topKEntry, len(rows))
	for i, r := range rows {
		out[i] = topKEntry{ASVID: r.ASVID, TopK: r.Record.TopK, Reject: r.Record.IsReject}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteSummaryJSON writes the batch summary.
func WriteSummaryJSON(w io.Writer, s classify.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteXLSX writes a workbook with taxonomy, clusters and summary sheets.
// The clusters sheet is present only when some row carries a cluster.
func WriteXLSX(w io.Writer, rows []Row, s classify.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	const taxonomy = "taxonomy"
	if err := f.SetSheetName("Sheet1", taxonomy); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, taxonomy, 1, toAny(taxonomyHeader)); err != nil {
		return err
	}
	for i, r := range rows {
		top := r.Record.TopHit
		if err := setRow(f, taxonomy, i+2, []any{r.ASVID, top.RefID, top.Similarity, top.Phylum, top.Class, r.Record.IsReject}); err != nil {
			return err
		}
	}

	clustered := false
	for _, r := range rows {
		if r.Cluster != nil {
			clustered = true
			break
		}
	}
	if clustered {
		const clusters = "clusters"
		if _, err := f.NewSheet(clusters); err != nil {
			return fmt.Errorf("add sheet: %w", err)
		}
		if err := setRow(f, clusters, 1, []any{"ASV_id", "cluster", "confidence", "silhouette", "note"}); err != nil {
			return err
		}
		line := 2
		for _, r := range rows {
			if r.Cluster == nil {
				continue
			}
			var sil any = ""
			if r.Cluster.Silhouette != nil {
				sil = *r.Cluster.Silhouette
			}
			if err := setRow(f, clusters, line, []any{r.ASVID, r.Cluster.Cluster, r.Cluster.Confidence, sil, r.Cluster.Note}); err != nil {
				return err
			}
			line++
		}
	}

	const summary = "summary"
	if _, err := f.NewSheet(summary); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	pairs := [][]any{
		{"total", s.Total},
		{"assigned", s.Assigned},
		{"rejected", s.Rejected},
		{"tau", s.Tau},
		{"metric", s.Metric},
		{"topk", s.TopK},
	}
	for i, p := range pairs {
		if err := setRow(f, summary, i+1, p); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
