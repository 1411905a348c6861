// Package cli provides output formatting and HTTP helpers for the edna CLI.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ClassifyResult is what the classify command prints: the records plus, for
// batches sent to the server, the run id, summary and clusters.
type ClassifyResult struct {
	RunID    string                  `json:"run_id,omitempty"`
	Summary  classify.Summary        `json:"summary"`
	Results  []classify.Record       `json:"results"`
	Clusters *pipeline.ClusterOutput `json:"clusters,omitempty"`
}

// WriteClassifyResult writes classification results to w in the given format.
func WriteClassifyResult(w io.Writer, res *ClassifyResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	s := res.Summary
	fmt.Fprintf(w, "\nClassified %d sequences: %d assigned, %d rejected (tau %.2f, metric %s, topk %d)\n",
		s.Total, s.Assigned, s.Rejected, s.Tau, s.Metric, s.TopK)
	if res.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", res.RunID)
	}
	fmt.Fprintln(w)
	for i, rec := range res.Results {
		writeOneRecord(w, i, rec)
	}
	if res.Clusters != nil {
		writeClustersText(w, res.Clusters)
	}
	return nil
}

func writeOneRecord(w io.Writer, i int, rec classify.Record) {
	id := rec.ID
	if id == "" {
		id = fmt.Sprintf("#%d", i+1)
	}
	status := "assigned"
	if rec.IsReject == 1 {
		status = "rejected"
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s [%s] %s\n", id, status, utils.Truncate(rec.InputSeq, 60))
	for rank, h := range rec.TopK {
		fmt.Fprintf(w, "  %d. %-16s similarity %.4f  %s / %s\n", rank+1, h.RefID, h.Similarity, h.Phylum, h.Class)
	}
	if len(rec.TopK) == 0 {
		fmt.Fprintln(w, "  no reference candidates")
	}
}

// WriteClusters writes a clustering result to w in the given format.
func WriteClusters(w io.Writer, out *pipeline.ClusterOutput, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	writeClustersText(w, out)
	return nil
}

func writeClustersText(w io.Writer, out *pipeline.ClusterOutput) {
	fmt.Fprintf(w, "\n%d clusters, %d noise points", out.Clusters, out.Noise)
	if out.OverallSilhouette != nil {
		fmt.Fprintf(w, ", silhouette %.4f", *out.OverallSilhouette)
	}
	fmt.Fprintln(w)
	for _, l := range out.Results {
		line := fmt.Sprintf("  %-16s cluster %3d  confidence %.2f", l.ID, l.Cluster, l.Confidence)
		if l.Silhouette != nil {
			line += fmt.Sprintf("  silhouette %.4f", *l.Silhouette)
		}
		if l.Note != "" {
			line += "  (" + l.Note + ")"
		}
		fmt.Fprintln(w, line)
	}
}

// WriteBuildReport writes a reference build report to w in the given format.
func WriteBuildReport(w io.Writer, rep *pipeline.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rep)
	}
	fmt.Fprintf(w, "references:         %d\n", rep.References)
	fmt.Fprintf(w, "labeled:            %d\n", rep.Labeled)
	fmt.Fprintf(w, "train_sample:       %d\n", rep.TrainSample)
	fmt.Fprintf(w, "index_type:         %s (%s)\n", rep.Stats.Type, rep.Stats.Metric)
	if rep.Stats.Nlist > 0 {
		fmt.Fprintf(w, "nlist:              %d\n", rep.Nlist)
		fmt.Fprintf(w, "pq:                 %d segments x %d bits\n", rep.Stats.Segments, rep.Stats.BitsPerSegment)
		fmt.Fprintf(w, "compression_ratio:  %.1f\n", rep.Stats.CompressionRatio)
	}
	fmt.Fprintf(w, "memory:             %s\n", utils.FormatBytes(rep.Stats.MemoryBytes))
	fmt.Fprintf(w, "index:              %s\n", rep.IndexPath)
	fmt.Fprintf(w, "catalog:            %s\n", rep.CatalogPath)
	fmt.Fprintf(w, "duration:           %s\n", rep.Duration.Round(time.Millisecond))
	return nil
}

// Client is a small JSON client for the edna HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 2 * time.Minute}}
}

// PostJSON sends body to path and decodes a 200 response into out.
func (c *Client) PostJSON(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Post(c.BaseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

// GetJSON fetches path and decodes a 200 response into out.
func (c *Client) GetJSON(path string, out any) error {
	resp, err := c.HTTP.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
