package models

import (
	"fmt"
	"strings"
)

// SequenceInput is one named sequence of a batch request.
type SequenceInput struct {
	ID       string `json:"id"`
	Sequence string `json:"sequence"`
}

// ClassifyRequest is the body of a single-sequence classification.
// Tau is a pointer so that an explicit 0 is distinguishable from absent.
type ClassifyRequest struct {
	Sequence string   `json:"sequence"`
	TopK     int      `json:"topk,omitempty"`
	Tau      *float64 `json:"tau,omitempty"`
}

// Validate fills defaults and checks ranges.
func (r *ClassifyRequest) Validate(defaultTopK int, defaultTau float64) error {
	if strings.TrimSpace(r.Sequence) == "" {
		return fmt.Errorf("sequence cannot be empty")
	}
	return checkParams(&r.TopK, &r.Tau, defaultTopK, defaultTau)
}

// BatchRequest is the body of a batch classification or clustering request.
type BatchRequest struct {
	Sequences []SequenceInput `json:"sequences"`
	TopK      int             `json:"topk,omitempty"`
	Tau       *float64        `json:"tau,omitempty"`
	Cluster   bool            `json:"cluster,omitempty"`
}

// Validate fills defaults and ids and checks ranges. Missing ids become seq_<n>.
func (r *BatchRequest) Validate(defaultTopK int, defaultTau float64) error {
	if len(r.Sequences) == 0 {
		return fmt.Errorf("sequences cannot be empty")
	}
	for i := range r.Sequences {
		if strings.TrimSpace(r.Sequences[i].Sequence) == "" {
			return fmt.Errorf("sequence %d is empty", i)
		}
		if r.Sequences[i].ID == "" {
			r.Sequences[i].ID = fmt.Sprintf("seq_%d", i+1)
		}
	}
	return checkParams(&r.TopK, &r.Tau, defaultTopK, defaultTau)
}

// IDs returns the sequence ids in order.
func (r *BatchRequest) IDs() []string {
	out := make([]string, len(r.Sequences))
	for i, s := range r.Sequences {
		out[i] = s.ID
	}
	return out
}

// Seqs returns the raw sequences in order.
func (r *BatchRequest) Seqs() []string {
	out := make([]string, len(r.Sequences))
	for i, s := range r.Sequences {
		out[i] = s.Sequence
	}
	return out
}

func checkParams(topk *int, tau **float64, defaultTopK int, defaultTau float64) error {
	if *topk == 0 {
		*topk = defaultTopK
	}
	if *topk < 1 {
		return fmt.Errorf("topk must be >= 1, got %d", *topk)
	}
	if *tau == nil {
		t := defaultTau
		*tau = &t
	}
	if t := **tau; t < 0 || t > 1 {
		return fmt.Errorf("tau must be in [0,1], got %v", t)
	}
	return nil
}
