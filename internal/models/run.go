// Package models defines the persisted run records and the API request shapes.
package models

import "time"

// Run is one batch analysis stored in the run history.
type Run struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Source    string    `json:"source" db:"source"`
	Total     int       `json:"total" db:"total"`
	Assigned  int       `json:"assigned" db:"assigned"`
	Rejected  int       `json:"rejected" db:"rejected"`
	Tau       float64   `json:"tau" db:"tau"`
	TopK      int       `json:"topk" db:"topk"`
	Metric    string    `json:"metric" db:"metric"`
	Clustered bool      `json:"clustered" db:"clustered"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RankedHit is one reference match kept with a stored classification.
type RankedHit struct {
	RefID      string  `json:"ref_id"`
	Similarity float64 `json:"similarity"`
	Phylum     string  `json:"phylum"`
	Class      string  `json:"class"`
}

// Classification is the stored call for one ASV of a run.
type Classification struct {
	RunID      string      `json:"run_id" db:"run_id"`
	ASVID      string      `json:"asv_id" db:"asv_id"`
	Position   int         `json:"position" db:"position"`
	Sequence   string      `json:"sequence" db:"sequence"`
	RefID      string      `json:"ref_id" db:"ref_id"`
	Similarity float64     `json:"similarity" db:"similarity"`
	Phylum     string      `json:"phylum" db:"phylum"`
	Class      string      `json:"class" db:"class"`
	IsReject   int         `json:"is_reject" db:"is_reject"`
	TopK       []RankedHit `json:"topk" db:"topk"`
}

// ClusterAssignment is the stored cluster of one ASV of a run.
type ClusterAssignment struct {
	RunID      string   `json:"run_id" db:"run_id"`
	ASVID      string   `json:"asv_id" db:"asv_id"`
	Position   int      `json:"position" db:"position"`
	Cluster    int      `json:"cluster" db:"cluster"`
	Confidence float64  `json:"confidence" db:"confidence"`
	Silhouette *float64 `json:"silhouette,omitempty" db:"silhouette"`
}
