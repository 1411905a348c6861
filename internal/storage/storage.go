// Package storage persists the history of analysis runs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/edna/internal/models"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Storage defines run history persistence operations.
type Storage interface {
	// Runs
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, offset, limit int) ([]*models.Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Per-ASV results
	SaveClassifications(ctx context.Context, rows []*models.Classification) error
	GetClassifications(ctx context.Context, runID string) ([]*models.Classification, error)
	SaveClusters(ctx context.Context, rows []*models.ClusterAssignment) error
	GetClusters(ctx context.Context, runID string) ([]*models.ClusterAssignment, error)

	// Stats
	CountRuns(ctx context.Context) (int64, error)
	CountClassifications(ctx context.Context) (int64, error)

	Close() error
}
