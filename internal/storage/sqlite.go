package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/edna/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT,
		source TEXT,
		total INTEGER NOT NULL,
		assigned INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		tau REAL NOT NULL,
		topk INTEGER NOT NULL,
		metric TEXT NOT NULL,
		clustered INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

	CREATE TABLE IF NOT EXISTS classifications (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		asv_id TEXT NOT NULL,
		sequence TEXT NOT NULL,
		ref_id TEXT NOT NULL,
		similarity REAL NOT NULL,
		phylum TEXT NOT NULL,
		class TEXT NOT NULL,
		is_reject INTEGER NOT NULL,
		topk TEXT,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS clusters (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		asv_id TEXT NOT NULL,
		cluster INTEGER NOT NULL,
		confidence REAL NOT NULL,
		silhouette REAL,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRun inserts a run and stamps its creation time.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *models.Run) error {
	run.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, source, total, assigned, rejected, tau, topk, metric, clustered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Source, run.Total, run.Assigned, run.Rejected,
		run.Tau, run.TopK, run.Metric, run.Clustered, run.CreatedAt,
	)
	return err
}

const runColumns = `id, name, source, total, assigned, rejected, tau, topk, metric, clustered, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var r models.Run
	err := row.Scan(&r.ID, &r.Name, &r.Source, &r.Total, &r.Assigned, &r.Rejected,
		&r.Tau, &r.TopK, &r.Metric, &r.Clustered, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns runs newest first with offset and limit.
func (s *SQLiteStorage) ListRuns(ctx context.Context, offset, limit int) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its results.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}

// SaveClassifications inserts per-ASV calls in a transaction.
func (s *SQLiteStorage) SaveClassifications(ctx context.Context, rows []*models.Classification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO classifications (run_id, position, asv_id, sequence, ref_id, similarity, phylum, class, is_reject, topk)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range rows {
		topk, err := json.Marshal(c.TopK)
		if err != nil {
			return fmt.Errorf("failed to marshal topk: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.RunID, c.Position, c.ASVID, c.Sequence, c.RefID,
			c.Similarity, c.Phylum, c.Class, c.IsReject, string(topk)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetClassifications returns the calls of a run in input order.
func (s *SQLiteStorage) GetClassifications(ctx context.Context, runID string) ([]*models.Classification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position, asv_id, sequence, ref_id, similarity, phylum, class, is_reject, topk
		 FROM classifications WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Classification
	for rows.Next() {
		var c models.Classification
		var topk sql.NullString
		if err := rows.Scan(&c.RunID, &c.Position, &c.ASVID, &c.Sequence, &c.RefID,
			&c.Similarity, &c.Phylum, &c.Class, &c.IsReject, &topk); err != nil {
			return nil, err
		}
		if topk.Valid && topk.String != "" {
			if err := json.Unmarshal([]byte(topk.String), &c.TopK); err != nil {
				return nil, fmt.Errorf("failed to unmarshal topk: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveClusters inserts per-ASV cluster assignments in a transaction.
func (s *SQLiteStorage) SaveClusters(ctx context.Context, rows []*models.ClusterAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clusters (run_id, position, asv_id, cluster, confidence, silhouette)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range rows {
		var sil sql.NullFloat64
		if c.Silhouette != nil {
			sil = sql.NullFloat64{Float64: *c.Silhouette, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, c.RunID, c.Position, c.ASVID, c.Cluster, c.Confidence, sil); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetClusters returns the cluster assignments of a run in input order.
func (s *SQLiteStorage) GetClusters(ctx context.Context, runID string) ([]*models.ClusterAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position, asv_id, cluster, confidence, silhouette
		 FROM clusters WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ClusterAssignment
	for rows.Next() {
		var c models.ClusterAssignment
		var sil sql.NullFloat64
		if err := rows.Scan(&c.RunID, &c.Position, &c.ASVID, &c.Cluster, &c.Confidence, &sil); err != nil {
			return nil, err
		}
		if sil.Valid {
			v := sil.Float64
			c.Silhouette = &v
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// CountClassifications returns the total number of stored per-ASV calls.
func (s *SQLiteStorage) CountClassifications(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classifications`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
