package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sendaka/sendaka/internal/risk"
)

// PostgresStore persists review cases in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed case store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the review_cases table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS review_cases (
			id             VARCHAR(40) PRIMARY KEY,
			actor_id       VARCHAR(64) NOT NULL,
			region         VARCHAR(64) NOT NULL DEFAULT '',
			assessment_id  VARCHAR(40) NOT NULL,
			score          INTEGER NOT NULL,
			level          VARCHAR(10) NOT NULL,
			signals        JSONB NOT NULL DEFAULT '[]',
			status         VARCHAR(10) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
			opened_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at    TIMESTAMPTZ,
			resolved_by    VARCHAR(64) NOT NULL DEFAULT '',
			note           TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_review_cases_actor ON review_cases (actor_id, opened_at DESC);
		CREATE INDEX IF NOT EXISTS idx_review_cases_region ON review_cases (region, opened_at DESC);
		CREATE INDEX IF NOT EXISTS idx_review_cases_open ON review_cases (opened_at DESC) WHERE status = 'open';
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, c *Case) error {
	signalsJSON, err := json.Marshal(c.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_cases (id, actor_id, region, assessment_id, score, level, signals, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.ActorID, c.Region, c.AssessmentID, c.Score, string(c.Level), signalsJSON, string(c.Status), c.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, actor_id, region, assessment_id, score, level, signals, status, opened_at, resolved_at, resolved_by, note
		FROM review_cases WHERE id = $1
	`, id)
	c, err := scanCase(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrCaseNotFound
	}
	return c, err
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Case, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, actor_id, region, assessment_id, score, level, signals, status, opened_at, resolved_at, resolved_by, note
		FROM review_cases
		WHERE 1=1`
	args := []interface{}{}

	if f.ActorID != "" {
		args = append(args, f.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if f.Region != "" {
		args = append(args, f.Region)
		query += fmt.Sprintf(" AND region = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY opened_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, c *Case) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_cases
		SET status = $1, resolved_at = $2, resolved_by = $3, note = $4
		WHERE id = $5
	`, string(c.Status), c.ResolvedAt, c.ResolvedBy, c.Note, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrCaseNotFound
	}
	return err
}

func scanCase(scan func(dest ...interface{}) error) (*Case, error) {
	var c Case
	var signalsJSON []byte
	var resolvedAt sql.NullTime
	var level, status string

	err := scan(&c.ID, &c.ActorID, &c.Region, &c.AssessmentID, &c.Score, &level,
		&signalsJSON, &status, &c.OpenedAt, &resolvedAt, &c.ResolvedBy, &c.Note)
	if err != nil {
		return nil, err
	}

	c.Level = risk.Level(level)
	c.Status = Status(status)
	c.Signals = []risk.Signal{}
	_ = json.Unmarshal(signalsJSON, &c.Signals)
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}
