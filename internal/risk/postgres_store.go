package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
// The goose migrations under migrations/ are the canonical schema; this
// exists so in-place deployments without a migration step still work.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id            VARCHAR(40) PRIMARY KEY,
			actor_id      VARCHAR(64) NOT NULL,
			region        VARCHAR(64) NOT NULL DEFAULT '',
			input         JSONB NOT NULL,
			score         INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
			level         VARCHAR(10) NOT NULL CHECK (level IN ('low', 'medium', 'high')),
			signals       JSONB NOT NULL DEFAULT '[]',
			action        VARCHAR(10) NOT NULL CHECK (action IN ('allow', 'step_up', 'block')),
			evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_actor
			ON risk_assessments (actor_id, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_region
			ON risk_assessments (region, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_blocks
			ON risk_assessments (evaluated_at DESC) WHERE action = 'block';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	inputJSON, err := json.Marshal(a.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	signalsJSON, err := json.Marshal(a.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, actor_id, region, input, score, level, signals, action, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		a.ID,
		a.ActorID,
		a.Region,
		inputJSON,
		a.Score,
		string(a.Level),
		signalsJSON,
		string(a.Action),
		a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Assessment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, actor_id, region, input, score, level, signals, action, evaluated_at
		FROM risk_assessments
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
	if f.Action != "" {
		args = append(args, string(f.Action))
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if !f.BeforeTime.IsZero() {
		args = append(args, f.BeforeTime, f.BeforeID)
		query += fmt.Sprintf(" AND (evaluated_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY evaluated_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var inputJSON, signalsJSON []byte
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Region, &inputJSON, &a.Score, &a.Level, &signalsJSON, &a.Action, &a.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &a.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
		a.Signals = []Signal{}
		_ = json.Unmarshal(signalsJSON, &a.Signals)
		result = append(result, &a)
	}
	return result, rows.Err()
}
