package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"examprep-attempt-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultArchive is the long-term record of completed attempts, backing the
// "check your test history" path after client-visible submission failures.
type ResultArchive struct {
	pool *pgxpool.Pool
}

func NewResultArchive(pool *pgxpool.Pool) *ResultArchive {
	return &ResultArchive{pool: pool}
}

func (a *ResultArchive) Save(ctx context.Context, summary domain.ResultSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO attempt_results (attempt_id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (attempt_id) DO UPDATE SET data=EXCLUDED.data`,
		summary.AttemptID, data)
	if err != nil {
		return fmt.Errorf("archive result: %w", err)
	}
	return nil
}

func (a *ResultArchive) Get(ctx context.Context, attemptID string) (domain.ResultSummary, bool, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, `SELECT data FROM attempt_results WHERE attempt_id=$1`, attemptID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ResultSummary{}, false, nil
	}
	if err != nil {
		return domain.ResultSummary{}, false, fmt.Errorf("load result: %w", err)
	}
	var summary domain.ResultSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.ResultSummary{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return summary, true, nil
}
