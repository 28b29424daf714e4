package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uplift-eval/ratekit/internal/api"
)

// PostgresStore persists responses in Postgres. INSERT ON CONFLICT DO
// NOTHING gives the same first-write-wins semantics as the other backends.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createResultsTable = `
CREATE TABLE IF NOT EXISTS rate_results (
	request_id TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// NewPostgresStore connects to Postgres and ensures the results table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createResultsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create results table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Get(ctx context.Context, requestID string) (*api.EstimateResponse, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM rate_results WHERE request_id = $1 AND expires_at > now()`,
		requestID,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres select failed: %w", err)
	}

	var resp api.EstimateResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored result: %w", err)
	}
	return &resp, nil
}

func (p *PostgresStore) Set(ctx context.Context, requestID string, resp *api.EstimateResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO rate_results (request_id, payload, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (request_id) DO NOTHING`,
		requestID, payload, time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
