package calllog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL UNIQUE,
			brand TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			to_number TEXT NOT NULL DEFAULT '',
			params JSONB NOT NULL DEFAULT '{}'::jsonb,
			verification JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_brand_created ON call_records (brand, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCall(ctx context.Context, call Call) (Call, error) {
	if call.CallID == "" {
		return Call{}, fmt.Errorf("save call: empty call id")
	}
	call = prepare(call)
	params, err := encodeParams(call.Params)
	if err != nil {
		return Call{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_records (id, call_id, brand, agent_id, kind, to_number, params, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		call.ID,
		call.CallID,
		call.Brand,
		call.AgentID,
		string(call.Kind),
		call.ToNumber,
		params,
		call.CreatedAt,
	)
	if err != nil {
		return Call{}, fmt.Errorf("save call %s: %w", call.CallID, err)
	}
	return call, nil
}

const postgresSelect = `SELECT id, call_id, brand, agent_id, kind, to_number, params, verification, created_at FROM call_records`

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (Call, error) {
	row := s.pool.QueryRow(ctx, postgresSelect+` WHERE call_id=$1`, callID)
	call, err := scanPostgresCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("get call %s: %w", callID, err)
	}
	return call, nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, brand string, limit int) ([]Call, error) {
	limit = normalizeLimit(limit)
	rows, err := s.pool.Query(ctx,
		postgresSelect+` WHERE brand=$1 ORDER BY created_at DESC LIMIT $2`,
		brand,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	items := make([]Call, 0, limit)
	for rows.Next() {
		call, err := scanPostgresCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		items = append(items, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SaveVerification(ctx context.Context, callID string, v Verification) error {
	payload, err := encodeVerification(v)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE call_records SET verification=$2 WHERE call_id=$1`, callID, payload)
	if err != nil {
		return fmt.Errorf("save verification %s: %w", callID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresCall(row pgx.Row) (Call, error) {
	var (
		c            Call
		kind         string
		params       []byte
		verification []byte
	)
	if err := row.Scan(&c.ID, &c.CallID, &c.Brand, &c.AgentID, &kind, &c.ToNumber, &params, &verification, &c.CreatedAt); err != nil {
		return Call{}, err
	}
	c.Kind = Kind(kind)
	var err error
	if c.Params, err = decodeParams(params); err != nil {
		return Call{}, err
	}
	if c.Verification, err = decodeVerification(verification); err != nil {
		return Call{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
