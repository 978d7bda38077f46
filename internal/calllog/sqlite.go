package calllog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists call records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS call_records (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL UNIQUE,
		brand TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		to_number TEXT NOT NULL DEFAULT '',
		params TEXT NOT NULL DEFAULT '{}',
		verification TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_call_records_brand_created ON call_records(brand, created_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveCall(ctx context.Context, call Call) (Call, error) {
	if call.CallID == "" {
		return Call{}, fmt.Errorf("save call: empty call id")
	}
	call = prepare(call)
	params, err := encodeParams(call.Params)
	if err != nil {
		return Call{}, err
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO call_records (id, call_id, brand, agent_id, kind, to_number, params, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.CallID, call.Brand, call.AgentID, string(call.Kind),
		call.ToNumber, string(params), call.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Call{}, fmt.Errorf("save call %s: %w", call.CallID, err)
	}
	return call, nil
}

const sqliteSelect = `SELECT id, call_id, brand, agent_id, kind, to_number, params, verification, created_at FROM call_records`

func (s *SQLiteStore) GetCall(ctx context.Context, callID string) (Call, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE call_id = ?`, callID)
	call, err := scanSQLiteCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("get call %s: %w", callID, err)
	}
	return call, nil
}

func (s *SQLiteStore) ListCalls(ctx context.Context, brand string, limit int) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelect+` WHERE brand = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		brand, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var items []Call
	for rows.Next() {
		call, err := scanSQLiteCall(rows)
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

func (s *SQLiteStore) SaveVerification(ctx context.Context, callID string, v Verification) error {
	payload, err := encodeVerification(v)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE call_records SET verification = ? WHERE call_id = ?`, string(payload), callID)
	if err != nil {
		return fmt.Errorf("save verification %s: %w", callID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save verification %s: %w", callID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCall(row rowScanner) (Call, error) {
	var (
		c            Call
		kind         string
		params       string
		verification sql.NullString
		createdAt    int64
	)
	if err := row.Scan(&c.ID, &c.CallID, &c.Brand, &c.AgentID, &kind, &c.ToNumber, &params, &verification, &createdAt); err != nil {
		return Call{}, err
	}
	c.Kind = Kind(kind)
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	var err error
	if c.Params, err = decodeParams([]byte(params)); err != nil {
		return Call{}, err
	}
	if verification.Valid {
		if c.Verification, err = decodeVerification([]byte(verification.String)); err != nil {
			return Call{}, err
		}
	}
	return c, nil
}
