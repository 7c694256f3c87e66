package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
	defaultPingTimeout  = 5 * time.Second
)

type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	PingTimeout  time.Duration
}

// Connect opens a pooled connection and verifies it with a ping.
// An in-memory sqlite database is pinned to a single connection, because every
// new sqlite connection to ":memory:" would see its own empty database.
func Connect(ctx context.Context, driverName, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = defaultMaxOpenConns
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = defaultMaxIdleConns
	}
	if pool.PingTimeout <= 0 {
		pool.PingTimeout = defaultPingTimeout
	}
	if driverName == "sqlite3" && strings.Contains(dsn, ":memory:") {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing only when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
