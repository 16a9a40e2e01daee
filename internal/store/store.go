// Package store is the Postgres persistence layer, built the way the
// teacher's internal/db.PostgresStore wraps pgxpool: a thin struct around
// *pgxpool.Pool, an embedded schema.sql applied at InitSchema time, and one
// BEGIN;...;COMMIT; transaction per write that touches more than one table.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// isNoRows reports whether err is pgx's no-rows sentinel, shared by every
// single-row lookup in this package.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

//go:embed schema.sql
var schemaFS embed.FS

// DB wraps the connection pool shared by every store method in this
// package.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and verifies connectivity, mirroring the
// teacher's db.Connect.
func Connect(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	log.Println("store: connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitSchema applies schema.sql, embedded at build time rather than read
// from a relative path, since this binary may run from any working
// directory.
func (db *DB) InitSchema(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("store: reading embedded schema: %w", err)
	}
	if _, err := db.pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	log.Println("store: schema initialized")
	return nil
}

// Pool exposes the underlying pool for callers (e.g. the API layer) that
// need read-only ad hoc queries beyond this package's typed methods.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}
