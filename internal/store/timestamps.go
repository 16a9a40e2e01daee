package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/internal/rollup"
)

// PersistingTimestampSource wraps an upstream rollup.BlockTimestampSource
// (an RPC-backed implementation supplied by the caller) with a Postgres
// table, so a block's timestamp is fetched over RPC at most once across the
// life of the chain rather than once per rollup run.
type PersistingTimestampSource struct {
	db       *DB
	upstream rollup.BlockTimestampSource
}

// NewPersistingTimestampSource returns a BlockTimestampSource backed by
// both the block_timestamps table and upstream.
func NewPersistingTimestampSource(db *DB, upstream rollup.BlockTimestampSource) *PersistingTimestampSource {
	return &PersistingTimestampSource{db: db, upstream: upstream}
}

// BlockTimestamp implements rollup.BlockTimestampSource.
func (s *PersistingTimestampSource) BlockTimestamp(ctx context.Context, chainID, blockNumber uint64) (int64, error) {
	if ts, found, err := s.db.loadBlockTimestamp(ctx, chainID, blockNumber); err != nil {
		return 0, err
	} else if found {
		return ts, nil
	}

	ts, err := s.upstream.BlockTimestamp(ctx, chainID, blockNumber)
	if err != nil {
		return 0, err
	}
	if err := s.db.saveBlockTimestamp(ctx, chainID, blockNumber, ts); err != nil {
		return 0, err
	}
	return ts, nil
}

func (db *DB) loadBlockTimestamp(ctx context.Context, chainID, blockNumber uint64) (int64, bool, error) {
	var ts int64
	row := db.pool.QueryRow(ctx, `SELECT timestamp FROM block_timestamps WHERE chain_id = $1 AND block_number = $2`, chainID, blockNumber)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: load block timestamp: %w", err)
	}
	return ts, true, nil
}

func (db *DB) saveBlockTimestamp(ctx context.Context, chainID, blockNumber uint64, ts int64) error {
	const sql = `
		INSERT INTO block_timestamps (chain_id, block_number, timestamp)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, block_number) DO NOTHING
	`
	if _, err := db.pool.Exec(ctx, sql, chainID, blockNumber, ts); err != nil {
		return fmt.Errorf("store: save block timestamp: %w", err)
	}
	return nil
}
