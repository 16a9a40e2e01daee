package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LoadCheckpoint and SaveCheckpoint implement ingest.CheckpointStore, keyed
// by the "ingest" subsystem name. It tracks a block-only watermark since the
// batch runner resumes by re-fetching a block range, not by replaying
// individual rows.
func (db *DB) LoadCheckpoint(ctx context.Context, chainID uint64) (uint64, bool, error) {
	block, _, found, err := db.loadCheckpoint(ctx, chainID, "ingest")
	return block, found, err
}

func (db *DB) SaveCheckpoint(ctx context.Context, chainID uint64, blockNumber uint64) error {
	return db.saveCheckpoint(ctx, chainID, "ingest", blockNumber, "")
}

// LoadSubsystemCheckpoint and SaveSubsystemCheckpoint expose the same table
// to rollup consumers (opmix, dependency, opbucket, stats), each tracking an
// independent (block_number, tx_hash) watermark and falling back to a full
// rebuild on errs.ErrCheckpointMissing. The tx_hash half of the tuple
// matters because SaveBuildResult commits one tx at a time: a rollup tick
// can observe block B with only some of its txs persisted, so the watermark
// must resume from the last tx actually folded, not from "all of block B".
func (db *DB) LoadSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string) (blockNumber uint64, txHash string, found bool, err error) {
	return db.loadCheckpoint(ctx, chainID, subsystem)
}

func (db *DB) SaveSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string, blockNumber uint64, txHash string) error {
	return db.saveCheckpoint(ctx, chainID, subsystem, blockNumber, txHash)
}

func (db *DB) loadCheckpoint(ctx context.Context, chainID uint64, subsystem string) (uint64, string, bool, error) {
	var last uint64
	var txHash *string
	row := db.pool.QueryRow(ctx, `SELECT last_block, last_tx_hash FROM checkpoints WHERE chain_id = $1 AND subsystem = $2`, chainID, subsystem)
	if err := row.Scan(&last, &txHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, fmt.Errorf("store: load checkpoint %s: %w", subsystem, err)
	}
	if txHash == nil {
		return last, "", true, nil
	}
	return last, *txHash, true, nil
}

func (db *DB) saveCheckpoint(ctx context.Context, chainID uint64, subsystem string, blockNumber uint64, txHash string) error {
	const sql = `
		INSERT INTO checkpoints (chain_id, subsystem, last_block, last_tx_hash)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (chain_id, subsystem) DO UPDATE SET last_block = EXCLUDED.last_block, last_tx_hash = EXCLUDED.last_tx_hash
	`
	if _, err := db.pool.Exec(ctx, sql, chainID, subsystem, blockNumber, txHash); err != nil {
		return fmt.Errorf("store: save checkpoint %s: %w", subsystem, err)
	}
	return nil
}
