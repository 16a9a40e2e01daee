package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/internal/registry"
)

// UpsertHandleProducer implements registry.Store. The producer with the
// higher block number wins; within the same block, the lexicographically
// smallest tx_hash wins (spec.md §4.6's same-block tie-break), expressed as
// a CASE-guarded ON CONFLICT update rather than a read-then-write race.
func (db *DB) UpsertHandleProducer(ctx context.Context, chainID uint64, p registry.Producer) error {
	const sql = `
		INSERT INTO dfg_handle_producers (chain_id, handle, tx_hash, block_number, is_trivial)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, handle) DO UPDATE SET
			tx_hash = CASE
				WHEN EXCLUDED.block_number > dfg_handle_producers.block_number THEN EXCLUDED.tx_hash
				WHEN EXCLUDED.block_number < dfg_handle_producers.block_number THEN dfg_handle_producers.tx_hash
				WHEN EXCLUDED.tx_hash < dfg_handle_producers.tx_hash THEN EXCLUDED.tx_hash
				ELSE dfg_handle_producers.tx_hash
			END,
			block_number = CASE
				WHEN EXCLUDED.block_number > dfg_handle_producers.block_number THEN EXCLUDED.block_number
				ELSE dfg_handle_producers.block_number
			END,
			is_trivial = CASE
				WHEN EXCLUDED.block_number > dfg_handle_producers.block_number THEN EXCLUDED.is_trivial
				WHEN EXCLUDED.block_number < dfg_handle_producers.block_number THEN dfg_handle_producers.is_trivial
				WHEN EXCLUDED.tx_hash < dfg_handle_producers.tx_hash THEN EXCLUDED.is_trivial
				ELSE dfg_handle_producers.is_trivial
			END
	`
	if _, err := db.pool.Exec(ctx, sql, chainID, p.Handle, p.TxHash, p.BlockNumber, p.IsTrivial); err != nil {
		return fmt.Errorf("store: upsert handle producer %s: %w", p.Handle, err)
	}
	return nil
}

// LookupHandleProducer implements registry.Store. maxBlock bounds the
// lookup to producers known as of a given block, so replaying an earlier
// block never sees a later tie-break winner.
func (db *DB) LookupHandleProducer(ctx context.Context, chainID uint64, handle string, maxBlock uint64) (registry.Producer, bool, error) {
	const sql = `
		SELECT tx_hash, block_number, is_trivial FROM dfg_handle_producers
		WHERE chain_id = $1 AND handle = $2 AND block_number <= $3
	`
	var p registry.Producer
	p.Handle = handle
	row := db.pool.QueryRow(ctx, sql, chainID, handle, maxBlock)
	if err := row.Scan(&p.TxHash, &p.BlockNumber, &p.IsTrivial); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.Producer{}, false, nil
		}
		return registry.Producer{}, false, fmt.Errorf("store: lookup handle producer %s: %w", handle, err)
	}
	return p, true, nil
}
