package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// SaveDependencyRecord persists the cross-tx dependency summary computed by
// depgraph.Engine.Compute.
func (db *DB) SaveDependencyRecord(ctx context.Context, rec models.DependencyRecord) error {
	upstreamJSON, err := json.Marshal(rec.UpstreamTxs)
	if err != nil {
		return fmt.Errorf("store: marshal upstream txs: %w", err)
	}
	const sql = `
		INSERT INTO dfg_tx_deps (chain_id, tx_hash, block_number, upstream_txs, handle_links, chain_depth, total_depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain_id, tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number, upstream_txs = EXCLUDED.upstream_txs,
			handle_links = EXCLUDED.handle_links, chain_depth = EXCLUDED.chain_depth, total_depth = EXCLUDED.total_depth
	`
	if _, err := db.pool.Exec(ctx, sql, rec.ChainID, rec.TxHash, rec.BlockNumber, upstreamJSON, rec.HandleLinks, rec.ChainDepth, rec.TotalDepth); err != nil {
		return fmt.Errorf("store: upsert dfg_tx_deps: %w", err)
	}
	return nil
}

// ChainDepth implements depgraph.DepthLookup.
func (db *DB) ChainDepth(ctx context.Context, chainID uint64, txHash string) (int, bool, error) {
	var depth int
	row := db.pool.QueryRow(ctx, `SELECT chain_depth FROM dfg_tx_deps WHERE chain_id = $1 AND tx_hash = $2`, chainID, txHash)
	if err := row.Scan(&depth); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: lookup chain depth: %w", err)
	}
	return depth, true, nil
}

// IntraDepth implements depgraph.IntraDepthLookup, reading a tx's own
// intra-tx DFG depth from dfg_txs rather than dfg_tx_deps.
func (db *DB) IntraDepth(ctx context.Context, chainID uint64, txHash string) (int, bool, error) {
	var depth int
	row := db.pool.QueryRow(ctx, `SELECT depth FROM dfg_txs WHERE chain_id = $1 AND tx_hash = $2`, chainID, txHash)
	if err := row.Scan(&depth); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: lookup intra depth: %w", err)
	}
	return depth, true, nil
}

// DependencyRecord loads one tx's persisted dependency record, used by the
// /api/v1/dfg/:chainId/:txHash/deps API endpoint.
func (db *DB) DependencyRecord(ctx context.Context, chainID uint64, txHash string) (models.DependencyRecord, bool, error) {
	var rec models.DependencyRecord
	rec.ChainID, rec.TxHash = chainID, txHash
	var upstreamRaw []byte
	row := db.pool.QueryRow(ctx, `
		SELECT block_number, upstream_txs, handle_links, chain_depth, total_depth
		FROM dfg_tx_deps WHERE chain_id = $1 AND tx_hash = $2
	`, chainID, txHash)
	if err := row.Scan(&rec.BlockNumber, &upstreamRaw, &rec.HandleLinks, &rec.ChainDepth, &rec.TotalDepth); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("store: load dependency record: %w", err)
	}
	if err := json.Unmarshal(upstreamRaw, &rec.UpstreamTxs); err != nil {
		return rec, false, fmt.Errorf("store: unmarshal upstream txs: %w", err)
	}
	return rec, true, nil
}

// ExternalInputs implements depgraph.ExternalInputsLookup for
// depgraph.WindowedDepth: a tx's external-input handles plus its own block
// number.
func (db *DB) ExternalInputs(ctx context.Context, chainID uint64, txHash string) ([]string, uint64, error) {
	var blockNumber uint64
	row := db.pool.QueryRow(ctx, `SELECT block_number FROM dfg_txs WHERE chain_id = $1 AND tx_hash = $2`, chainID, txHash)
	if err := row.Scan(&blockNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("store: lookup block number for %s: %w", txHash, err)
	}

	rows, err := db.pool.Query(ctx, `SELECT handle FROM dfg_inputs WHERE chain_id = $1 AND tx_hash = $2`, chainID, txHash)
	if err != nil {
		return nil, 0, fmt.Errorf("store: query external inputs: %w", err)
	}
	defer rows.Close()
	var handles []string
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, 0, fmt.Errorf("store: scan external input: %w", err)
		}
		handles = append(handles, handle)
	}
	return handles, blockNumber, rows.Err()
}
