package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// TxSummariesSince loads every dfg_txs row ordered strictly after the
// (afterBlock, afterTxHash) cursor, ascending by (block_number, tx_hash) —
// the feed rollup.OpMixEngine and rollup.StatsEngine consume for an
// incremental run. afterBlock=0, afterTxHash="" for a full rebuild.
func (db *DB) TxSummariesSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.TxSummary, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT tx_hash, block_number, node_count, edge_count, depth, signature_hash, stats
		FROM dfg_txs WHERE chain_id = $1 AND (block_number, tx_hash) > ($2, $3)
		ORDER BY block_number ASC, tx_hash ASC
	`, chainID, afterBlock, afterTxHash)
	if err != nil {
		return nil, fmt.Errorf("store: query tx summaries since %d/%s: %w", afterBlock, afterTxHash, err)
	}
	defer rows.Close()

	var out []models.TxSummary
	for rows.Next() {
		s := models.TxSummary{ChainID: chainID}
		var statsRaw []byte
		if err := rows.Scan(&s.TxHash, &s.BlockNumber, &s.NodeCount, &s.EdgeCount, &s.Depth, &s.SignatureHash, &statsRaw); err != nil {
			return nil, fmt.Errorf("store: scan tx summary: %w", err)
		}
		if err := json.Unmarshal(statsRaw, &s.Stats); err != nil {
			return nil, fmt.Errorf("store: unmarshal tx summary stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DependencyRecordsSince loads every dfg_tx_deps row ordered strictly after
// the (afterBlock, afterTxHash) cursor, ascending.
func (db *DB) DependencyRecordsSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.DependencyRecord, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT tx_hash, block_number, upstream_txs, handle_links, chain_depth, total_depth
		FROM dfg_tx_deps WHERE chain_id = $1 AND (block_number, tx_hash) > ($2, $3)
		ORDER BY block_number ASC, tx_hash ASC
	`, chainID, afterBlock, afterTxHash)
	if err != nil {
		return nil, fmt.Errorf("store: query dependency records since %d/%s: %w", afterBlock, afterTxHash, err)
	}
	defer rows.Close()

	var out []models.DependencyRecord
	for rows.Next() {
		rec := models.DependencyRecord{ChainID: chainID}
		var upstreamRaw []byte
		if err := rows.Scan(&rec.TxHash, &rec.BlockNumber, &upstreamRaw, &rec.HandleLinks, &rec.ChainDepth, &rec.TotalDepth); err != nil {
			return nil, fmt.Errorf("store: scan dependency record: %w", err)
		}
		if err := json.Unmarshal(upstreamRaw, &rec.UpstreamTxs); err != nil {
			return nil, fmt.Errorf("store: unmarshal upstream txs: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EventsSince loads every event ordered strictly after the (afterBlock,
// afterTxHash) cursor, ascending by block, tx_hash, then log_index — the
// feed for rollup.OpBucketEngine, which needs only block_number, tx_hash
// and event_name per row. Comparing on tx_hash rather than block alone is
// safe here because every event for a given tx lands in the same
// InsertEvents call (a tx never spans two ingest chunks), so once a tx_hash
// is the checkpoint cursor all of its log rows have already been consumed.
func (db *DB) EventsSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.Event, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT tx_hash, log_index, block_number, event_name FROM events
		WHERE chain_id = $1 AND (block_number, tx_hash) > ($2, $3)
		ORDER BY block_number ASC, tx_hash ASC, log_index ASC
	`, chainID, afterBlock, afterTxHash)
	if err != nil {
		return nil, fmt.Errorf("store: query events since %d/%s: %w", afterBlock, afterTxHash, err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		ev := models.Event{ChainID: chainID}
		var name string
		if err := rows.Scan(&ev.TxHash, &ev.LogIndex, &ev.BlockNumber, &name); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.EventName = models.EventName(name)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SignaturesUpTo loads the distinct DFG signature hashes for every tx at or
// before the (upToBlock, upToTxHash) cursor, seeding rollup.StatsEngine's
// new-signature tracking with exactly the set of txs its prior rollup run
// already folded in, when an incremental run resumes mid-chain.
func (db *DB) SignaturesUpTo(ctx context.Context, chainID, upToBlock uint64, upToTxHash string) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT DISTINCT signature_hash FROM dfg_txs
		WHERE chain_id = $1 AND (block_number, tx_hash) <= ($2, $3)
	`, chainID, upToBlock, upToTxHash)
	if err != nil {
		return nil, fmt.Errorf("store: query distinct signatures: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("store: scan signature: %w", err)
		}
		seen[sig] = true
	}
	return seen, rows.Err()
}

// MaxIngestedBlock reports the highest block_number seen in events for a
// chain, used to decide whether a rollup run has anything new to consume.
func (db *DB) MaxIngestedBlock(ctx context.Context, chainID uint64) (uint64, bool, error) {
	var max uint64
	row := db.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM events WHERE chain_id = $1`, chainID)
	if err := row.Scan(&max); err != nil {
		return 0, false, fmt.Errorf("store: max ingested block: %w", err)
	}
	return max, max > 0, nil
}
