package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// CycleReport is persisted so /api/v1/cycles/:chainId/:blockNumber can
// serve a previously computed report without rerunning detection.
func (db *DB) SaveCycleReport(ctx context.Context, report models.CycleReport) error {
	sccsJSON, err := json.Marshal(report.CyclicSCCs)
	if err != nil {
		return fmt.Errorf("store: marshal cyclic sccs: %w", err)
	}
	const sql = `
		INSERT INTO block_cycle_reports (chain_id, block_number, cyclic_sccs, forward_edges, total_edges)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, block_number) DO UPDATE SET
			cyclic_sccs = EXCLUDED.cyclic_sccs, forward_edges = EXCLUDED.forward_edges, total_edges = EXCLUDED.total_edges
	`
	if _, err := db.pool.Exec(ctx, sql, report.ChainID, report.BlockNumber, sccsJSON, report.ForwardEdges, report.TotalEdges); err != nil {
		return fmt.Errorf("store: save cycle report: %w", err)
	}
	return nil
}

func (db *DB) CycleReport(ctx context.Context, chainID, blockNumber uint64) (models.CycleReport, bool, error) {
	report := models.CycleReport{ChainID: chainID, BlockNumber: blockNumber}
	var sccsRaw []byte
	row := db.pool.QueryRow(ctx, `
		SELECT cyclic_sccs, forward_edges, total_edges FROM block_cycle_reports
		WHERE chain_id = $1 AND block_number = $2
	`, chainID, blockNumber)
	if err := row.Scan(&sccsRaw, &report.ForwardEdges, &report.TotalEdges); err != nil {
		if isNoRows(err) {
			return report, false, nil
		}
		return report, false, fmt.Errorf("store: load cycle report: %w", err)
	}
	if err := json.Unmarshal(sccsRaw, &report.CyclicSCCs); err != nil {
		return report, false, fmt.Errorf("store: unmarshal cyclic sccs: %w", err)
	}
	return report, true, nil
}

// TxRef identifies one tx within a chain, returned by cross-chain lookups
// that can't assume a single chain_id.
type TxRef struct {
	ChainID uint64 `json:"chainId"`
	TxHash  string `json:"txHash"`
}

// TxsBySignatureAnyChain supports the recurring-computation-pattern
// lookup: every tx sharing a given DFG signature hash, optionally scoped
// to one chain.
func (db *DB) TxsBySignatureAnyChain(ctx context.Context, chainID *uint64, signatureHash string) ([]TxRef, error) {
	var rows pgx.Rows
	var err error
	if chainID != nil {
		rows, err = db.pool.Query(ctx, `
			SELECT chain_id, tx_hash FROM dfg_txs WHERE chain_id = $1 AND signature_hash = $2 ORDER BY block_number ASC
		`, *chainID, signatureHash)
	} else {
		rows, err = db.pool.Query(ctx, `
			SELECT chain_id, tx_hash FROM dfg_txs WHERE signature_hash = $1 ORDER BY chain_id ASC, block_number ASC
		`, signatureHash)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query txs by signature: %w", err)
	}
	defer rows.Close()

	var out []TxRef
	for rows.Next() {
		var ref TxRef
		if err := rows.Scan(&ref.ChainID, &ref.TxHash); err != nil {
			return nil, fmt.Errorf("store: scan tx ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
