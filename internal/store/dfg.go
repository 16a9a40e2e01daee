package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// SaveBuildResult persists one transaction's DFG: summary row, nodes,
// edges, and external inputs, replacing any prior rows for that tx inside
// one transaction — BEGIN; DELETE ...; INSERT ...; COMMIT; with
// defer tx.Rollback(ctx), matching the teacher's SaveAnalysisResult.
// A (re)built tx is idempotent: rebuilding after a crash produces the same
// rows, so delete-then-insert is safe to replay.
func (db *DB) SaveBuildResult(ctx context.Context, result models.BuildResult) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin SaveBuildResult: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	chainID, txHash := result.Summary.ChainID, result.Summary.TxHash

	for _, table := range []string{"dfg_nodes", "dfg_edges", "dfg_inputs"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE chain_id = $1 AND tx_hash = $2", table), chainID, txHash); err != nil {
			return fmt.Errorf("store: delete from %s: %w", table, err)
		}
	}

	statsJSON, err := json.Marshal(result.Summary.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal op stats: %w", err)
	}
	const upsertSummary = `
		INSERT INTO dfg_txs (chain_id, tx_hash, block_number, node_count, edge_count, depth, signature_hash, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chain_id, tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number, node_count = EXCLUDED.node_count,
			edge_count = EXCLUDED.edge_count, depth = EXCLUDED.depth,
			signature_hash = EXCLUDED.signature_hash, stats = EXCLUDED.stats
	`
	if _, err := tx.Exec(ctx, upsertSummary,
		chainID, txHash, result.Summary.BlockNumber, result.Summary.NodeCount,
		result.Summary.EdgeCount, result.Summary.Depth, result.Summary.SignatureHash, statsJSON,
	); err != nil {
		return fmt.Errorf("store: upsert dfg_txs: %w", err)
	}

	const insertNode = `
		INSERT INTO dfg_nodes (chain_id, tx_hash, node_id, op, output_handle, input_count, scalar_flag, type_info, depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, n := range result.Nodes {
		typeInfoJSON, err := json.Marshal(n.TypeInfo)
		if err != nil {
			return fmt.Errorf("store: marshal node type info: %w", err)
		}
		if _, err := tx.Exec(ctx, insertNode, chainID, txHash, n.NodeID, string(n.Op), nullableString(n.OutputHandle), n.InputCount, n.ScalarFlag, typeInfoJSON, n.Depth); err != nil {
			return fmt.Errorf("store: insert dfg_nodes node=%d: %w", n.NodeID, err)
		}
	}

	const insertEdge = `
		INSERT INTO dfg_edges (chain_id, tx_hash, from_node_id, to_node_id, input_handle)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, e := range result.Edges {
		if _, err := tx.Exec(ctx, insertEdge, chainID, txHash, e.FromNodeID, e.ToNodeID, e.InputHandle); err != nil {
			return fmt.Errorf("store: insert dfg_edges %d->%d: %w", e.FromNodeID, e.ToNodeID, err)
		}
	}

	const insertInput = `
		INSERT INTO dfg_inputs (chain_id, tx_hash, handle) VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, tx_hash, handle) DO NOTHING
	`
	for _, ext := range result.ExternalInputs {
		if _, err := tx.Exec(ctx, insertInput, chainID, txHash, ext.Handle); err != nil {
			return fmt.Errorf("store: insert dfg_inputs %s: %w", ext.Handle, err)
		}
	}

	return tx.Commit(ctx)
}

// LoadBuildResult re-hydrates a persisted tx's DFG, used by the validator
// to compare a re-derived build against what was stored.
func (db *DB) LoadBuildResult(ctx context.Context, chainID uint64, txHash string) (models.BuildResult, bool, error) {
	var result models.BuildResult
	const summarySQL = `
		SELECT block_number, node_count, edge_count, depth, signature_hash, stats
		FROM dfg_txs WHERE chain_id = $1 AND tx_hash = $2
	`
	var statsRaw []byte
	row := db.pool.QueryRow(ctx, summarySQL, chainID, txHash)
	if err := row.Scan(&result.Summary.BlockNumber, &result.Summary.NodeCount, &result.Summary.EdgeCount, &result.Summary.Depth, &result.Summary.SignatureHash, &statsRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, false, nil
		}
		return result, false, fmt.Errorf("store: load dfg_txs: %w", err)
	}
	result.Summary.ChainID = chainID
	result.Summary.TxHash = txHash
	if err := json.Unmarshal(statsRaw, &result.Summary.Stats); err != nil {
		return result, false, fmt.Errorf("store: unmarshal stats: %w", err)
	}

	nodeRows, err := db.pool.Query(ctx, `
		SELECT node_id, op, output_handle, input_count, scalar_flag, type_info, depth
		FROM dfg_nodes WHERE chain_id = $1 AND tx_hash = $2 ORDER BY node_id
	`, chainID, txHash)
	if err != nil {
		return result, false, fmt.Errorf("store: query dfg_nodes: %w", err)
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var n models.Node
		var op string
		var outputHandle *string
		var typeInfoRaw []byte
		if err := nodeRows.Scan(&n.NodeID, &op, &outputHandle, &n.InputCount, &n.ScalarFlag, &typeInfoRaw, &n.Depth); err != nil {
			return result, false, fmt.Errorf("store: scan dfg_nodes: %w", err)
		}
		n.ChainID, n.TxHash, n.Op = chainID, txHash, models.EventName(op)
		if outputHandle != nil {
			n.OutputHandle = *outputHandle
		}
		if err := json.Unmarshal(typeInfoRaw, &n.TypeInfo); err != nil {
			return result, false, fmt.Errorf("store: unmarshal type info: %w", err)
		}
		result.Nodes = append(result.Nodes, n)
	}

	edgeRows, err := db.pool.Query(ctx, `
		SELECT from_node_id, to_node_id, input_handle FROM dfg_edges WHERE chain_id = $1 AND tx_hash = $2
	`, chainID, txHash)
	if err != nil {
		return result, false, fmt.Errorf("store: query dfg_edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e models.Edge
		if err := edgeRows.Scan(&e.FromNodeID, &e.ToNodeID, &e.InputHandle); err != nil {
			return result, false, fmt.Errorf("store: scan dfg_edges: %w", err)
		}
		e.ChainID, e.TxHash = chainID, txHash
		result.Edges = append(result.Edges, e)
	}

	inputRows, err := db.pool.Query(ctx, `SELECT handle FROM dfg_inputs WHERE chain_id = $1 AND tx_hash = $2`, chainID, txHash)
	if err != nil {
		return result, false, fmt.Errorf("store: query dfg_inputs: %w", err)
	}
	defer inputRows.Close()
	for inputRows.Next() {
		var handle string
		if err := inputRows.Scan(&handle); err != nil {
			return result, false, fmt.Errorf("store: scan dfg_inputs: %w", err)
		}
		result.ExternalInputs = append(result.ExternalInputs, models.ExternalInput{ChainID: chainID, TxHash: txHash, Handle: handle})
	}

	return result, true, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
