package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// LoadOpMixRollup and SaveOpMixRollup round-trip models.OpMixRollup. A
// missing row is not an error: the caller treats it as the zero rollup and
// starts accumulating, the same as a fresh ModeFull run.
func (db *DB) LoadOpMixRollup(ctx context.Context, chainID uint64) (models.OpMixRollup, bool, error) {
	rollup := models.OpMixRollup{ChainID: chainID, Stats: models.NewOpStats()}
	var statsRaw []byte
	row := db.pool.QueryRow(ctx, `SELECT dfg_tx_count, stats FROM rollup_opmix WHERE chain_id = $1`, chainID)
	if err := row.Scan(&rollup.DFGTxCount, &statsRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rollup, false, nil
		}
		return rollup, false, fmt.Errorf("store: load opmix rollup: %w", err)
	}
	if err := json.Unmarshal(statsRaw, &rollup.Stats); err != nil {
		return rollup, false, fmt.Errorf("store: unmarshal opmix stats: %w", err)
	}
	return rollup, true, nil
}

func (db *DB) SaveOpMixRollup(ctx context.Context, rollup models.OpMixRollup) error {
	statsJSON, err := json.Marshal(rollup.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal opmix stats: %w", err)
	}
	const sql = `
		INSERT INTO rollup_opmix (chain_id, dfg_tx_count, stats) VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET dfg_tx_count = EXCLUDED.dfg_tx_count, stats = EXCLUDED.stats
	`
	if _, err := db.pool.Exec(ctx, sql, rollup.ChainID, rollup.DFGTxCount, statsJSON); err != nil {
		return fmt.Errorf("store: save opmix rollup: %w", err)
	}
	return nil
}

func (db *DB) LoadDependencyRollup(ctx context.Context, chainID uint64) (models.DependencyRollup, bool, error) {
	rollup := models.DependencyRollup{ChainID: chainID, ChainDepthHist: models.DepthHistogram{}, TotalDepthHist: models.DepthHistogram{}}
	var chainHistRaw, totalHistRaw []byte
	row := db.pool.QueryRow(ctx, `
		SELECT total_txs, dependent_txs, sum_upstream_txs, sum_upstream_handles, max_chain_depth, max_total_depth, chain_depth_hist, total_depth_hist
		FROM rollup_dependency WHERE chain_id = $1
	`, chainID)
	if err := row.Scan(&rollup.TotalTxs, &rollup.DependentTxs, &rollup.SumUpstreamTxs, &rollup.SumUpstreamHandles, &rollup.MaxChainDepth, &rollup.MaxTotalDepth, &chainHistRaw, &totalHistRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rollup, false, nil
		}
		return rollup, false, fmt.Errorf("store: load dependency rollup: %w", err)
	}
	if err := json.Unmarshal(chainHistRaw, &rollup.ChainDepthHist); err != nil {
		return rollup, false, fmt.Errorf("store: unmarshal chain depth hist: %w", err)
	}
	if err := json.Unmarshal(totalHistRaw, &rollup.TotalDepthHist); err != nil {
		return rollup, false, fmt.Errorf("store: unmarshal total depth hist: %w", err)
	}
	return rollup, true, nil
}

func (db *DB) SaveDependencyRollup(ctx context.Context, rollup models.DependencyRollup) error {
	chainHistJSON, err := json.Marshal(rollup.ChainDepthHist)
	if err != nil {
		return fmt.Errorf("store: marshal chain depth hist: %w", err)
	}
	totalHistJSON, err := json.Marshal(rollup.TotalDepthHist)
	if err != nil {
		return fmt.Errorf("store: marshal total depth hist: %w", err)
	}
	const sql = `
		INSERT INTO rollup_dependency (chain_id, total_txs, dependent_txs, sum_upstream_txs, sum_upstream_handles, max_chain_depth, max_total_depth, chain_depth_hist, total_depth_hist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain_id) DO UPDATE SET
			total_txs = EXCLUDED.total_txs, dependent_txs = EXCLUDED.dependent_txs,
			sum_upstream_txs = EXCLUDED.sum_upstream_txs, sum_upstream_handles = EXCLUDED.sum_upstream_handles,
			max_chain_depth = EXCLUDED.max_chain_depth, max_total_depth = EXCLUDED.max_total_depth,
			chain_depth_hist = EXCLUDED.chain_depth_hist, total_depth_hist = EXCLUDED.total_depth_hist
	`
	if _, err := db.pool.Exec(ctx, sql,
		rollup.ChainID, rollup.TotalTxs, rollup.DependentTxs, rollup.SumUpstreamTxs, rollup.SumUpstreamHandles,
		rollup.MaxChainDepth, rollup.MaxTotalDepth, chainHistJSON, totalHistJSON,
	); err != nil {
		return fmt.Errorf("store: save dependency rollup: %w", err)
	}
	return nil
}

func (db *DB) LoadStatsRollup(ctx context.Context, chainID uint64) (models.StatsRollup, bool, error) {
	rollup := models.StatsRollup{ChainID: chainID}
	row := db.pool.QueryRow(ctx, `
		SELECT tx_count, avg_node_count, min_node_count, max_node_count, avg_depth, max_depth, distinct_sigs
		FROM rollup_stats WHERE chain_id = $1
	`, chainID)
	if err := row.Scan(&rollup.TxCount, &rollup.AvgNodeCount, &rollup.MinNodeCount, &rollup.MaxNodeCount, &rollup.AvgDepth, &rollup.MaxDepth, &rollup.DistinctSigs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rollup, false, nil
		}
		return rollup, false, fmt.Errorf("store: load stats rollup: %w", err)
	}
	return rollup, true, nil
}

func (db *DB) SaveStatsRollup(ctx context.Context, rollup models.StatsRollup) error {
	const sql = `
		INSERT INTO rollup_stats (chain_id, tx_count, avg_node_count, min_node_count, max_node_count, avg_depth, max_depth, distinct_sigs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chain_id) DO UPDATE SET
			tx_count = EXCLUDED.tx_count, avg_node_count = EXCLUDED.avg_node_count,
			min_node_count = EXCLUDED.min_node_count, max_node_count = EXCLUDED.max_node_count,
			avg_depth = EXCLUDED.avg_depth, max_depth = EXCLUDED.max_depth, distinct_sigs = EXCLUDED.distinct_sigs
	`
	if _, err := db.pool.Exec(ctx, sql,
		rollup.ChainID, rollup.TxCount, rollup.AvgNodeCount, rollup.MinNodeCount,
		rollup.MaxNodeCount, rollup.AvgDepth, rollup.MaxDepth, rollup.DistinctSigs,
	); err != nil {
		return fmt.Errorf("store: save stats rollup: %w", err)
	}
	return nil
}

// SaveOpBuckets additively upserts a batch of op-bucket rows: a conflicting
// (chain_id, bucket_start, bucket_seconds, event_name) adds to the existing
// count rather than overwriting it, matching rollup.AddEvent's in-memory
// semantics.
func (db *DB) SaveOpBuckets(ctx context.Context, buckets map[string]*models.OpBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	const sql = `
		INSERT INTO rollup_opbucket (chain_id, bucket_start, bucket_seconds, event_name, count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, bucket_start, bucket_seconds, event_name)
		DO UPDATE SET count = rollup_opbucket.count + EXCLUDED.count
	`
	for _, b := range buckets {
		if _, err := db.pool.Exec(ctx, sql, b.ChainID, b.BucketStart, b.BucketSeconds, string(b.EventName), b.Count); err != nil {
			return fmt.Errorf("store: upsert opbucket: %w", err)
		}
	}
	return nil
}

// OpBuckets loads every bucket row for a chain at a given bucket width, for
// the /rollups/:chainId/buckets read endpoint.
func (db *DB) OpBuckets(ctx context.Context, chainID uint64, bucketSeconds int64) ([]models.OpBucket, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT bucket_start, event_name, count FROM rollup_opbucket
		WHERE chain_id = $1 AND bucket_seconds = $2
		ORDER BY bucket_start ASC
	`, chainID, bucketSeconds)
	if err != nil {
		return nil, fmt.Errorf("store: query opbuckets: %w", err)
	}
	defer rows.Close()
	var out []models.OpBucket
	for rows.Next() {
		b := models.OpBucket{ChainID: chainID, BucketSeconds: bucketSeconds}
		var eventName string
		if err := rows.Scan(&b.BucketStart, &eventName, &b.Count); err != nil {
			return nil, fmt.Errorf("store: scan opbucket: %w", err)
		}
		b.EventName = models.EventName(eventName)
		out = append(out, b)
	}
	return out, rows.Err()
}
