package rollup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ciphergraph/fhevm-dfg/internal/errs"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// Cursor is the (block_number, tx_hash) watermark tuple every rollup
// consumer advances independently under its own subsystem name. Comparing
// on the tuple rather than block_number alone matters because
// SaveBuildResult commits one tx at a time: a rollup tick can observe a
// block with only some of its txs persisted, so the watermark must resume
// from the last tx actually folded, not from "all of this block".
type Cursor struct {
	Block  uint64
	TxHash string
}

// CheckpointStore is the narrow watermark interface every rollup consumer
// shares, keyed by its own subsystem name so the four kinds advance
// independently.
type CheckpointStore interface {
	LoadSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string) (blockNumber uint64, txHash string, found bool, err error)
	SaveSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string, blockNumber uint64, txHash string) error
}

// OpMixStore is what OpMixEngine needs from the store.
type OpMixStore interface {
	CheckpointStore
	TxSummariesSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.TxSummary, error)
	LoadOpMixRollup(ctx context.Context, chainID uint64) (models.OpMixRollup, bool, error)
	SaveOpMixRollup(ctx context.Context, rollup models.OpMixRollup) error
}

// DependencyStore is what DependencyEngine needs from the store.
type DependencyStore interface {
	CheckpointStore
	DependencyRecordsSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.DependencyRecord, error)
	LoadDependencyRollup(ctx context.Context, chainID uint64) (models.DependencyRollup, bool, error)
	SaveDependencyRollup(ctx context.Context, rollup models.DependencyRollup) error
}

// StatsStore is what StatsEngine needs from the store.
type StatsStore interface {
	CheckpointStore
	TxSummariesSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.TxSummary, error)
	SignaturesUpTo(ctx context.Context, chainID, upToBlock uint64, upToTxHash string) (map[string]bool, error)
	LoadStatsRollup(ctx context.Context, chainID uint64) (models.StatsRollup, bool, error)
	SaveStatsRollup(ctx context.Context, rollup models.StatsRollup) error
}

// OpBucketStore is what OpBucketEngine needs from the store.
type OpBucketStore interface {
	CheckpointStore
	EventsSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.Event, error)
	SaveOpBuckets(ctx context.Context, buckets map[string]*models.OpBucket) error
}

const (
	subsystemOpMix      = "opmix"
	subsystemDependency = "dependency"
	subsystemStats      = "stats"
	subsystemOpBucket   = "opbucket"
)

// resumePoint resolves the Cursor a run should start from, and whether the
// run is effectively a full rebuild (no checkpoint, or one forced by the
// operator or by errs.ErrCheckpointMissing).
func resumePoint(ctx context.Context, cp CheckpointStore, chainID uint64, subsystem string, mode Mode) (cursor Cursor, effectiveMode Mode, err error) {
	if mode == ModeForcedFull {
		return Cursor{}, ModeForcedFull, nil
	}
	block, txHash, found, err := cp.LoadSubsystemCheckpoint(ctx, chainID, subsystem)
	if err != nil {
		return Cursor{}, mode, fmt.Errorf("rollup: load %s checkpoint: %w", subsystem, err)
	}
	if !found {
		log.Printf("rollup: %s checkpoint missing for chain %d, falling back to full rebuild: %v", subsystem, chainID, errs.ErrCheckpointMissing)
		return Cursor{}, ModeFull, nil
	}
	if mode == ModeFull {
		return Cursor{}, ModeFull, nil
	}
	return Cursor{Block: block, TxHash: txHash}, ModeIncremental, nil
}

// OpMixEngine drives checkpointed op-mix rollup runs.
type OpMixEngine struct{ store OpMixStore }

func NewOpMixEngine(store OpMixStore) *OpMixEngine { return &OpMixEngine{store: store} }

// Run folds every new TxSummary into the chain's op-mix rollup and advances
// the opmix checkpoint. A full rebuild starts from an empty rollup; an
// incremental run loads the persisted one and keeps folding, per P6.
func (e *OpMixEngine) Run(ctx context.Context, chainID uint64, mode Mode) error {
	cursor, effective, err := resumePoint(ctx, e.store, chainID, subsystemOpMix, mode)
	if err != nil {
		return err
	}

	summaries, err := e.store.TxSummariesSince(ctx, chainID, cursor.Block, cursor.TxHash)
	if err != nil {
		return fmt.Errorf("rollup: opmix summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil
	}

	var current models.OpMixRollup
	if effective == ModeIncremental {
		current, _, err = e.store.LoadOpMixRollup(ctx, chainID)
		if err != nil {
			return fmt.Errorf("rollup: opmix load: %w", err)
		}
	} else {
		current = models.OpMixRollup{ChainID: chainID, Stats: models.NewOpStats()}
	}

	for _, s := range summaries {
		current = MergeOpStats(current, s.Stats)
		cursor = Cursor{Block: s.BlockNumber, TxHash: s.TxHash}
	}

	if err := e.store.SaveOpMixRollup(ctx, current); err != nil {
		return fmt.Errorf("rollup: opmix save: %w", err)
	}
	return e.store.SaveSubsystemCheckpoint(ctx, chainID, subsystemOpMix, cursor.Block, cursor.TxHash)
}

// DependencyEngine drives checkpointed dependency rollup runs.
type DependencyEngine struct{ store DependencyStore }

func NewDependencyEngine(store DependencyStore) *DependencyEngine {
	return &DependencyEngine{store: store}
}

func (e *DependencyEngine) Run(ctx context.Context, chainID uint64, mode Mode) error {
	cursor, effective, err := resumePoint(ctx, e.store, chainID, subsystemDependency, mode)
	if err != nil {
		return err
	}

	recs, err := e.store.DependencyRecordsSince(ctx, chainID, cursor.Block, cursor.TxHash)
	if err != nil {
		return fmt.Errorf("rollup: dependency records: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	var current models.DependencyRollup
	if effective == ModeIncremental {
		current, _, err = e.store.LoadDependencyRollup(ctx, chainID)
		if err != nil {
			return fmt.Errorf("rollup: dependency load: %w", err)
		}
	} else {
		current = models.DependencyRollup{ChainID: chainID}
	}

	for _, rec := range recs {
		current = MergeDependency(current, rec)
		cursor = Cursor{Block: rec.BlockNumber, TxHash: rec.TxHash}
	}

	if err := e.store.SaveDependencyRollup(ctx, current); err != nil {
		return fmt.Errorf("rollup: dependency save: %w", err)
	}
	return e.store.SaveSubsystemCheckpoint(ctx, chainID, subsystemDependency, cursor.Block, cursor.TxHash)
}

// StatsEngine drives checkpointed coarse-stats rollup runs.
type StatsEngine struct{ store StatsStore }

func NewStatsEngine(store StatsStore) *StatsEngine { return &StatsEngine{store: store} }

func (e *StatsEngine) Run(ctx context.Context, chainID uint64, mode Mode) error {
	cursor, effective, err := resumePoint(ctx, e.store, chainID, subsystemStats, mode)
	if err != nil {
		return err
	}

	summaries, err := e.store.TxSummariesSince(ctx, chainID, cursor.Block, cursor.TxHash)
	if err != nil {
		return fmt.Errorf("rollup: stats summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil
	}

	var current models.StatsRollup
	seen := make(map[string]bool)
	if effective == ModeIncremental {
		current, _, err = e.store.LoadStatsRollup(ctx, chainID)
		if err != nil {
			return fmt.Errorf("rollup: stats load: %w", err)
		}
		seen, err = e.store.SignaturesUpTo(ctx, chainID, cursor.Block, cursor.TxHash)
		if err != nil {
			return fmt.Errorf("rollup: stats seed signatures: %w", err)
		}
	} else {
		current = models.StatsRollup{ChainID: chainID}
	}

	for _, s := range summaries {
		isNew := !seen[s.SignatureHash]
		seen[s.SignatureHash] = true
		current = MergeStats(current, s, isNew)
		cursor = Cursor{Block: s.BlockNumber, TxHash: s.TxHash}
	}

	if err := e.store.SaveStatsRollup(ctx, current); err != nil {
		return fmt.Errorf("rollup: stats save: %w", err)
	}
	return e.store.SaveSubsystemCheckpoint(ctx, chainID, subsystemStats, cursor.Block, cursor.TxHash)
}

// OpBucketEngine drives checkpointed op-bucket rollup runs. Unlike the
// other three kinds it never reloads prior state: buckets are additively
// upserted per run, so a full rebuild would double-count unless the
// persisted table is cleared first — callers requesting ModeForcedFull for
// opbucket are expected to truncate rollup_opbucket for the chain first.
type OpBucketEngine struct {
	store     OpBucketStore
	bucketSec int64
	ts        *TimestampCache
}

func NewOpBucketEngine(store OpBucketStore, ts *TimestampCache, bucketSeconds int64) *OpBucketEngine {
	return &OpBucketEngine{store: store, ts: ts, bucketSec: bucketSeconds}
}

func (e *OpBucketEngine) Run(ctx context.Context, chainID uint64, mode Mode) error {
	cursor, _, err := resumePoint(ctx, e.store, chainID, subsystemOpBucket, mode)
	if err != nil {
		return err
	}

	events, err := e.store.EventsSince(ctx, chainID, cursor.Block, cursor.TxHash)
	if err != nil {
		return fmt.Errorf("rollup: opbucket events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	buckets := make(map[string]*models.OpBucket)
	for _, ev := range events {
		ts, err := e.ts.Timestamp(ctx, chainID, ev.BlockNumber)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("rollup: opbucket timestamp: %w", err)
			}
			return fmt.Errorf("%w: opbucket timestamp lookup for block %d: %v", errs.ErrTransport, ev.BlockNumber, err)
		}
		bucketStart := BucketStart(ts, e.bucketSec)
		AddEvent(buckets, chainID, bucketStart, e.bucketSec, ev.EventName)
		cursor = Cursor{Block: ev.BlockNumber, TxHash: ev.TxHash}
	}

	if err := e.store.SaveOpBuckets(ctx, buckets); err != nil {
		return fmt.Errorf("rollup: opbucket save: %w", err)
	}
	return e.store.SaveSubsystemCheckpoint(ctx, chainID, subsystemOpBucket, cursor.Block, cursor.TxHash)
}
