package rollup

import (
	"context"
	"testing"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// afterCursor reports whether (block, txHash) sorts strictly after the
// (afterBlock, afterTxHash) cursor tuple, mirroring the Postgres row
// comparison the real store queries use.
func afterCursor(block uint64, txHash string, afterBlock uint64, afterTxHash string) bool {
	if block != afterBlock {
		return block > afterBlock
	}
	return txHash > afterTxHash
}

// fakeOpMixStore is an in-memory OpMixStore for exercising OpMixEngine
// without a database, mirroring internal/registry's fakeStore pattern.
type fakeOpMixStore struct {
	checkpoints map[string]Cursor
	summaries   []models.TxSummary
	rollup      models.OpMixRollup
	rollupSaved bool
}

func newFakeOpMixStore() *fakeOpMixStore {
	return &fakeOpMixStore{checkpoints: make(map[string]Cursor)}
}

func (f *fakeOpMixStore) LoadSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string) (uint64, string, bool, error) {
	c, ok := f.checkpoints[subsystem]
	return c.Block, c.TxHash, ok, nil
}

func (f *fakeOpMixStore) SaveSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string, blockNumber uint64, txHash string) error {
	f.checkpoints[subsystem] = Cursor{Block: blockNumber, TxHash: txHash}
	return nil
}

func (f *fakeOpMixStore) TxSummariesSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.TxSummary, error) {
	var out []models.TxSummary
	for _, s := range f.summaries {
		if afterCursor(s.BlockNumber, s.TxHash, afterBlock, afterTxHash) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeOpMixStore) LoadOpMixRollup(ctx context.Context, chainID uint64) (models.OpMixRollup, bool, error) {
	return f.rollup, f.rollupSaved, nil
}

func (f *fakeOpMixStore) SaveOpMixRollup(ctx context.Context, rollup models.OpMixRollup) error {
	f.rollup = rollup
	f.rollupSaved = true
	return nil
}

func summaryWithAdds(block uint64, txHash string, n int) models.TxSummary {
	return models.TxSummary{BlockNumber: block, TxHash: txHash, Stats: sampleStats(models.EventFheAdd, n)}
}

func TestOpMixEngine_MissingCheckpointFallsBackToFullRebuild(t *testing.T) {
	fs := newFakeOpMixStore()
	fs.summaries = []models.TxSummary{summaryWithAdds(10, "0xa", 2), summaryWithAdds(20, "0xb", 3)}

	e := NewOpMixEngine(fs)
	if err := e.Run(context.Background(), 1, ModeIncremental); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fs.rollup.Stats.OpCounts[models.EventFheAdd] != 5 {
		t.Errorf("expected FheAdd count 5 after full rebuild, got %d", fs.rollup.Stats.OpCounts[models.EventFheAdd])
	}
	if got := fs.checkpoints[subsystemOpMix]; got.Block != 20 || got.TxHash != "0xb" {
		t.Errorf("expected checkpoint advanced to (20, 0xb), got %+v", got)
	}
}

func TestOpMixEngine_IncrementalResumesFromCheckpoint(t *testing.T) {
	fs := newFakeOpMixStore()
	fs.checkpoints[subsystemOpMix] = Cursor{Block: 10, TxHash: "0xa"}
	fs.rollup = models.OpMixRollup{ChainID: 1, Stats: sampleStats(models.EventFheAdd, 2)}
	fs.rollupSaved = true
	fs.summaries = []models.TxSummary{summaryWithAdds(10, "0xa", 2), summaryWithAdds(20, "0xb", 3)}

	e := NewOpMixEngine(fs)
	if err := e.Run(context.Background(), 1, ModeIncremental); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Only the block-20 summary is newer than the checkpoint; folded onto
	// the already-persisted count of 2 it must match the full-rebuild total.
	if fs.rollup.Stats.OpCounts[models.EventFheAdd] != 5 {
		t.Errorf("expected FheAdd count 5 after incremental fold, got %d", fs.rollup.Stats.OpCounts[models.EventFheAdd])
	}
	if got := fs.checkpoints[subsystemOpMix]; got.Block != 20 || got.TxHash != "0xb" {
		t.Errorf("expected checkpoint advanced to (20, 0xb), got %+v", got)
	}
}

func TestOpMixEngine_IncrementalResumesWithinSameBlock(t *testing.T) {
	// A rollup tick can observe a block with only some of its txs
	// persisted (SaveBuildResult commits one tx at a time). The checkpoint
	// must resume from the last tx actually folded, not skip the rest of
	// that block once any row in it has been seen.
	fs := newFakeOpMixStore()
	fs.checkpoints[subsystemOpMix] = Cursor{Block: 10, TxHash: "0xa"}
	fs.rollup = models.OpMixRollup{ChainID: 1, Stats: sampleStats(models.EventFheAdd, 2)}
	fs.rollupSaved = true
	// 0xb commits late to block 10, after the checkpoint was already
	// advanced past 0xa within that same block.
	fs.summaries = []models.TxSummary{summaryWithAdds(10, "0xb", 3)}

	e := NewOpMixEngine(fs)
	if err := e.Run(context.Background(), 1, ModeIncremental); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fs.rollup.Stats.OpCounts[models.EventFheAdd] != 5 {
		t.Errorf("expected late-committing same-block tx to still be folded, got %d", fs.rollup.Stats.OpCounts[models.EventFheAdd])
	}
	if got := fs.checkpoints[subsystemOpMix]; got.Block != 10 || got.TxHash != "0xb" {
		t.Errorf("expected checkpoint advanced to (10, 0xb), got %+v", got)
	}
}

func TestOpMixEngine_ForcedFullIgnoresCheckpoint(t *testing.T) {
	fs := newFakeOpMixStore()
	fs.checkpoints[subsystemOpMix] = Cursor{Block: 15, TxHash: "0xc"}
	fs.rollup = models.OpMixRollup{ChainID: 1, Stats: sampleStats(models.EventFheAdd, 99)}
	fs.rollupSaved = true
	fs.summaries = []models.TxSummary{summaryWithAdds(10, "0xa", 2), summaryWithAdds(20, "0xb", 3)}

	e := NewOpMixEngine(fs)
	if err := e.Run(context.Background(), 1, ModeForcedFull); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A forced rebuild discards the stale persisted rollup (99) and refolds
	// every summary from block 0, including the one at block 10 that an
	// incremental run at checkpoint 15 would have skipped.
	if fs.rollup.Stats.OpCounts[models.EventFheAdd] != 5 {
		t.Errorf("expected FheAdd count 5 after forced rebuild, got %d", fs.rollup.Stats.OpCounts[models.EventFheAdd])
	}
}

func TestOpMixEngine_NoNewSummariesIsNoOp(t *testing.T) {
	fs := newFakeOpMixStore()
	fs.checkpoints[subsystemOpMix] = Cursor{Block: 20, TxHash: "0xz"}
	fs.summaries = []models.TxSummary{summaryWithAdds(10, "0xa", 2)}

	e := NewOpMixEngine(fs)
	if err := e.Run(context.Background(), 1, ModeIncremental); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fs.rollupSaved {
		t.Error("expected no rollup save when no summaries are newer than the checkpoint")
	}
	if got := fs.checkpoints[subsystemOpMix]; got.Block != 20 || got.TxHash != "0xz" {
		t.Errorf("expected checkpoint to remain (20, 0xz), got %+v", got)
	}
}

// fakeStatsStore is an in-memory StatsStore for exercising StatsEngine's
// seen-signature seeding on resume.
type fakeStatsStore struct {
	checkpoints map[string]Cursor
	summaries   []models.TxSummary
	seenByBlock map[string]bool
	rollup      models.StatsRollup
	rollupSaved bool
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{checkpoints: make(map[string]Cursor), seenByBlock: make(map[string]bool)}
}

func (f *fakeStatsStore) LoadSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string) (uint64, string, bool, error) {
	c, ok := f.checkpoints[subsystem]
	return c.Block, c.TxHash, ok, nil
}

func (f *fakeStatsStore) SaveSubsystemCheckpoint(ctx context.Context, chainID uint64, subsystem string, blockNumber uint64, txHash string) error {
	f.checkpoints[subsystem] = Cursor{Block: blockNumber, TxHash: txHash}
	return nil
}

func (f *fakeStatsStore) TxSummariesSince(ctx context.Context, chainID, afterBlock uint64, afterTxHash string) ([]models.TxSummary, error) {
	var out []models.TxSummary
	for _, s := range f.summaries {
		if afterCursor(s.BlockNumber, s.TxHash, afterBlock, afterTxHash) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStatsStore) SignaturesUpTo(ctx context.Context, chainID, upToBlock uint64, upToTxHash string) (map[string]bool, error) {
	return f.seenByBlock, nil
}

func (f *fakeStatsStore) LoadStatsRollup(ctx context.Context, chainID uint64) (models.StatsRollup, bool, error) {
	return f.rollup, f.rollupSaved, nil
}

func (f *fakeStatsStore) SaveStatsRollup(ctx context.Context, rollup models.StatsRollup) error {
	f.rollup = rollup
	f.rollupSaved = true
	return nil
}

func TestStatsEngine_ResumeSeedsSeenSignaturesSoRepeatDoesNotRecount(t *testing.T) {
	fs := newFakeStatsStore()
	fs.checkpoints[subsystemStats] = Cursor{Block: 10, TxHash: "0xa"}
	fs.rollup = models.StatsRollup{ChainID: 1, TxCount: 1, DistinctSigs: 1}
	fs.rollupSaved = true
	fs.seenByBlock = map[string]bool{"sigA": true}
	fs.summaries = []models.TxSummary{
		{BlockNumber: 20, TxHash: "0xb", SignatureHash: "sigA", NodeCount: 2, Depth: 1},
	}

	e := NewStatsEngine(fs)
	if err := e.Run(context.Background(), 1, ModeIncremental); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fs.rollup.DistinctSigs != 1 {
		t.Errorf("expected distinct sig count to stay 1 for a signature already seen before the checkpoint, got %d", fs.rollup.DistinctSigs)
	}
	if fs.rollup.TxCount != 2 {
		t.Errorf("expected tx count 2, got %d", fs.rollup.TxCount)
	}
}
