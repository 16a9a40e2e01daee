package ingest

import (
	"context"
	"errors"
)

// CheckpointStore persists the highest block number fully ingested per
// chain. A checkpoint only advances after every log in its batch has been
// written, so a crash mid-batch replays the whole batch rather than
// skipping its tail.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, chainID uint64) (blockNumber uint64, found bool, err error)
	SaveCheckpoint(ctx context.Context, chainID uint64, blockNumber uint64) error
}

// BatchRunner drives one bounded ingest batch per call: it resumes from the
// stored checkpoint (or genesis), fetches up to batchSize blocks capped at
// headBlock, and advances the checkpoint only once the whole batch has
// landed through write. A write failure — including an
// UpstreamOrderViolation surfaced from the writer — leaves the checkpoint
// untouched so the next call retries the same range.
type BatchRunner struct {
	fetcher     *Fetcher
	checkpoints CheckpointStore
	batchSize   uint64
	genesis     uint64
}

// NewBatchRunner returns a BatchRunner. genesis is the first block to ingest
// when no checkpoint exists yet for the chain.
func NewBatchRunner(fetcher *Fetcher, checkpoints CheckpointStore, batchSize, genesis uint64) *BatchRunner {
	return &BatchRunner{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		batchSize:   batchSize,
		genesis:     genesis,
	}
}

// ErrNoWork is returned by RunOnce when the checkpoint has already caught up
// to headBlock; callers should treat it as "nothing to do this tick", not a
// failure.
var ErrNoWork = errors.New("ingest: checkpoint at head, no work")

// RunOnce fetches and writes one batch and advances the checkpoint on
// success. It returns ErrNoWork when there is nothing left to ingest up to
// headBlock.
func (r *BatchRunner) RunOnce(ctx context.Context, chainID uint64, headBlock uint64, write Writer) error {
	last, found, err := r.checkpoints.LoadCheckpoint(ctx, chainID)
	if err != nil {
		return err
	}

	from := r.genesis
	if found {
		from = last + 1
	}
	if from > headBlock {
		return ErrNoWork
	}

	to := from + r.batchSize - 1
	if to > headBlock {
		to = headBlock
	}

	if err := r.fetcher.Run(ctx, chainID, from, to, write); err != nil {
		return err
	}

	return r.checkpoints.SaveCheckpoint(ctx, chainID, to)
}
