// Package ingest drives the block-range fetch loop: a bounded worker pool
// pulls raw logs per chunk with exponential-backoff retries, and hands
// every chunk's logs to a single serialized writer, per spec.md §5's
// single-writer-many-fetcher model.
package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ciphergraph/fhevm-dfg/internal/errs"
	"github.com/ciphergraph/fhevm-dfg/internal/evmlog"
)

const (
	defaultFetchConcurrency = 4
	maxFetchAttempts        = 5
	backoffBase             = 400 * time.Millisecond
)

var (
	fetchConcurrencyOnce sync.Once
	fetchConcurrencyVal  int
)

// fetchConcurrency reads FHEGRAPH_FETCH_CONCURRENCY once per process,
// mirroring the retrieved corpus's env-driven sync.Once sizing pattern.
func fetchConcurrency() int {
	fetchConcurrencyOnce.Do(func() {
		fetchConcurrencyVal = defaultFetchConcurrency
		if v := os.Getenv("FHEGRAPH_FETCH_CONCURRENCY"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				fetchConcurrencyVal = n
			}
		}
	})
	return fetchConcurrencyVal
}

// LogSource is the injected RPC transport collaborator. Production
// implementations wrap an ethclient.Client; that transport is explicitly
// out of this repo's core (spec.md §1).
type LogSource interface {
	FetchLogs(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) ([]evmlog.RawLog, error)
}

// ChunkResult is one fetched-and-decoded block range, handed to the writer.
type ChunkResult struct {
	FromBlock uint64
	ToBlock   uint64
	Logs      []evmlog.RawLog
	Err       error
}

// Writer consumes chunk results in ascending block order and is the only
// goroutine allowed to touch the store, per the single-writer model.
type Writer func(ctx context.Context, chunk ChunkResult) error

// Fetcher owns the bounded worker pool that turns a block range into a
// sequence of ChunkResults, retried with exponential backoff, and drives a
// single Writer over them in order.
type Fetcher struct {
	source      LogSource
	chunkSize   uint64
	fetchDelay  time.Duration
	concurrency int
}

// NewFetcher returns a Fetcher. chunkSize is the block count per fetch
// unit (the ingest batch size operator knob); fetchDelay spaces consecutive
// dispatches to be gentle on the RPC endpoint.
func NewFetcher(source LogSource, chunkSize uint64, fetchDelay time.Duration) *Fetcher {
	return &Fetcher{
		source:      source,
		chunkSize:   chunkSize,
		fetchDelay:  fetchDelay,
		concurrency: fetchConcurrency(),
	}
}

// Run fetches [fromBlock, toBlock] in chunkSize-block chunks across the
// worker pool, then feeds completed chunks to write in strictly ascending
// block order (buffering out-of-order completions until their predecessor
// has landed), satisfying ordering guarantee (a) of spec.md §5.
func (f *Fetcher) Run(ctx context.Context, chainID uint64, fromBlock, toBlock uint64, write Writer) error {
	if fromBlock > toBlock {
		return nil
	}

	type chunkSpec struct {
		from, to uint64
		seq      int
	}
	var specs []chunkSpec
	seq := 0
	for start := fromBlock; start <= toBlock; start += f.chunkSize {
		end := start + f.chunkSize - 1
		if end > toBlock {
			end = toBlock
		}
		specs = append(specs, chunkSpec{from: start, to: end, seq: seq})
		seq++
	}

	results := make(chan struct {
		seq    int
		result ChunkResult
	}, len(specs))

	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup

	for _, spec := range specs {
		wg.Add(1)
		go func(spec chunkSpec) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- struct {
					seq    int
					result ChunkResult
				}{spec.seq, ChunkResult{FromBlock: spec.from, ToBlock: spec.to, Err: ctx.Err()}}
				return
			}
			defer func() { <-sem }()

			if f.fetchDelay > 0 {
				select {
				case <-time.After(f.fetchDelay):
				case <-ctx.Done():
				}
			}

			logs, err := f.fetchWithRetry(ctx, chainID, spec.from, spec.to)
			results <- struct {
				seq    int
				result ChunkResult
			}{spec.seq, ChunkResult{FromBlock: spec.from, ToBlock: spec.to, Logs: logs, Err: err}}
		}(spec)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]ChunkResult)
	next := 0
	for r := range results {
		pending[r.seq] = r.result
		for {
			chunk, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if chunk.Err != nil {
				return chunk.Err
			}
			if err := write(ctx, chunk); err != nil {
				return err
			}
		}
	}

	return nil
}

// fetchWithRetry retries a single chunk fetch with exponential backoff
// (400ms base, factor 2, capped at 5 attempts), per spec.md §5.
func (f *Fetcher) fetchWithRetry(ctx context.Context, chainID, from, to uint64) ([]evmlog.RawLog, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffBase
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by attempt count, not elapsed wall time
	var bounded backoff.BackOff = backoff.WithMaxRetries(b, maxFetchAttempts-1)
	bounded = backoff.WithContext(bounded, ctx)

	var logs []evmlog.RawLog
	op := func() error {
		var err error
		logs, err = f.source.FetchLogs(ctx, chainID, from, to)
		return err
	}

	err := backoff.Retry(op, bounded)
	if err != nil {
		log.Printf("[ingest] chain=%d blocks=%d-%d fetch failed after retries: %v", chainID, from, to, err)
		return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	return logs, nil
}
