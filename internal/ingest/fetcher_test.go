package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ciphergraph/fhevm-dfg/internal/errs"
	"github.com/ciphergraph/fhevm-dfg/internal/evmlog"
)

// StaticLogSource serves a canned set of logs keyed by block range and
// optionally fails the first N calls per range, to exercise retry behavior
// without a real RPC endpoint.
type StaticLogSource struct {
	mu        sync.Mutex
	logs      map[string][]evmlog.RawLog
	failTimes map[string]int
	calls     map[string]int
}

func NewStaticLogSource() *StaticLogSource {
	return &StaticLogSource{
		logs:      make(map[string][]evmlog.RawLog),
		failTimes: make(map[string]int),
		calls:     make(map[string]int),
	}
}

func rangeKey(from, to uint64) string {
	return itoa(from) + "-" + itoa(to)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (s *StaticLogSource) Set(from, to uint64, logs []evmlog.RawLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[rangeKey(from, to)] = logs
}

func (s *StaticLogSource) FailNTimes(from, to uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTimes[rangeKey(from, to)] = n
}

func (s *StaticLogSource) FetchLogs(ctx context.Context, chainID uint64, from, to uint64) ([]evmlog.RawLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rangeKey(from, to)
	s.calls[key]++
	if remaining := s.failTimes[key]; remaining > 0 {
		s.failTimes[key]--
		return nil, errors.New("simulated transport failure")
	}
	return s.logs[key], nil
}

func TestFetcher_RunWritesInAscendingOrder(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 1, []evmlog.RawLog{{BlockNumber: 0}})
	source.Set(2, 3, []evmlog.RawLog{{BlockNumber: 2}})
	source.Set(4, 5, []evmlog.RawLog{{BlockNumber: 4}})

	f := NewFetcher(source, 2, 0)

	var mu sync.Mutex
	var order []uint64
	write := func(ctx context.Context, chunk ChunkResult) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, chunk.FromBlock)
		return nil
	}

	if err := f.Run(context.Background(), 1, 0, 5, write); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []uint64{0, 2, 4}
	if len(order) != len(want) {
		t.Fatalf("expected %d writes, got %d: %v", len(want), len(order), order)
	}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("write order[%d] = %d, want %d (full: %v)", i, order[i], w, order)
		}
	}
}

func TestFetcher_RetriesTransientFailure(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 1, []evmlog.RawLog{{BlockNumber: 0}})
	source.FailNTimes(0, 1, 2)

	f := NewFetcher(source, 2, 0)

	var written int
	write := func(ctx context.Context, chunk ChunkResult) error {
		written++
		return nil
	}

	start := time.Now()
	if err := f.Run(context.Background(), 1, 0, 1, write); err != nil {
		t.Fatalf("Run failed after retries: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected exactly one write, got %d", written)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Errorf("expected at least one backoff interval to elapse")
	}
}

func TestFetcher_ExhaustedRetriesSurfacesTransportError(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 1, nil)
	source.FailNTimes(0, 1, maxFetchAttempts+5)

	f := NewFetcher(source, 2, 0)
	write := func(ctx context.Context, chunk ChunkResult) error { return nil }

	err := f.Run(context.Background(), 1, 0, 1, write)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, errs.ErrTransport) {
		t.Errorf("expected errs.ErrTransport, got %v", err)
	}
}

func TestFetcher_WriterErrorHaltsRun(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 1, []evmlog.RawLog{{BlockNumber: 0}})
	source.Set(2, 3, []evmlog.RawLog{{BlockNumber: 2}})

	f := NewFetcher(source, 2, 0)
	sentinel := errors.New("upstream order violation")
	write := func(ctx context.Context, chunk ChunkResult) error {
		if chunk.FromBlock == 0 {
			return sentinel
		}
		return nil
	}

	err := f.Run(context.Background(), 1, 0, 3, write)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

type fakeCheckpoints struct {
	mu    sync.Mutex
	store map[uint64]uint64
	found map[uint64]bool
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{store: make(map[uint64]uint64), found: make(map[uint64]bool)}
}

func (f *fakeCheckpoints) LoadCheckpoint(ctx context.Context, chainID uint64) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[chainID], f.found[chainID], nil
}

func (f *fakeCheckpoints) SaveCheckpoint(ctx context.Context, chainID uint64, blockNumber uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[chainID] = blockNumber
	f.found[chainID] = true
	return nil
}

func TestBatchRunner_AdvancesCheckpointOnSuccess(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 9, []evmlog.RawLog{{BlockNumber: 0}})

	f := NewFetcher(source, 100, 0)
	cp := newFakeCheckpoints()
	runner := NewBatchRunner(f, cp, 10, 0)

	write := func(ctx context.Context, chunk ChunkResult) error { return nil }

	if err := runner.RunOnce(context.Background(), 1, 9, write); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	last, found, _ := cp.LoadCheckpoint(context.Background(), 1)
	if !found || last != 9 {
		t.Fatalf("expected checkpoint at 9, got %d (found=%v)", last, found)
	}
}

func TestBatchRunner_DoesNotAdvanceCheckpointOnFailure(t *testing.T) {
	source := NewStaticLogSource()
	source.Set(0, 9, nil)
	source.FailNTimes(0, 9, maxFetchAttempts+5)

	f := NewFetcher(source, 100, 0)
	cp := newFakeCheckpoints()
	runner := NewBatchRunner(f, cp, 10, 0)

	write := func(ctx context.Context, chunk ChunkResult) error { return nil }

	err := runner.RunOnce(context.Background(), 1, 9, write)
	if err == nil {
		t.Fatal("expected RunOnce to fail")
	}

	_, found, _ := cp.LoadCheckpoint(context.Background(), 1)
	if found {
		t.Fatal("checkpoint must not advance after a failed batch")
	}
}

func TestBatchRunner_NoWorkWhenCaughtUp(t *testing.T) {
	source := NewStaticLogSource()
	f := NewFetcher(source, 10, 0)
	cp := newFakeCheckpoints()
	cp.store[1] = 9
	cp.found[1] = true
	runner := NewBatchRunner(f, cp, 10, 0)

	write := func(ctx context.Context, chunk ChunkResult) error {
		t.Fatal("write should not be called when caught up")
		return nil
	}

	err := runner.RunOnce(context.Background(), 1, 9, write)
	if !errors.Is(err, ErrNoWork) {
		t.Fatalf("expected ErrNoWork, got %v", err)
	}
}
