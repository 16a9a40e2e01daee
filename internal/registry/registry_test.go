package registry

import (
	"context"
	"testing"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

type fakeStore struct {
	rows map[uint64]map[string]Producer
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uint64]map[string]Producer)}
}

func (f *fakeStore) UpsertHandleProducer(ctx context.Context, chainID uint64, p Producer) error {
	if f.rows[chainID] == nil {
		f.rows[chainID] = make(map[string]Producer)
	}
	existing, ok := f.rows[chainID][p.Handle]
	if !ok {
		f.rows[chainID][p.Handle] = p
		return nil
	}
	// Mirror the SQL upsert's tie-break: higher block wins; same block,
	// lexicographically smaller tx_hash wins.
	if p.BlockNumber > existing.BlockNumber ||
		(p.BlockNumber == existing.BlockNumber && p.TxHash < existing.TxHash) {
		f.rows[chainID][p.Handle] = p
	}
	return nil
}

func (f *fakeStore) LookupHandleProducer(ctx context.Context, chainID uint64, handle string, maxBlock uint64) (Producer, bool, error) {
	p, ok := f.rows[chainID][handle]
	if !ok || p.BlockNumber > maxBlock {
		return Producer{}, false, nil
	}
	return p, true, nil
}

func TestRegistry_RecordAndLookup(t *testing.T) {
	fs := newFakeStore()
	r := New(fs)

	nodes := []models.Node{
		{Op: models.EventTrivialEncrypt, OutputHandle: "0xaaa"},
		{Op: models.EventFheAdd, OutputHandle: "0xbbb"},
		{Op: models.EventFheNeg, OutputHandle: ""}, // no output, must be skipped
	}

	if err := r.Record(context.Background(), 1, 100, "0xtx1", nodes); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	p, found, err := r.Lookup(context.Background(), 1, "0xaaa", 100)
	if err != nil || !found {
		t.Fatalf("expected to find producer for 0xaaa, err=%v found=%v", err, found)
	}
	if !p.IsTrivial {
		t.Error("expected TrivialEncrypt output to be marked is_trivial")
	}

	p2, found, _ := r.Lookup(context.Background(), 1, "0xbbb", 100)
	if !found || p2.IsTrivial {
		t.Errorf("expected non-trivial producer for 0xbbb, got %+v found=%v", p2, found)
	}

	if _, found, _ := r.Lookup(context.Background(), 1, "0xccc", 100); found {
		t.Error("expected no producer for a handle never recorded")
	}
}

func TestRegistry_LookupRespectsMaxBlock(t *testing.T) {
	fs := newFakeStore()
	r := New(fs)
	_ = r.Record(context.Background(), 1, 200, "0xtxLater", []models.Node{
		{Op: models.EventFheAdd, OutputHandle: "0xhandle"},
	})

	if _, found, _ := r.Lookup(context.Background(), 1, "0xhandle", 150); found {
		t.Error("expected producer at block 200 to be invisible at maxBlock 150")
	}
	if _, found, _ := r.Lookup(context.Background(), 1, "0xhandle", 200); !found {
		t.Error("expected producer at block 200 to be visible at maxBlock 200")
	}
}

func TestRegistry_SameBlockTieBreak(t *testing.T) {
	fs := newFakeStore()
	r := New(fs)

	_ = r.Record(context.Background(), 1, 100, "0xbbbb", []models.Node{{Op: models.EventFheAdd, OutputHandle: "0xh"}})
	_ = r.Record(context.Background(), 1, 100, "0xaaaa", []models.Node{{Op: models.EventFheAdd, OutputHandle: "0xh"}})

	p, _, _ := r.Lookup(context.Background(), 1, "0xh", 100)
	if p.TxHash != "0xaaaa" {
		t.Errorf("expected lexicographically smallest tx_hash to win same-block tie, got %s", p.TxHash)
	}
}
