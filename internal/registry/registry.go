// Package registry is an in-process view over the handle-producer table: it
// answers "who last produced this handle, as of this block" for the
// cross-tx dependency engine, and records new producers as DFGs are built.
package registry

import (
	"context"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// Producer is one handle-producer record.
type Producer struct {
	Handle      string
	TxHash      string
	BlockNumber uint64
	IsTrivial   bool
}

// Store is the persistence surface the registry needs. It is satisfied by
// *store.DB in production and by an in-memory fake in tests.
type Store interface {
	UpsertHandleProducer(ctx context.Context, chainID uint64, p Producer) error
	LookupHandleProducer(ctx context.Context, chainID uint64, handle string, maxBlock uint64) (Producer, bool, error)
}

// Registry wraps a Store with the domain operations the dependency engine
// and DFG writer actually call.
type Registry struct {
	store Store
}

// New returns a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Record upserts a producer entry for every output handle in nodes, per
// spec.md §4.6's "latest by block_number, then by insertion" semantics —
// the tie-break for same-block collisions (lexicographically smallest
// tx_hash wins) is enforced by the Store implementation's upsert, not here.
func (r *Registry) Record(ctx context.Context, chainID, blockNumber uint64, txHash string, nodes []models.Node) error {
	for _, n := range nodes {
		if n.OutputHandle == "" {
			continue
		}
		p := Producer{
			Handle:      n.OutputHandle,
			TxHash:      txHash,
			BlockNumber: blockNumber,
			IsTrivial:   n.Op == models.EventTrivialEncrypt,
		}
		if err := r.store.UpsertHandleProducer(ctx, chainID, p); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds the producer of handle as of maxBlock (inclusive), enabling
// windowed dependency queries per spec.md §4.6.
func (r *Registry) Lookup(ctx context.Context, chainID uint64, handle string, maxBlock uint64) (Producer, bool, error) {
	return r.store.LookupHandleProducer(ctx, chainID, handle, maxBlock)
}
