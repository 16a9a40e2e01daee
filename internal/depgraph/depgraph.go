// Package depgraph computes cross-transaction dependency records: which
// upstream txs a tx's external inputs trace back to, and the chain/total
// depth that accumulate across that upstream chain.
package depgraph

import (
	"context"
	"sort"

	"github.com/ciphergraph/fhevm-dfg/internal/registry"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// ProducerLookup is the subset of registry.Registry the engine needs.
type ProducerLookup interface {
	Lookup(ctx context.Context, chainID uint64, handle string, maxBlock uint64) (registry.Producer, bool, error)
}

// DepthLookup retrieves previously persisted dependency depths, so that
// chain_depth can be computed from already-committed upstream records per
// the ordering guarantee in spec.md §5(b).
type DepthLookup interface {
	ChainDepth(ctx context.Context, chainID uint64, txHash string) (int, bool, error)
}

// Engine computes dependency records for freshly built DFGs.
type Engine struct {
	producers ProducerLookup
	depths    DepthLookup
}

// New returns an Engine.
func New(producers ProducerLookup, depths DepthLookup) *Engine {
	return &Engine{producers: producers, depths: depths}
}

// UpstreamOrderViolationError's condition (a non-trivial upstream exists but
// its dependency record isn't available yet) is reported via the returned
// error so ingest.ChainPipeline can map it onto
// internal/errs.ErrUpstreamOrderViolation and halt the batch, per spec.md §7.
type UpstreamOrderViolationError struct {
	TxHash         string
	UpstreamTxHash string
}

func (e *UpstreamOrderViolationError) Error() string {
	return "depgraph: upstream tx " + e.UpstreamTxHash + " has no dependency record processing " + e.TxHash
}

// Compute implements spec.md §4.7 for one freshly built tx. intraTxDepth is
// the tx's own DFG depth (TxSummary.Depth); externalInputs is the tx's
// external-input handle set.
func (e *Engine) Compute(ctx context.Context, chainID uint64, txHash string, blockNumber uint64, intraTxDepth int, externalInputs []models.ExternalInput) (models.DependencyRecord, error) {
	upstreamSet := make(map[string]bool)
	nonTrivialSet := make(map[string]bool)
	handleLinks := 0

	for _, ext := range externalInputs {
		p, found, err := e.producers.Lookup(ctx, chainID, ext.Handle, blockNumber)
		if err != nil {
			return models.DependencyRecord{}, err
		}
		if !found || p.TxHash == txHash {
			continue
		}
		upstreamSet[p.TxHash] = true
		handleLinks++
		if !p.IsTrivial {
			nonTrivialSet[p.TxHash] = true
		}
	}

	chainDepth := 0
	if len(nonTrivialSet) > 0 {
		max := -1
		for u := range nonTrivialSet {
			d, found, err := e.depths.ChainDepth(ctx, chainID, u)
			if err != nil {
				return models.DependencyRecord{}, err
			}
			if !found {
				return models.DependencyRecord{}, &UpstreamOrderViolationError{TxHash: txHash, UpstreamTxHash: u}
			}
			if d > max {
				max = d
			}
		}
		chainDepth = 1 + max
	}

	upstreamIntraMax := 0
	for u := range nonTrivialSet {
		d, found, err := e.intraDepth(ctx, chainID, u)
		if err != nil {
			return models.DependencyRecord{}, err
		}
		if found && d > upstreamIntraMax {
			upstreamIntraMax = d
		}
	}
	totalDepth := chainDepth + upstreamIntraMax + intraTxDepth

	upstreamTxs := make([]string, 0, len(upstreamSet))
	for u := range upstreamSet {
		upstreamTxs = append(upstreamTxs, u)
	}
	sort.Strings(upstreamTxs)

	return models.DependencyRecord{
		ChainID:     chainID,
		TxHash:      txHash,
		BlockNumber: blockNumber,
		UpstreamTxs: upstreamTxs,
		HandleLinks: handleLinks,
		ChainDepth:  chainDepth,
		TotalDepth:  totalDepth,
	}, nil
}

// intraDepth pulls an upstream tx's own intra-tx depth through the
// DepthLookup if it also implements the richer interface; engines that
// persist intra-tx depth alongside chain depth (the production store) embed
// it via IntraDepthLookup.
type IntraDepthLookup interface {
	IntraDepth(ctx context.Context, chainID uint64, txHash string) (int, bool, error)
}

func (e *Engine) intraDepth(ctx context.Context, chainID uint64, txHash string) (int, bool, error) {
	if idl, ok := e.depths.(IntraDepthLookup); ok {
		return idl.IntraDepth(ctx, chainID, txHash)
	}
	return 0, false, nil
}
