package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ciphergraph/fhevm-dfg/internal/cycle"
	"github.com/ciphergraph/fhevm-dfg/internal/depgraph"
	"github.com/ciphergraph/fhevm-dfg/internal/deriver"
	"github.com/ciphergraph/fhevm-dfg/internal/dfg"
	"github.com/ciphergraph/fhevm-dfg/internal/errs"
	"github.com/ciphergraph/fhevm-dfg/internal/evmlog"
	"github.com/ciphergraph/fhevm-dfg/internal/registry"
	"github.com/ciphergraph/fhevm-dfg/internal/validator"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// Store is the persistence surface the pipeline needs beyond the narrower
// registry/depgraph interfaces, satisfied by *store.DB in production.
type Store interface {
	InsertEvents(ctx context.Context, events []models.Event) error
	SaveBuildResult(ctx context.Context, result models.BuildResult) error
	SaveDependencyRecord(ctx context.Context, rec models.DependencyRecord) error
	SaveCycleReport(ctx context.Context, report models.CycleReport) error
}

// ChainPipeline turns one chunk of raw logs into decoded events, built DFGs,
// dependency records, and a cycle report, in the order spec.md §5 requires:
// decode → derive → persist events → build DFG per tx → record producers →
// compute cross-tx dependency → detect intra-block cycles.
type ChainPipeline struct {
	chainID   uint64
	store     Store
	producers *registry.Registry
	deps      *depgraph.Engine
	validate  *validator.Collector
	warnings  int
	hadCycle  bool
}

// HadCycle reports whether any chunk processed by this pipeline found a
// cyclic SCC, for the operator's -fail-on-cycles exit-code policy.
func (p *ChainPipeline) HadCycle() bool { return p.hadCycle }

// ValidationReport returns the accumulated re-derivation report, or the
// zero report if validation was not enabled for this pipeline.
func (p *ChainPipeline) ValidationReport() models.ValidationReport {
	if p.validate == nil {
		return models.ValidationReport{ChainID: p.chainID}
	}
	return p.validate.Report()
}

// NewChainPipeline returns a pipeline for chainID. validate may be nil to
// skip the re-derivation cross-check (spec.md §4.10 is an optional pass).
func NewChainPipeline(chainID uint64, store Store, producers *registry.Registry, deps *depgraph.Engine, validate *validator.Collector) *ChainPipeline {
	return &ChainPipeline{chainID: chainID, store: store, producers: producers, deps: deps, validate: validate}
}

// WriteChunk implements ingest.Writer.
func (p *ChainPipeline) WriteChunk(ctx context.Context, chunk ChunkResult) error {
	if len(chunk.Logs) == 0 {
		return nil
	}

	events, order := p.decode(chunk.Logs)
	if err := p.store.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("ingest: insert events blocks=%d-%d: %w", chunk.FromBlock, chunk.ToBlock, err)
	}

	byTx := make(map[string][]models.Event)
	for _, ev := range events {
		byTx[ev.TxHash] = append(byTx[ev.TxHash], ev)
	}

	blockEdges := make(map[uint64][]cycle.Edge)

	for _, txHash := range order {
		txEvents := byTx[txHash]
		blockNumber := txEvents[0].BlockNumber

		result := dfg.Build(p.chainID, txHash, blockNumber, txEvents)
		if p.validate != nil {
			p.validate.CheckTx(p.chainID, txHash, blockNumber, txEvents, result)
		}
		if err := p.store.SaveBuildResult(ctx, result); err != nil {
			return fmt.Errorf("ingest: save build result tx=%s: %w", txHash, err)
		}
		if err := p.producers.Record(ctx, p.chainID, blockNumber, txHash, result.Nodes); err != nil {
			return fmt.Errorf("ingest: record producers tx=%s: %w", txHash, err)
		}

		rec, err := p.deps.Compute(ctx, p.chainID, txHash, blockNumber, result.Summary.Depth, result.ExternalInputs)
		if err != nil {
			var orderErr *depgraph.UpstreamOrderViolationError
			if errors.As(err, &orderErr) {
				return fmt.Errorf("%w: %v", errs.ErrUpstreamOrderViolation, orderErr)
			}
			return fmt.Errorf("ingest: compute dependency tx=%s: %w", txHash, err)
		}
		if err := p.store.SaveDependencyRecord(ctx, rec); err != nil {
			return fmt.Errorf("ingest: save dependency record tx=%s: %w", txHash, err)
		}

		for _, ext := range result.ExternalInputs {
			prod, found, err := p.producers.Lookup(ctx, p.chainID, ext.Handle, blockNumber)
			if err != nil {
				return fmt.Errorf("ingest: lookup producer for cycle graph: %w", err)
			}
			if !found || prod.BlockNumber != blockNumber || prod.TxHash == txHash {
				continue
			}
			producerLog := 0
			if producerEvents := byTx[prod.TxHash]; len(producerEvents) > 0 {
				producerLog = int(producerEvents[0].LogIndex)
			}
			blockEdges[blockNumber] = append(blockEdges[blockNumber], cycle.Edge{
				Consumer:    txHash,
				Producer:    prod.TxHash,
				ConsumerLog: int(txEvents[0].LogIndex),
				ProducerLog: producerLog,
			})
		}
	}

	for blockNumber, edges := range blockEdges {
		report := cycle.Detect(p.chainID, blockNumber, edges)
		if err := p.store.SaveCycleReport(ctx, report); err != nil {
			return fmt.Errorf("ingest: save cycle report block=%d: %w", blockNumber, err)
		}
		if len(report.CyclicSCCs) > 0 {
			p.hadCycle = true
			log.Printf("%v: chain=%d block=%d sccs=%d", errs.ErrCycleDetected, p.chainID, blockNumber, len(report.CyclicSCCs))
		}
	}

	return nil
}

// decode converts raw logs into models.Event, running the deriver and its
// consistency check on each, and returns the tx hashes in first-seen order
// (which preserves transaction order within a block per spec.md §4.1).
func (p *ChainPipeline) decode(logs []evmlog.RawLog) ([]models.Event, []string) {
	events := make([]models.Event, 0, len(logs))
	seen := make(map[string]bool)
	var order []string

	for _, raw := range logs {
		name, args, err := evmlog.Decode(raw)
		if err != nil {
			p.warnings++
			if p.warnings <= 50 {
				log.Printf("%v: chain=%d tx=%s log=%d: %v", errs.ErrDecodeFailure, p.chainID, raw.TxHash.Hex(), raw.Index, err)
			}
			name = models.EventUnknown
			args = nil
		}

		ev := models.Event{
			ChainID:     p.chainID,
			TxHash:      raw.TxHash.Hex(),
			LogIndex:    raw.Index,
			BlockNumber: raw.BlockNumber,
			BlockHash:   raw.BlockHash.Hex(),
			Address:     raw.Address.Hex(),
			EventName:   name,
			Data:        raw.Data,
			Args:        args,
		}
		if len(raw.Topics) > 0 {
			ev.Topic0 = raw.Topics[0].Hex()
		}

		if args != nil {
			if derived, ok := deriver.Derive(name, args); ok {
				ev.Derived = derived
				if warn, flagged := deriver.CheckConsistency(p.chainID, ev.TxHash, ev.LogIndex, name, derived); flagged {
					p.warnings++
					if p.warnings <= 50 {
						log.Printf("%v: %+v", errs.ErrDeriveInconsistency, warn)
					}
				}
			}
		}

		events = append(events, ev)
		if !seen[ev.TxHash] {
			seen[ev.TxHash] = true
			order = append(order, ev.TxHash)
		}
	}

	return events, order
}
