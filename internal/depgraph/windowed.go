package depgraph

import "context"

// ExternalInputsLookup retrieves a tx's external-input handles, needed by
// WindowedDepth to walk upstream without re-running the DFG builder.
type ExternalInputsLookup interface {
	ExternalInputs(ctx context.Context, chainID uint64, txHash string) ([]string, uint64, error) // handles, blockNumber
}

type frame struct {
	tx    string
	block uint64
	depth int
}

// WindowedDepth implements spec.md §4.7's windowed variant: starting from
// txHash, walk upstream producers (via ProducerLookup) discarding any whose
// block_number is older than lookback blocks behind the block of the tx
// whose inputs are being expanded at that hop (txHash's own block for the
// first hop), and return the number of hops to the furthest surviving
// upstream tx.
// Implemented with an explicit stack, never recursion, per Design Note
// "Recursive windowed depth" — a per-root visited set prevents infinite
// loops on cyclic producer graphs.
func WindowedDepth(ctx context.Context, producers ProducerLookup, inputs ExternalInputsLookup, chainID uint64, txHash string, lookback uint64) (int, error) {
	rootExts, rootBlock, err := inputs.ExternalInputs(ctx, chainID, txHash)
	if err != nil {
		return 0, err
	}

	visited := map[string]bool{txHash: true}
	maxDepth := 0

	seeds, err := pushUpstreams(ctx, producers, chainID, rootExts, rootBlock, lookback, visited, 1)
	if err != nil {
		return 0, err
	}
	stack := make([]frame, 0, len(seeds))
	stack = append(stack, seeds...)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.depth > maxDepth {
			maxDepth = cur.depth
		}

		exts, block, err := inputs.ExternalInputs(ctx, chainID, cur.tx)
		if err != nil {
			return 0, err
		}
		next, err := pushUpstreams(ctx, producers, chainID, exts, block, lookback, visited, cur.depth+1)
		if err != nil {
			return 0, err
		}
		stack = append(stack, next...)
	}

	return maxDepth, nil
}

func pushUpstreams(ctx context.Context, producers ProducerLookup, chainID uint64, handles []string, currentBlock uint64, lookback uint64, visited map[string]bool, depth int) ([]frame, error) {
	var out []frame

	var floor uint64
	if currentBlock+1 > lookback {
		floor = currentBlock + 1 - lookback
	}

	for _, h := range handles {
		p, found, err := producers.Lookup(ctx, chainID, h, currentBlock)
		if err != nil {
			return nil, err
		}
		if !found || p.BlockNumber < floor || visited[p.TxHash] {
			continue
		}
		visited[p.TxHash] = true
		out = append(out, frame{tx: p.TxHash, block: p.BlockNumber, depth: depth})
	}
	return out, nil
}
