package rollup

import "github.com/ciphergraph/fhevm-dfg/pkg/models"

// MergeStats folds one tx's DFG summary into a chain's coarse stats
// rollup. isNewSignature tells it whether this tx's signature_hash has been
// seen before on this chain, for the distinct-signature counter.
func MergeStats(rollup models.StatsRollup, summary models.TxSummary, isNewSignature bool) models.StatsRollup {
	prevCount := rollup.TxCount
	rollup.TxCount++

	rollup.AvgNodeCount = incrementalAvg(rollup.AvgNodeCount, prevCount, float64(summary.NodeCount))
	rollup.AvgDepth = incrementalAvg(rollup.AvgDepth, prevCount, float64(summary.Depth))

	if rollup.TxCount == 1 || summary.NodeCount < rollup.MinNodeCount {
		rollup.MinNodeCount = summary.NodeCount
	}
	if summary.NodeCount > rollup.MaxNodeCount {
		rollup.MaxNodeCount = summary.NodeCount
	}
	if summary.Depth > rollup.MaxDepth {
		rollup.MaxDepth = summary.Depth
	}
	if isNewSignature {
		rollup.DistinctSigs++
	}

	return rollup
}

// incrementalAvg updates a running mean with one new sample, given the
// sample count before this observation.
func incrementalAvg(prevAvg float64, prevCount int64, sample float64) float64 {
	n := float64(prevCount)
	return (prevAvg*n + sample) / (n + 1)
}
