package rollup

import "github.com/ciphergraph/fhevm-dfg/pkg/models"

// MergeDependency folds one tx's dependency record into a chain's running
// dependency rollup, per spec.md §4.8.
func MergeDependency(rollup models.DependencyRollup, rec models.DependencyRecord) models.DependencyRollup {
	if rollup.ChainDepthHist == nil {
		rollup.ChainDepthHist = make(models.DepthHistogram)
	}
	if rollup.TotalDepthHist == nil {
		rollup.TotalDepthHist = make(models.DepthHistogram)
	}

	rollup.TotalTxs++
	if len(rec.UpstreamTxs) > 0 {
		rollup.DependentTxs++
		rollup.SumUpstreamTxs += int64(len(rec.UpstreamTxs))
		rollup.SumUpstreamHandles += int64(rec.HandleLinks)
	}
	if rec.ChainDepth > rollup.MaxChainDepth {
		rollup.MaxChainDepth = rec.ChainDepth
	}
	if rec.TotalDepth > rollup.MaxTotalDepth {
		rollup.MaxTotalDepth = rec.TotalDepth
	}
	rollup.ChainDepthHist[rec.ChainDepth]++
	rollup.TotalDepthHist[rec.TotalDepth]++

	return rollup
}
