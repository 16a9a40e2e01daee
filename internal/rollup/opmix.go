package rollup

import "github.com/ciphergraph/fhevm-dfg/pkg/models"

// MergeOpStats folds one tx's OpStats into a chain's running op-mix rollup.
// It is the single arithmetic path shared by incremental and full-rebuild
// runs (full rebuild starts from an empty rollup and folds every tx in
// order), which is what makes their outputs identical per P6.
func MergeOpStats(rollup models.OpMixRollup, stats models.OpStats) models.OpMixRollup {
	if rollup.Stats.OpCounts == nil {
		rollup.Stats = models.NewOpStats()
	}
	rollup.DFGTxCount++

	for op, n := range stats.OpCounts {
		rollup.Stats.OpCounts[op] += n
	}
	for op, kinds := range stats.InputKinds {
		if rollup.Stats.InputKinds[op] == nil {
			rollup.Stats.InputKinds[op] = make(map[models.InputKind]int)
		}
		for kind, n := range kinds {
			rollup.Stats.InputKinds[op][kind] += n
		}
	}
	for op, pairs := range stats.OperandPairs {
		if rollup.Stats.OperandPairs[op] == nil {
			rollup.Stats.OperandPairs[op] = make(map[string]int)
		}
		for pair, n := range pairs {
			rollup.Stats.OperandPairs[op][pair] += n
		}
	}
	for op, roles := range stats.TypeCounts {
		if rollup.Stats.TypeCounts[op] == nil {
			rollup.Stats.TypeCounts[op] = make(map[string]map[int]int)
		}
		for role, types := range roles {
			if rollup.Stats.TypeCounts[op][role] == nil {
				rollup.Stats.TypeCounts[op][role] = make(map[int]int)
			}
			for typ, n := range types {
				rollup.Stats.TypeCounts[op][role][typ] += n
			}
		}
	}

	return rollup
}
