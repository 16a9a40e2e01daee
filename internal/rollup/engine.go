// Package rollup implements the four incremental aggregate kinds described
// in spec.md §4.8: op-mix, dependency, op-bucket, and coarse stats. Each
// kind exposes a pure Merge function (so incremental and full-rebuild paths
// share identical arithmetic, which is what guarantees P6) plus a thin
// Store-backed Engine that drives checkpointed runs.
package rollup

// Mode selects how a rollup run consumes its input rows.
type Mode int

const (
	// ModeIncremental scans only rows newer than the checkpoint.
	ModeIncremental Mode = iota
	// ModeFull recomputes the rollup from scratch and atomically replaces
	// the persisted state — triggered by a missing checkpoint or a
	// detected inconsistency (internal/errs.ErrCheckpointMissing).
	ModeFull
	// ModeForcedFull is ModeFull requested explicitly by the operator via
	// -force-full-rollup.
	ModeForcedFull
)

func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeFull:
		return "full"
	case ModeForcedFull:
		return "forced-full"
	default:
		return "unknown"
	}
}
