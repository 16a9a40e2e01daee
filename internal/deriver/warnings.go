package deriver

import (
	"log"
	"sync"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// WarningCollector accumulates DeriveInconsistency warnings for one ingest
// run, capped at maxWarnings so a pathological run can't blow up memory or
// flood the log.
type WarningCollector struct {
	mu       sync.Mutex
	max      int
	warnings []models.DeriveWarning
	dropped  int
}

// NewWarningCollector returns a collector capped at max warnings (the spec
// calls for 50 per run).
func NewWarningCollector(max int) *WarningCollector {
	return &WarningCollector{max: max}
}

// Add records a warning, logging it the first maxWarnings times and
// silently counting drops after that.
func (c *WarningCollector) Add(w models.DeriveWarning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.warnings) >= c.max {
		c.dropped++
		return
	}
	c.warnings = append(c.warnings, w)
	log.Printf("[deriver] DeriveInconsistency: chain=%d tx=%s log=%d event=%s expected=%d actual=%d",
		w.ChainID, w.TxHash, w.LogIndex, w.EventName, w.ExpectedType, w.ActualType)
}

// Warnings returns the collected warnings (up to max).
func (c *WarningCollector) Warnings() []models.DeriveWarning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DeriveWarning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Dropped returns how many additional warnings were suppressed after the
// cap was reached.
func (c *WarningCollector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
