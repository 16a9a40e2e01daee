package validator

import (
	"testing"

	"github.com/ciphergraph/fhevm-dfg/internal/deriver"
	"github.com/ciphergraph/fhevm-dfg/internal/dfg"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

func h(typeByte byte) []byte {
	b := make([]byte, 32)
	b[30] = typeByte
	return b
}

func withDerived(ev models.Event) models.Event {
	d, _ := deriver.Derive(ev.EventName, ev.Args)
	ev.Derived = d
	return ev
}

func TestCollector_CleanWhenPersistedMatchesRederived(t *testing.T) {
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": h(2), "rhs": h(2), "scalarByte": byte(0), "result": h(2)},
	})
	events := []models.Event{ev}
	persisted := dfg.Build(1, "0xtx", 100, events)

	c := NewCollector(1)
	c.CheckTx(1, "0xtx", 100, events, persisted)

	report := c.Report()
	if !report.Clean() {
		t.Fatalf("expected clean report, got %+v", report)
	}
	if report.TxsChecked != 1 {
		t.Errorf("expected 1 tx checked, got %d", report.TxsChecked)
	}
}

func TestCollector_DetectsDepthMismatch(t *testing.T) {
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": h(2), "rhs": h(2), "scalarByte": byte(0), "result": h(2)},
	})
	events := []models.Event{ev}
	persisted := dfg.Build(1, "0xtx", 100, events)
	persisted.Summary.Depth = 99 // corrupt the persisted value

	c := NewCollector(1)
	c.CheckTx(1, "0xtx", 100, events, persisted)

	report := c.Report()
	if report.Clean() {
		t.Fatal("expected a depth mismatch to be detected")
	}
	if report.Counts[models.MismatchDepth] != 1 {
		t.Errorf("expected 1 depth mismatch, got %d", report.Counts[models.MismatchDepth])
	}
}

func TestCollector_DetectsMissingPersistedNode(t *testing.T) {
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": h(2), "rhs": h(2), "scalarByte": byte(0), "result": h(2)},
	})
	events := []models.Event{ev}
	persisted := dfg.Build(1, "0xtx", 100, events)
	persisted.Nodes = nil // simulate a node that never made it to the store

	c := NewCollector(1)
	c.CheckTx(1, "0xtx", 100, events, persisted)

	report := c.Report()
	if report.Clean() {
		t.Fatal("expected mismatch when a persisted node is missing")
	}
}

func TestCollector_SampleCap(t *testing.T) {
	c := NewCollector(1)
	for i := 0; i < samplesPerCategory+10; i++ {
		id := uint64(i)
		c.add(1, "0xtx", &id, models.MismatchDepth, "synthetic")
	}
	report := c.Report()
	if len(report.Samples) != samplesPerCategory {
		t.Errorf("expected samples capped at %d, got %d", samplesPerCategory, len(report.Samples))
	}
	if report.Counts[models.MismatchDepth] != samplesPerCategory+10 {
		t.Errorf("expected full count uncapped, got %d", report.Counts[models.MismatchDepth])
	}
}
