// Package validator re-derives the expected DFG structure for a
// transaction from its raw events and compares it against what was
// persisted, per spec.md §4.10.
package validator

import (
	"sort"

	"github.com/ciphergraph/fhevm-dfg/internal/dfg"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// samplesPerCategory bounds how many Mismatch samples the validator keeps
// per MismatchKind, mirroring the deriver's 50-per-run warning cap.
const samplesPerCategory = 50

// Collector accumulates a ValidationReport across many transactions.
type Collector struct {
	report     models.ValidationReport
	sampleSeen map[models.MismatchKind]int
}

// NewCollector returns a Collector for chainID.
func NewCollector(chainID uint64) *Collector {
	return &Collector{
		report: models.ValidationReport{
			ChainID:   chainID,
			Counts:    make(map[models.MismatchKind]int),
			SampleCap: samplesPerCategory,
		},
		sampleSeen: make(map[models.MismatchKind]int),
	}
}

// CheckTx re-derives txHash's DFG from events and compares it against the
// persisted result, recording any mismatches.
func (c *Collector) CheckTx(chainID uint64, txHash string, blockNumber uint64, events []models.Event, persisted models.BuildResult) {
	c.report.TxsChecked++
	expected := dfg.Build(chainID, txHash, blockNumber, events)

	expectedByID := make(map[uint64]models.Node, len(expected.Nodes))
	for _, n := range expected.Nodes {
		expectedByID[n.NodeID] = n
	}
	persistedByID := make(map[uint64]models.Node, len(persisted.Nodes))
	for _, n := range persisted.Nodes {
		persistedByID[n.NodeID] = n
	}

	for id, exp := range expectedByID {
		got, ok := persistedByID[id]
		if !ok {
			c.add(chainID, txHash, &id, models.MismatchInputCount, "node missing from persisted DFG")
			continue
		}
		if got.InputCount != len(exp.TypeInfo.Inputs) {
			c.add(chainID, txHash, &id, models.MismatchInputCount, "input_count does not match len(type_info.inputs)")
		}
		c.compareRoles(chainID, txHash, id, exp.TypeInfo.Inputs, got.TypeInfo.Inputs)
	}
	for id := range persistedByID {
		if _, ok := expectedByID[id]; !ok {
			c.add(chainID, txHash, &id, models.MismatchInputCount, "persisted node absent from re-derived DFG")
		}
	}

	if !sameEdgeSet(expected.Edges, persisted.Summary.EdgeCount, persisted.Edges) {
		c.add(chainID, txHash, nil, models.MismatchEdgeSet, "recomputed edge set differs from persisted")
	}
	if !sameExternalSet(expected.ExternalInputs, persisted.ExternalInputs) {
		c.add(chainID, txHash, nil, models.MismatchExternalSet, "recomputed external-input set differs from persisted")
	}
	if expected.Summary.Depth != persisted.Summary.Depth {
		c.add(chainID, txHash, nil, models.MismatchDepth, "recomputed depth differs from persisted")
	}
}

func (c *Collector) compareRoles(chainID uint64, txHash string, nodeID uint64, expected, got []models.InputRole) {
	if len(expected) != len(got) {
		c.add(chainID, txHash, &nodeID, models.MismatchRoleKind, "input role count differs")
		return
	}
	for i := range expected {
		if expected[i].Kind != got[i].Kind {
			c.add(chainID, txHash, &nodeID, models.MismatchRoleKind, "role kind (handle vs scalar) differs for role "+expected[i].Role)
			continue
		}
		if expected[i].Kind != models.KindScalar && expected[i].Handle != got[i].Handle {
			c.add(chainID, txHash, &nodeID, models.MismatchRoleHandle, "handle identity differs for role "+expected[i].Role)
		}
	}
}

func (c *Collector) add(chainID uint64, txHash string, nodeID *uint64, kind models.MismatchKind, detail string) {
	c.report.Counts[kind]++
	if c.sampleSeen[kind] >= samplesPerCategory {
		return
	}
	c.sampleSeen[kind]++
	c.report.Samples = append(c.report.Samples, models.Mismatch{
		ChainID: chainID,
		TxHash:  txHash,
		NodeID:  nodeID,
		Kind:    kind,
		Detail:  detail,
	})
}

// Report returns the accumulated ValidationReport.
func (c *Collector) Report() models.ValidationReport {
	return c.report
}

func sameEdgeSet(expected []models.Edge, persistedCount int, persisted []models.Edge) bool {
	if len(expected) != persistedCount || len(expected) != len(persisted) {
		return false
	}
	key := func(e models.Edge) string {
		return itoa(e.FromNodeID) + ">" + itoa(e.ToNodeID) + ":" + e.InputHandle
	}
	expSet := make(map[string]bool, len(expected))
	for _, e := range expected {
		expSet[key(e)] = true
	}
	for _, e := range persisted {
		if !expSet[key(e)] {
			return false
		}
	}
	return true
}

func sameExternalSet(expected, persisted []models.ExternalInput) bool {
	if len(expected) != len(persisted) {
		return false
	}
	a := make([]string, len(expected))
	for i, e := range expected {
		a[i] = e.Handle
	}
	b := make([]string, len(persisted))
	for i, e := range persisted {
		b[i] = e.Handle
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
