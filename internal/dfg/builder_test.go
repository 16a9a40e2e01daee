package dfg

import (
	"testing"

	"github.com/ciphergraph/fhevm-dfg/internal/deriver"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

func handleBytes(typeByte byte) []byte {
	b := make([]byte, 32)
	b[30] = typeByte
	return b
}

func withDerived(ev models.Event) models.Event {
	d, _ := deriver.Derive(ev.EventName, ev.Args)
	ev.Derived = d
	return ev
}

func TestBuild_BinaryOpEncryptedRHS(t *testing.T) {
	// S1: one FheAdd consuming two external handles, scalarByte=0.
	lhs, rhs, res := handleBytes(2), handleBytes(2), handleBytes(2)
	rhs[0], res[0] = 1, 2
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": lhs, "rhs": rhs, "scalarByte": byte(0), "result": res},
	})

	result := Build(1, "0xtx1", 100, []models.Event{ev})

	if len(result.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(result.Nodes))
	}
	if len(result.Edges) != 0 {
		t.Fatalf("expected 0 intra-tx edges (both inputs external), got %d", len(result.Edges))
	}
	if len(result.ExternalInputs) != 2 {
		t.Fatalf("expected 2 external inputs, got %d", len(result.ExternalInputs))
	}
	if result.Nodes[0].Depth != 1 {
		t.Errorf("expected depth 1, got %d", result.Nodes[0].Depth)
	}
	if result.Summary.Stats.OpCounts[models.EventFheAdd] != 1 {
		t.Errorf("expected op count 1 for FheAdd")
	}
}

func TestBuild_BinaryOpScalarRHS(t *testing.T) {
	// S2: scalarByte=1 means rhs is a scalar, not a handle — even though the
	// raw bytes happen to look handle-shaped.
	lhs, res := handleBytes(2), handleBytes(2)
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheMul,
		Args:      map[string]any{"lhs": lhs, "rhs": []byte{9, 9, 9}, "scalarByte": byte(1), "result": res},
	})

	result := Build(1, "0xtx2", 100, []models.Event{ev})

	if len(result.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(result.Nodes))
	}
	inputs := result.Nodes[0].TypeInfo.Inputs
	if len(inputs) != 2 {
		t.Fatalf("expected 2 input roles, got %d", len(inputs))
	}
	if inputs[1].Kind != models.KindScalar {
		t.Errorf("expected rhs role to be scalar, got %s", inputs[1].Kind)
	}
	if len(result.ExternalInputs) != 1 {
		t.Errorf("expected 1 external input (lhs only), got %d", len(result.ExternalInputs))
	}
}

func TestBuild_ThreeNodeChain(t *testing.T) {
	// S3: TrivialEncrypt -> FheAdd(lhs=trivial output, rhs=external) -> FheNeg(ct=add's output)
	h1 := handleBytes(3)
	h2 := handleBytes(3)
	rhs := handleBytes(3)
	h3 := handleBytes(3)
	h2[0], rhs[0], h3[0] = 1, 2, 3

	evTrivial := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventTrivialEncrypt,
		Args:      map[string]any{"pt": 7, "toType": 3, "result": h1},
	})
	evAdd := withDerived(models.Event{
		LogIndex:  1,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": h1, "rhs": rhs, "scalarByte": byte(0), "result": h2},
	})
	evNeg := withDerived(models.Event{
		LogIndex:  2,
		EventName: models.EventFheNeg,
		Args:      map[string]any{"ct": h2, "result": h3},
	})

	result := Build(1, "0xtx3", 100, []models.Event{evTrivial, evAdd, evNeg})

	if len(result.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(result.Nodes))
	}
	if len(result.Edges) != 2 {
		t.Fatalf("expected 2 deduplicated edges, got %d", len(result.Edges))
	}
	if result.Summary.Depth != 3 {
		t.Errorf("expected tx depth 3, got %d", result.Summary.Depth)
	}
	if len(result.ExternalInputs) != 1 {
		t.Errorf("expected 1 external input (add's rhs), got %d", len(result.ExternalInputs))
	}

	var trivialNode *models.Node
	for i := range result.Nodes {
		if result.Nodes[i].Op == models.EventTrivialEncrypt {
			trivialNode = &result.Nodes[i]
		}
	}
	if trivialNode == nil {
		t.Fatal("expected a TrivialEncrypt node")
	}
}

func TestBuild_MalformedHandleIsSkipped(t *testing.T) {
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": []byte{1, 2}, "rhs": handleBytes(2), "scalarByte": byte(0), "result": handleBytes(2)},
	})

	result := Build(1, "0xtx4", 100, []models.Event{ev})

	if len(result.Nodes) != 0 {
		t.Fatalf("expected malformed lhs to skip the node, got %d nodes", len(result.Nodes))
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skip record, got %d", len(result.Skipped))
	}
}

// P1: every edge's from/to refer to node ids present in the result.
func TestBuild_PropertyEdgesReferenceKnownNodes(t *testing.T) {
	h1, h2 := handleBytes(1), handleBytes(1)
	evTrivial := withDerived(models.Event{LogIndex: 0, EventName: models.EventTrivialEncrypt, Args: map[string]any{"pt": 1, "toType": 1, "result": h1}})
	evNeg := withDerived(models.Event{LogIndex: 1, EventName: models.EventFheNeg, Args: map[string]any{"ct": h1, "result": h2}})

	result := Build(1, "0xtx5", 100, []models.Event{evTrivial, evNeg})

	known := make(map[uint64]bool)
	for _, n := range result.Nodes {
		known[n.NodeID] = true
	}
	for _, e := range result.Edges {
		if !known[e.FromNodeID] || !known[e.ToNodeID] {
			t.Errorf("edge %+v references unknown node", e)
		}
	}
}

// P2: a handle is never simultaneously an external input and the tx's own
// output of another node.
func TestBuild_PropertyExternalExcludesLocalOutputs(t *testing.T) {
	h1, h2 := handleBytes(1), handleBytes(1)
	evTrivial := withDerived(models.Event{LogIndex: 0, EventName: models.EventTrivialEncrypt, Args: map[string]any{"pt": 1, "toType": 1, "result": h1}})
	evNeg := withDerived(models.Event{LogIndex: 1, EventName: models.EventFheNeg, Args: map[string]any{"ct": h1, "result": h2}})

	result := Build(1, "0xtx6", 100, []models.Event{evTrivial, evNeg})

	produced := make(map[string]bool)
	for _, n := range result.Nodes {
		if n.OutputHandle != "" {
			produced[n.OutputHandle] = true
		}
	}
	for _, ext := range result.ExternalInputs {
		if produced[ext.Handle] {
			t.Errorf("handle %s is both external and locally produced", ext.Handle)
		}
	}
}

// P3: building twice from the same input is idempotent.
func TestBuild_PropertyIdempotent(t *testing.T) {
	lhs, rhs, res := handleBytes(2), handleBytes(2), handleBytes(2)
	ev := withDerived(models.Event{
		LogIndex:  0,
		EventName: models.EventFheAdd,
		Args:      map[string]any{"lhs": lhs, "rhs": rhs, "scalarByte": byte(0), "result": res},
	})

	r1 := Build(1, "0xtx7", 100, []models.Event{ev})
	r2 := Build(1, "0xtx7", 100, []models.Event{ev})

	if r1.Summary.SignatureHash != r2.Summary.SignatureHash {
		t.Errorf("expected identical signature across repeated builds")
	}
	if r1.Summary.NodeCount != r2.Summary.NodeCount || r1.Summary.EdgeCount != r2.Summary.EdgeCount {
		t.Errorf("expected identical node/edge counts across repeated builds")
	}
}

// P4: the signature is invariant under relabelling node ids, as long as
// relative ordering and edge topology are preserved.
func TestBuild_PropertySignatureInvariantUnderRelabel(t *testing.T) {
	h1, h2 := handleBytes(1), handleBytes(1)
	evA := withDerived(models.Event{LogIndex: 0, EventName: models.EventTrivialEncrypt, Args: map[string]any{"pt": 1, "toType": 1, "result": h1}})
	evB := withDerived(models.Event{LogIndex: 1, EventName: models.EventFheNeg, Args: map[string]any{"ct": h1, "result": h2}})

	r1 := Build(1, "0xtxA", 100, []models.Event{evA, evB})

	evA2 := evA
	evA2.LogIndex = 10
	evB2 := evB
	evB2.LogIndex = 11

	r2 := Build(1, "0xtxB", 100, []models.Event{evA2, evB2})

	if r1.Summary.SignatureHash != r2.Summary.SignatureHash {
		t.Errorf("expected signature to be invariant under node_id relabelling, got %s vs %s",
			r1.Summary.SignatureHash, r2.Summary.SignatureHash)
	}
}
