// Package dfg builds the per-transaction data-flow graph described in
// spec.md §4.4: nodes, intra-tx edges, external inputs, per-op statistics,
// depth, and a canonical signature, from the ordered sequence of one
// transaction's events.
package dfg

import (
	"sort"

	"github.com/ciphergraph/fhevm-dfg/internal/deriver"
	"github.com/ciphergraph/fhevm-dfg/internal/handle"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

type producedHandle struct {
	nodeID uint64
	kind   models.InputKind
	depth  int
}

// Build consumes the events of a single (chainID, txHash), which must all
// share that identity, and produces its DFG. Events are sorted by
// ascending LogIndex defensively; callers are expected to already supply
// them in that order.
func Build(chainID uint64, txHash string, blockNumber uint64, events []models.Event) models.BuildResult {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LogIndex < sorted[j].LogIndex })

	produced := make(map[string]producedHandle)
	external := make(map[string]bool)
	edgeSeen := make(map[[3]string]bool) // (from, to, handle) as strings

	var nodes []models.Node
	var edges []models.Edge
	var skipped []models.BuildSkip
	stats := models.NewOpStats()

	for _, ev := range sorted {
		if ev.EventName == models.EventUnknown || ev.EventName == models.EventVerifyInput {
			continue
		}

		spec, known := deriver.EventSpecs[ev.EventName]
		if !known || ev.Args == nil {
			skipped = append(skipped, models.BuildSkip{LogIndex: ev.LogIndex, Reason: "unrecognized event or undecodable args"})
			continue
		}

		inputs, parentDepths, malformed := resolveInputs(spec, ev, produced, external)
		if malformed {
			skipped = append(skipped, models.BuildSkip{LogIndex: ev.LogIndex, Reason: "malformed handle argument"})
			continue
		}

		nodeDepth := 1
		if len(parentDepths) > 0 {
			max := parentDepths[0]
			for _, d := range parentDepths[1:] {
				if d > max {
					max = d
				}
			}
			nodeDepth = 1 + max
		}

		// Materialize edges for every handle input resolved against an
		// intra-tx producer, now that nodeDepth is known.
		for _, in := range inputs {
			if in.Kind != models.KindCiphertext && in.Kind != models.KindTrivial {
				continue
			}
			p := produced[in.Handle]
			key := [3]string{fmtNodeID(p.nodeID), fmtNodeID(ev.LogIndex), in.Handle}
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			edges = append(edges, models.Edge{
				ChainID:     chainID,
				TxHash:      txHash,
				FromNodeID:  p.nodeID,
				ToNodeID:    ev.LogIndex,
				InputHandle: in.Handle,
			})
		}

		var outputHandle string
		if spec.OutputArg != "" {
			if raw, present := ev.Args[spec.OutputArg]; present {
				if h, ok := handle.Normalize(raw); ok {
					outputHandle = h
					kind := models.KindCiphertext
					if spec.TrivialOutput {
						kind = models.KindTrivial
					}
					produced[h] = producedHandle{nodeID: ev.LogIndex, kind: kind, depth: nodeDepth}
				}
			}
		}

		node := models.Node{
			ChainID:      chainID,
			TxHash:       txHash,
			NodeID:       ev.LogIndex,
			Op:           ev.EventName,
			OutputHandle: outputHandle,
			InputCount:   len(inputs),
			ScalarFlag:   ev.Derived.ScalarFlag,
			TypeInfo:     models.TypeInfo{Inputs: inputs},
			Depth:        nodeDepth,
		}
		nodes = append(nodes, node)

		updateStats(&stats, ev, inputs)
	}

	depth := 0
	for _, n := range nodes {
		if n.Depth > depth {
			depth = n.Depth
		}
	}

	var externalInputs []models.ExternalInput
	for hStr := range external {
		externalInputs = append(externalInputs, models.ExternalInput{ChainID: chainID, TxHash: txHash, Handle: hStr})
	}
	sort.Slice(externalInputs, func(i, j int) bool { return externalInputs[i].Handle < externalInputs[j].Handle })

	summary := models.TxSummary{
		ChainID:       chainID,
		TxHash:        txHash,
		BlockNumber:   blockNumber,
		NodeCount:     len(nodes),
		EdgeCount:     len(edges),
		Depth:         depth,
		SignatureHash: Signature(nodes, edges),
		Stats:         stats,
	}

	return models.BuildResult{
		Summary:        summary,
		Nodes:          nodes,
		Edges:          edges,
		ExternalInputs: externalInputs,
		Skipped:        skipped,
	}
}

// resolveInputs builds the ordered input-role list for one event, mutating
// produced/external only in the sense of recording newly-seen external
// handles (producer registration happens in Build after depth is known).
// malformed is true when a role declared as handle-kind didn't decode to a
// well-formed 32-byte value — the whole event is then skipped per
// spec.md §4.4's failure semantics.
func resolveInputs(spec deriver.EventSpec, ev models.Event, produced map[string]producedHandle, external map[string]bool) ([]models.InputRole, []int, bool) {
	inputs := make([]models.InputRole, 0, len(spec.Inputs))
	var parentDepths []int

	for _, role := range spec.Inputs {
		raw, present := ev.Args[role.Arg]
		if !present {
			return nil, nil, true
		}

		isHandleRole := role.Kind == deriver.RoleHandle ||
			(role.Kind == deriver.RoleHandleUnlessScalar && ev.Derived.ScalarFlag == 0)

		if !isHandleRole {
			inputs = append(inputs, models.InputRole{Role: role.Role, Kind: models.KindScalar})
			continue
		}

		hStr, ok := handle.Normalize(raw)
		if !ok {
			return nil, nil, true
		}
		meta, _ := handle.Decode(raw)
		typ := meta.Type

		if p, found := produced[hStr]; found {
			parentDepths = append(parentDepths, p.depth)
			inputs = append(inputs, models.InputRole{Role: role.Role, Kind: p.kind, Handle: hStr, Type: &typ})
		} else {
			external[hStr] = true
			inputs = append(inputs, models.InputRole{Role: role.Role, Kind: models.KindExternal, Handle: hStr, Type: &typ})
		}
	}

	return inputs, parentDepths, false
}

func updateStats(stats *models.OpStats, ev models.Event, inputs []models.InputRole) {
	op := ev.EventName
	stats.OpCounts[op]++

	if stats.InputKinds[op] == nil {
		stats.InputKinds[op] = make(map[models.InputKind]int)
	}
	for _, in := range inputs {
		stats.InputKinds[op][in.Kind]++
	}

	if len(inputs) == 2 && models.BinaryOps[op] {
		if stats.OperandPairs[op] == nil {
			stats.OperandPairs[op] = make(map[string]int)
		}
		pairKey := string(inputs[0].Kind) + "-" + string(inputs[1].Kind)
		stats.OperandPairs[op][pairKey]++
	}

	if stats.TypeCounts[op] == nil {
		stats.TypeCounts[op] = make(map[string]map[int]int)
	}
	for _, in := range inputs {
		if in.Type == nil {
			continue
		}
		if stats.TypeCounts[op][in.Role] == nil {
			stats.TypeCounts[op][in.Role] = make(map[int]int)
		}
		stats.TypeCounts[op][in.Role][*in.Type]++
	}
	if ev.Derived.ResultType != nil {
		if stats.TypeCounts[op]["result"] == nil {
			stats.TypeCounts[op]["result"] = make(map[int]int)
		}
		stats.TypeCounts[op]["result"][*ev.Derived.ResultType]++
	}
}

func fmtNodeID(id uint64) string {
	// Avoid importing strconv at call sites scattered across the file;
	// node ids are log indices and fit comfortably in a base-10 string.
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}
