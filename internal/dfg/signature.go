package dfg

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// canonicalForm is the exact shape hashed by the signature computer. Field
// order matches declaration order under Go's encoding/json, so two equal
// values always marshal to identical bytes — no separate canonical-JSON
// library is needed for this one fixed, flat shape (see DESIGN.md).
type canonicalForm struct {
	V     int     `json:"v"`
	Ops   []string `json:"ops"`
	Edges [][2]int `json:"edges"`
}

// Signature computes the numbering-invariant fingerprint described in
// spec.md §4.5: nodes are relabelled to consecutive integers in node_id
// order, edges are translated through that relabelling and sorted
// lexicographically, and the whole thing is hashed with SHA-256. It is
// explicitly not a graph-isomorphism canonical form — it assumes logs are
// always in a stable relative order for functionally equal computations.
func Signature(nodes []models.Node, edges []models.Edge) string {
	sorted := make([]models.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	idx := make(map[uint64]int, len(sorted))
	ops := make([]string, len(sorted))
	for i, n := range sorted {
		idx[n.NodeID] = i
		ops[i] = string(n.Op)
	}

	pairs := make([][2]int, 0, len(edges))
	for _, e := range edges {
		fi, fok := idx[e.FromNodeID]
		ti, tok := idx[e.ToNodeID]
		if !fok || !tok {
			continue
		}
		pairs = append(pairs, [2]int{fi, ti})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	canon := canonicalForm{V: 2, Ops: ops, Edges: pairs}
	b, err := json.Marshal(canon)
	if err != nil {
		// canonicalForm is a plain struct of strings/ints; Marshal cannot
		// fail on it. Panicking here would indicate a Go runtime bug, not
		// bad input, so this branch is unreachable in practice.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
