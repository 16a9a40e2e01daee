// Package cycle detects intra-block circular dependencies among a block's
// transactions: tx A's external input produced by tx B in the same block,
// and vice versa (directly or through a longer chain). Tarjan's SCC
// algorithm finds these as any strongly connected component of size > 1,
// or a single tx with a self-loop.
package cycle

import (
	"sort"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// Edge is one consumer→producer link within a block: consumer's external
// input was produced by producer, both in the same block.
type Edge struct {
	Consumer    string
	Producer    string
	ConsumerLog int // Consumer's own first log_index in the block, for the forward-edge diagnostic
	ProducerLog int // Producer's own first log_index in the block
}

// maxTxsPerSCC bounds how many tx hashes are retained per reported SCC.
const maxTxsPerSCC = 100

// Detect runs iterative Tarjan SCC over the consumer→producer graph implied
// by edges and returns a report of any cyclic SCCs (size > 1, or a
// self-loop), plus the forward-edge diagnostic count.
func Detect(chainID, blockNumber uint64, edges []Edge) models.CycleReport {
	adj := make(map[string][]string)
	nodeSet := make(map[string]bool)
	selfLoop := make(map[string]bool)

	for _, e := range edges {
		nodeSet[e.Consumer] = true
		nodeSet[e.Producer] = true
		if e.Consumer == e.Producer {
			selfLoop[e.Consumer] = true
			continue
		}
		adj[e.Consumer] = append(adj[e.Consumer], e.Producer)
	}

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	sccs := tarjanIterative(nodes, adj)

	report := models.CycleReport{
		ChainID:     chainID,
		BlockNumber: blockNumber,
		TotalEdges:  len(edges),
	}

	for _, scc := range sccs {
		hasSelfLoop := len(scc) == 1 && selfLoop[scc[0]]
		if len(scc) <= 1 && !hasSelfLoop {
			continue
		}
		sort.Strings(scc)
		truncated := scc
		if len(truncated) > maxTxsPerSCC {
			truncated = truncated[:maxTxsPerSCC]
		}
		report.CyclicSCCs = append(report.CyclicSCCs, models.SCC{Txs: truncated, SelfLoop: hasSelfLoop})
	}

	report.ForwardEdges = countForwardEdges(edges)
	return report
}

// countForwardEdges counts edges whose consumer's first log_index precedes
// the producer's — informational, per spec.md §4.9.
func countForwardEdges(edges []Edge) int {
	count := 0
	for _, e := range edges {
		if e.ConsumerLog < e.ProducerLog {
			count++
		}
	}
	return count
}

// tarjanIterative runs Tarjan's SCC algorithm using an explicit work stack
// instead of recursion, so blocks with thousands of transactions cannot
// overflow the call stack (Design Note "Recursive SCC").
func tarjanIterative(nodes []string, adj map[string][]string) [][]string {
	index := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var sccStack []string
	var sccs [][]string
	counter := 0

	type frame struct {
		node     string
		childIdx int
	}

	for _, start := range nodes {
		if _, seen := index[start]; seen {
			continue
		}

		work := []frame{{node: start, childIdx: 0}}
		index[start] = counter
		lowlink[start] = counter
		counter++
		sccStack = append(sccStack, start)
		onStack[start] = true

		for len(work) > 0 {
			top := &work[len(work)-1]
			children := adj[top.node]

			if top.childIdx < len(children) {
				child := children[top.childIdx]
				top.childIdx++

				if _, seen := index[child]; !seen {
					index[child] = counter
					lowlink[child] = counter
					counter++
					sccStack = append(sccStack, child)
					onStack[child] = true
					work = append(work, frame{node: child, childIdx: 0})
				} else if onStack[child] {
					if index[child] < lowlink[top.node] {
						lowlink[top.node] = index[child]
					}
				}
				continue
			}

			// Done with top.node's children: pop it and propagate lowlink
			// to its parent, then close the SCC if top.node is a root.
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := &work[len(work)-1]
				if lowlink[top.node] < lowlink[parent.node] {
					lowlink[parent.node] = lowlink[top.node]
				}
			}

			if lowlink[top.node] == index[top.node] {
				var scc []string
				for {
					n := sccStack[len(sccStack)-1]
					sccStack = sccStack[:len(sccStack)-1]
					onStack[n] = false
					scc = append(scc, n)
					if n == top.node {
						break
					}
				}
				sccs = append(sccs, scc)
			}
		}
	}

	return sccs
}
