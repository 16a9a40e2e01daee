package cycle

import (
	"sort"
	"testing"
)

func TestDetect_NoCycle_Chain(t *testing.T) {
	// A -> B -> C, a plain chain, has no cyclic SCC.
	edges := []Edge{
		{Consumer: "A", Producer: "B"},
		{Consumer: "B", Producer: "C"},
	}
	report := Detect(1, 100, edges)
	if report.HasCycles() {
		t.Errorf("expected no cycles in a plain chain, got %+v", report.CyclicSCCs)
	}
}

func TestDetect_TwoNodeCycle(t *testing.T) {
	edges := []Edge{
		{Consumer: "A", Producer: "B"},
		{Consumer: "B", Producer: "A"},
	}
	report := Detect(1, 100, edges)
	if !report.HasCycles() {
		t.Fatal("expected a cyclic SCC")
	}
	if len(report.CyclicSCCs) != 1 || len(report.CyclicSCCs[0].Txs) != 2 {
		t.Errorf("expected one 2-member SCC, got %+v", report.CyclicSCCs)
	}
}

func TestDetect_SelfLoop(t *testing.T) {
	edges := []Edge{
		{Consumer: "A", Producer: "A"},
	}
	report := Detect(1, 100, edges)
	if !report.HasCycles() {
		t.Fatal("expected self-loop to count as cyclic")
	}
	if !report.CyclicSCCs[0].SelfLoop {
		t.Error("expected SelfLoop=true")
	}
}

func TestDetect_ThreeNodeCycle(t *testing.T) {
	edges := []Edge{
		{Consumer: "A", Producer: "B"},
		{Consumer: "B", Producer: "C"},
		{Consumer: "C", Producer: "A"},
	}
	report := Detect(1, 100, edges)
	if !report.HasCycles() || len(report.CyclicSCCs[0].Txs) != 3 {
		t.Fatalf("expected a single 3-member cyclic SCC, got %+v", report.CyclicSCCs)
	}
}

func TestDetect_ForwardEdgeDiagnostic(t *testing.T) {
	edges := []Edge{
		{Consumer: "A", Producer: "B", ConsumerLog: 0, ProducerLog: 5},
		{Consumer: "C", Producer: "D", ConsumerLog: 10, ProducerLog: 2},
	}
	report := Detect(1, 100, edges)
	if report.ForwardEdges != 1 {
		t.Errorf("expected 1 forward edge, got %d", report.ForwardEdges)
	}
}

// naiveSCC brute-forces SCCs by mutual-reachability, O(n^3)-ish, used only
// to cross-check Detect on small graphs (P7's reference-implementation
// comparison, scaled down for a fast unit test).
func naiveSCC(nodes []string, adj map[string][]string) [][]string {
	reach := make(map[string]map[string]bool)
	for _, n := range nodes {
		seen := map[string]bool{n: true}
		stack := []string{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range adj[cur] {
				if !seen[nb] {
					seen[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		reach[n] = seen
	}

	assigned := make(map[string]bool)
	var sccs [][]string
	for _, n := range nodes {
		if assigned[n] {
			continue
		}
		var group []string
		for _, m := range nodes {
			if reach[n][m] && reach[m][n] {
				group = append(group, m)
				assigned[m] = true
			}
		}
		sccs = append(sccs, group)
	}
	return sccs
}

func TestDetect_MatchesNaiveReference(t *testing.T) {
	graphs := []struct {
		nodes []string
		edges []Edge
	}{
		{nodes: []string{"A", "B", "C", "D"}, edges: []Edge{
			{Consumer: "A", Producer: "B"}, {Consumer: "B", Producer: "C"}, {Consumer: "C", Producer: "A"},
			{Consumer: "D", Producer: "A"},
		}},
		{nodes: []string{"A", "B", "C", "D", "E"}, edges: []Edge{
			{Consumer: "A", Producer: "B"}, {Consumer: "B", Producer: "A"},
			{Consumer: "C", Producer: "D"}, {Consumer: "D", Producer: "E"}, {Consumer: "E", Producer: "C"},
		}},
		{nodes: []string{"A", "B"}, edges: []Edge{{Consumer: "A", Producer: "B"}}},
	}

	for gi, g := range graphs {
		adj := make(map[string][]string)
		for _, e := range g.edges {
			adj[e.Consumer] = append(adj[e.Consumer], e.Producer)
		}

		got := Detect(1, 100, g.edges)
		want := naiveSCC(g.nodes, adj)

		var wantCyclic [][]string
		for _, scc := range want {
			if len(scc) > 1 {
				sort.Strings(scc)
				wantCyclic = append(wantCyclic, scc)
			}
		}

		if len(got.CyclicSCCs) != len(wantCyclic) {
			t.Fatalf("graph %d: expected %d cyclic SCCs, got %d", gi, len(wantCyclic), len(got.CyclicSCCs))
		}
		for _, w := range wantCyclic {
			found := false
			for _, scc := range got.CyclicSCCs {
				if equalStrSlices(scc.Txs, w) {
					found = true
				}
			}
			if !found {
				t.Errorf("graph %d: expected cyclic SCC %v not found in %+v", gi, w, got.CyclicSCCs)
			}
		}
	}
}

func equalStrSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
