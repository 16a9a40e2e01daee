package models

// SCC is one strongly-connected component in the consumer→producer graph
// of a block, flagged cyclic when it has more than one member or a
// self-loop.
type SCC struct {
	Txs      []string `json:"txs"`
	SelfLoop bool     `json:"selfLoop"`
}

// CycleReport is the result of running the cycle detector over one block.
type CycleReport struct {
	ChainID      uint64 `json:"chainId"`
	BlockNumber  uint64 `json:"blockNumber"`
	CyclicSCCs   []SCC  `json:"cyclicSccs"`
	ForwardEdges int    `json:"forwardEdges"` // informational diagnostic
	TotalEdges   int    `json:"totalEdges"`
}

// HasCycles reports whether any cyclic SCC was found.
func (r CycleReport) HasCycles() bool {
	return len(r.CyclicSCCs) > 0
}
