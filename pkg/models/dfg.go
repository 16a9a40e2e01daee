package models

// InputRole describes one input slot consumed by a DFG node: which logical
// role it fills (lhs, rhs, ct, control, ifTrue, ifFalse, toType, seed, ...),
// what kind of value it is, and — for handle-shaped roles — the handle and
// its decoded type.
type InputRole struct {
	Role   string    `json:"role"`
	Kind   InputKind `json:"kind"`
	Handle string    `json:"handle,omitempty"`
	Type   *int      `json:"type,omitempty"`
}

// TypeInfo enumerates every input role of a node, in role-table order.
type TypeInfo struct {
	Inputs []InputRole `json:"inputs"`
}

// Node is one DFG node: one retained event within a transaction.
type Node struct {
	ChainID      uint64    `json:"chainId"`
	TxHash       string    `json:"txHash"`
	NodeID       uint64    `json:"nodeId"` // log_index of the producing event
	Op           EventName `json:"op"`
	OutputHandle string    `json:"outputHandle,omitempty"`
	InputCount   int       `json:"inputCount"`
	ScalarFlag   int       `json:"scalarFlag"`
	TypeInfo     TypeInfo  `json:"typeInfo"`
	Depth        int       `json:"depth"`
}

// Edge is an intra-tx producer→consumer edge mediated by a handle.
type Edge struct {
	ChainID     uint64 `json:"chainId"`
	TxHash      string `json:"txHash"`
	FromNodeID  uint64 `json:"fromNodeId"`
	ToNodeID    uint64 `json:"toNodeId"`
	InputHandle string `json:"inputHandle"`
}

// ExternalInput is a handle consumed by a tx but not produced within it.
type ExternalInput struct {
	ChainID uint64 `json:"chainId"`
	TxHash  string `json:"txHash"`
	Handle  string `json:"handle"`
}

// OpStats is the per-op statistics aggregate collected while building one
// tx's DFG, and reused verbatim as the per-tx contribution to the op-mix
// rollup.
type OpStats struct {
	OpCounts     map[EventName]int                         `json:"opCounts"`
	InputKinds   map[EventName]map[InputKind]int            `json:"inputKinds"`
	OperandPairs map[EventName]map[string]int               `json:"operandPairs"`
	TypeCounts   map[EventName]map[string]map[int]int       `json:"typeCounts"` // op -> role -> type -> count
}

// NewOpStats returns an initialized, empty OpStats.
func NewOpStats() OpStats {
	return OpStats{
		OpCounts:     make(map[EventName]int),
		InputKinds:   make(map[EventName]map[InputKind]int),
		OperandPairs: make(map[EventName]map[string]int),
		TypeCounts:   make(map[EventName]map[string]map[int]int),
	}
}

// TxSummary is the per-tx DFG summary row.
type TxSummary struct {
	ChainID       uint64  `json:"chainId"`
	TxHash        string  `json:"txHash"`
	BlockNumber   uint64  `json:"blockNumber"`
	NodeCount     int     `json:"nodeCount"`
	EdgeCount     int     `json:"edgeCount"`
	Depth         int     `json:"depth"`
	SignatureHash string  `json:"signatureHash"`
	Stats         OpStats `json:"stats"`
}

// BuildResult is everything the DFG builder produces for one transaction.
type BuildResult struct {
	Summary        TxSummary
	Nodes          []Node
	Edges          []Edge
	ExternalInputs []ExternalInput
	Skipped        []BuildSkip
}

// BuildSkip records an event that contributed no node because its argument
// blob was malformed.
type BuildSkip struct {
	LogIndex uint64
	Reason   string
}
