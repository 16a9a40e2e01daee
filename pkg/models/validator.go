package models

// MismatchKind classifies a validator finding.
type MismatchKind string

const (
	MismatchInputCount   MismatchKind = "input_count"
	MismatchRoleKind     MismatchKind = "role_kind"
	MismatchRoleHandle   MismatchKind = "role_handle"
	MismatchEdgeSet      MismatchKind = "edge_set"
	MismatchExternalSet  MismatchKind = "external_set"
	MismatchDepth        MismatchKind = "depth"
)

// Mismatch is one bounded sample of a validation discrepancy.
type Mismatch struct {
	ChainID  uint64       `json:"chainId"`
	TxHash   string       `json:"txHash"`
	NodeID   *uint64      `json:"nodeId,omitempty"`
	Kind     MismatchKind `json:"kind"`
	Detail   string       `json:"detail"`
}

// ValidationReport is the validator's structured output.
type ValidationReport struct {
	ChainID       uint64         `json:"chainId"`
	TxsChecked    int            `json:"txsChecked"`
	Counts        map[MismatchKind]int `json:"counts"`
	Samples       []Mismatch     `json:"samples"`
	SampleCap     int            `json:"sampleCap"`
}

// Clean reports whether no mismatches of any kind were found.
func (r ValidationReport) Clean() bool {
	for _, c := range r.Counts {
		if c > 0 {
			return false
		}
	}
	return true
}
