// Package models holds the data types shared across the reconstruction and
// analytics pipeline: events, DFG nodes/edges, dependency records, and
// rollup stats. Types here are persistence-shaped (JSON-tagged, flat) so
// that the store package can marshal them directly.
package models

// EventName identifies one of the 28 recognized executor log signatures,
// or Unknown for anything that didn't decode against the closed set.
type EventName string

const (
	EventFheAdd      EventName = "FheAdd"
	EventFheSub      EventName = "FheSub"
	EventFheMul      EventName = "FheMul"
	EventFheDiv      EventName = "FheDiv"
	EventFheRem      EventName = "FheRem"
	EventFheBitAnd   EventName = "FheBitAnd"
	EventFheBitOr    EventName = "FheBitOr"
	EventFheBitXor   EventName = "FheBitXor"
	EventFheShl      EventName = "FheShl"
	EventFheShr      EventName = "FheShr"
	EventFheRotl     EventName = "FheRotl"
	EventFheRotr     EventName = "FheRotr"
	EventFheEq       EventName = "FheEq"
	EventFheNe       EventName = "FheNe"
	EventFheGe       EventName = "FheGe"
	EventFheGt       EventName = "FheGt"
	EventFheLe       EventName = "FheLe"
	EventFheLt       EventName = "FheLt"
	EventFheMin      EventName = "FheMin"
	EventFheMax      EventName = "FheMax"
	EventFheNeg      EventName = "FheNeg"
	EventFheNot      EventName = "FheNot"
	EventFheIfThenElse EventName = "FheIfThenElse"
	EventCast          EventName = "Cast"
	EventTrivialEncrypt EventName = "TrivialEncrypt"
	EventVerifyInput    EventName = "VerifyInput"
	EventFheRand        EventName = "FheRand"
	EventFheRandBounded EventName = "FheRandBounded"
	EventUnknown        EventName = "Unknown"
)

// BinaryOps is the closed set of 20 binary FHE operations that read
// (lhs, rhs, scalarByte, result).
var BinaryOps = map[EventName]bool{
	EventFheAdd: true, EventFheSub: true, EventFheMul: true, EventFheDiv: true,
	EventFheRem: true, EventFheBitAnd: true, EventFheBitOr: true, EventFheBitXor: true,
	EventFheShl: true, EventFheShr: true, EventFheRotl: true, EventFheRotr: true,
	EventFheEq: true, EventFheNe: true, EventFheGe: true, EventFheGt: true,
	EventFheLe: true, EventFheLt: true, EventFheMin: true, EventFheMax: true,
}

// UnaryOps read (ct, result).
var UnaryOps = map[EventName]bool{
	EventFheNeg: true, EventFheNot: true,
}

// Event is an immutable, append-only record of one decoded executor log.
type Event struct {
	ChainID     uint64         `json:"chainId"`
	TxHash      string         `json:"txHash"`
	LogIndex    uint64         `json:"logIndex"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   string         `json:"blockHash"`
	Address     string         `json:"address"`
	EventName   EventName      `json:"eventName"`
	Topic0      string         `json:"topic0"`
	Data        []byte         `json:"data"`
	Args        map[string]any `json:"args,omitempty"`

	Derived DerivedFields `json:"derived"`
}

// DerivedFields are the eleven scalar fields the event deriver produces
// from an event's decoded arguments. Zero value for a *Type field means
// "unset" (the role does not apply to this event).
type DerivedFields struct {
	LHSType             *int `json:"lhsType,omitempty"`
	RHSType             *int `json:"rhsType,omitempty"`
	ResultType          *int `json:"resultType,omitempty"`
	ControlType         *int `json:"controlType,omitempty"`
	IfTrueType          *int `json:"ifTrueType,omitempty"`
	IfFalseType         *int `json:"ifFalseType,omitempty"`
	InputType           *int `json:"inputType,omitempty"`
	CastToType          *int `json:"castToType,omitempty"`
	RandType            *int `json:"randType,omitempty"`
	ScalarFlag          int  `json:"scalarFlag"`
	ResultHandleVersion *int `json:"resultHandleVersion,omitempty"`
}

// DeriveWarning records a DeriveInconsistency: result_type contradicted the
// expected type for Cast/TrivialEncrypt/VerifyInput/FheRand*.
type DeriveWarning struct {
	ChainID      uint64
	TxHash       string
	LogIndex     uint64
	EventName    EventName
	ExpectedType int
	ActualType   int
}
