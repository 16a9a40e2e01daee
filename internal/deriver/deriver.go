// Package deriver implements the pure function (event_name, args) →
// DerivedFields described in spec.md §4.2: it reads an event's decoded
// argument map and produces the eleven per-role derived scalar fields,
// plus a cross-check that flags DeriveInconsistency without failing
// ingestion.
package deriver

import (
	"github.com/ciphergraph/fhevm-dfg/internal/handle"
	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// ScalarFlag parses the scalarByte argument: 0x00 means non-scalar (0),
// any other value means scalar (1). This is the only meaning of
// scalar-byte semantics — additional bits are ignored (spec.md §4.2,
// §9 open question).
func ScalarFlag(raw any) int {
	switch v := raw.(type) {
	case byte:
		if v == 0x00 {
			return 0
		}
		return 1
	case []byte:
		if len(v) == 1 && v[0] == 0x00 {
			return 0
		}
		if len(v) == 0 {
			return 0
		}
		for _, b := range v {
			if b != 0 {
				return 1
			}
		}
		return 0
	case [1]byte:
		if v[0] == 0x00 {
			return 0
		}
		return 1
	case int:
		if v == 0 {
			return 0
		}
		return 1
	case int64:
		if v == 0 {
			return 0
		}
		return 1
	default:
		// Unrecognized shape: treat as scalar to stay on the conservative
		// side (matches "anything-else → 1" for the documented single byte
		// case as closely as an unknown shape allows).
		return 1
	}
}

// smallInt reads a role value that is a declared small integer (toType,
// pt's width is irrelevant, randType, upperBound) rather than a handle.
func smallInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	default:
		return 0, false
	}
}

// Derive computes the DerivedFields for one event given its decoded
// arguments. ok is false when args is nil (undecodable event — caller
// should not persist derived fields).
func Derive(name models.EventName, args map[string]any) (models.DerivedFields, bool) {
	var d models.DerivedFields
	if args == nil {
		return d, false
	}

	spec, known := EventSpecs[name]
	if !known {
		return d, true
	}

	if raw, present := args["scalarByte"]; present {
		d.ScalarFlag = ScalarFlag(raw)
	}

	for _, role := range spec.Inputs {
		raw, present := args[role.Arg]
		if !present {
			continue
		}
		switch role.Role {
		case "lhs", "ct":
			if meta, err := handle.Decode(raw); err == nil {
				t := meta.Type
				d.LHSType = &t
			}
		case "rhs":
			if d.ScalarFlag == 0 {
				if meta, err := handle.Decode(raw); err == nil {
					t := meta.Type
					d.RHSType = &t
				}
			}
		case "control":
			if meta, err := handle.Decode(raw); err == nil {
				t := meta.Type
				d.ControlType = &t
			}
		case "ifTrue":
			if meta, err := handle.Decode(raw); err == nil {
				t := meta.Type
				d.IfTrueType = &t
			}
		case "ifFalse":
			if meta, err := handle.Decode(raw); err == nil {
				t := meta.Type
				d.IfFalseType = &t
			}
		case "toType":
			if n, ok := smallInt(raw); ok {
				d.CastToType = &n
			}
		case "inputHandle":
			// Fallback source for input_type; only used if inputType itself
			// is absent/unparseable (handled below).
		case "randType":
			if n, ok := smallInt(raw); ok {
				d.RandType = &n
			}
		}
	}

	if name == models.EventVerifyInput {
		if raw, present := args["inputType"]; present {
			if n, ok := smallInt(raw); ok {
				d.InputType = &n
			}
		}
		if d.InputType == nil {
			if raw, present := args["inputHandle"]; present {
				if meta, err := handle.Decode(raw); err == nil {
					t := meta.Type
					d.InputType = &t
				}
			}
		}
	}

	if spec.OutputArg != "" {
		if raw, present := args[spec.OutputArg]; present {
			if meta, err := handle.Decode(raw); err == nil {
				rt := meta.Type
				rv := meta.Version
				d.ResultType = &rt
				d.ResultHandleVersion = &rv
			}
		}
	}

	return d, true
}

// ExpectedType returns the "expected" result type for events where the
// cross-check validator can compare it against the derived result_type,
// and whether this event name has one at all (spec.md §4.2).
func ExpectedType(name models.EventName, d models.DerivedFields) (int, bool) {
	switch name {
	case models.EventCast, models.EventTrivialEncrypt:
		if d.CastToType != nil {
			return *d.CastToType, true
		}
	case models.EventVerifyInput:
		if d.InputType != nil {
			return *d.InputType, true
		}
	case models.EventFheRand, models.EventFheRandBounded:
		if d.RandType != nil {
			return *d.RandType, true
		}
	}
	return 0, false
}

// CheckConsistency runs the cross-check validator: it compares result_type
// against the expected type for Cast/TrivialEncrypt/VerifyInput/FheRand*
// and returns a warning when they disagree. Returns (warning, true) on
// mismatch, (zero, false) when there's nothing to check or they agree.
func CheckConsistency(chainID uint64, txHash string, logIndex uint64, name models.EventName, d models.DerivedFields) (models.DeriveWarning, bool) {
	expected, ok := ExpectedType(name, d)
	if !ok || d.ResultType == nil {
		return models.DeriveWarning{}, false
	}
	if *d.ResultType == expected {
		return models.DeriveWarning{}, false
	}
	return models.DeriveWarning{
		ChainID:      chainID,
		TxHash:       txHash,
		LogIndex:     logIndex,
		EventName:    name,
		ExpectedType: expected,
		ActualType:   *d.ResultType,
	}, true
}
