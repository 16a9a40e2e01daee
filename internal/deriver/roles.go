package deriver

import "github.com/ciphergraph/fhevm-dfg/pkg/models"

// RoleKind classifies how a role's raw argument should be interpreted when
// building a DFG node's input list.
type RoleKind int

const (
	// RoleHandle: the argument is always a candidate ciphertext handle.
	RoleHandle RoleKind = iota
	// RoleHandleUnlessScalar: a candidate handle when the event's
	// scalar_flag is 0, a scalar value otherwise (binary ops' rhs).
	RoleHandleUnlessScalar
	// RoleScalarAlways: the argument is never a handle, regardless of
	// scalar_flag (Cast.toType, TrivialEncrypt.pt/toType,
	// FheRand(Bounded).seed/upperBound/randType).
	RoleScalarAlways
)

// RoleSpec is one input role of an event: the logical name, the key under
// which its raw value is stored in the decoded args map, and how to
// classify it.
type RoleSpec struct {
	Role string
	Arg  string
	Kind RoleKind
}

// EventSpec is the full role table entry for one recognized event name.
type EventSpec struct {
	Name EventName
	// Inputs lists every input role in the order dictated by spec.md §6's
	// argument layout for this event. It excludes the output role.
	Inputs []RoleSpec
	// OutputArg is the args-map key holding the produced handle, or "" if
	// the event has no output handle (none of the 28 recognized events
	// lack one, but the zero value documents the invariant).
	OutputArg string
	// TrivialOutput is true only for TrivialEncrypt: its output handle is
	// marked is_trivial in the producer registry and excluded from
	// chain-depth propagation.
	TrivialOutput bool
}

// EventName is a local alias kept for readability in this file's table;
// identical to models.EventName.
type EventName = models.EventName

// EventSpecs is the closed role table for the 28 recognized event names,
// per spec.md §4.2 and §6. Anything not present here derives no fields, and
// dfg.Build skips it (recording a BuildSkip) rather than making it a node —
// in practice every event the evmlog decoder emits besides Unknown is in
// this table.
var EventSpecs = buildEventSpecs()

func buildEventSpecs() map[EventName]EventSpec {
	m := make(map[EventName]EventSpec, 32)

	binaryInputs := []RoleSpec{
		{Role: "lhs", Arg: "lhs", Kind: RoleHandle},
		{Role: "rhs", Arg: "rhs", Kind: RoleHandleUnlessScalar},
	}
	for name := range models.BinaryOps {
		m[name] = EventSpec{Name: name, Inputs: binaryInputs, OutputArg: "result"}
	}

	unaryInputs := []RoleSpec{
		{Role: "ct", Arg: "ct", Kind: RoleHandle},
	}
	for name := range models.UnaryOps {
		m[name] = EventSpec{Name: name, Inputs: unaryInputs, OutputArg: "result"}
	}

	m[models.EventFheIfThenElse] = EventSpec{
		Name: models.EventFheIfThenElse,
		Inputs: []RoleSpec{
			{Role: "control", Arg: "control", Kind: RoleHandle},
			{Role: "ifTrue", Arg: "ifTrue", Kind: RoleHandle},
			{Role: "ifFalse", Arg: "ifFalse", Kind: RoleHandle},
		},
		OutputArg: "result",
	}

	m[models.EventCast] = EventSpec{
		Name: models.EventCast,
		Inputs: []RoleSpec{
			{Role: "ct", Arg: "ct", Kind: RoleHandle},
			{Role: "toType", Arg: "toType", Kind: RoleScalarAlways},
		},
		OutputArg: "result",
	}

	m[models.EventTrivialEncrypt] = EventSpec{
		Name: models.EventTrivialEncrypt,
		Inputs: []RoleSpec{
			{Role: "pt", Arg: "pt", Kind: RoleScalarAlways},
			{Role: "toType", Arg: "toType", Kind: RoleScalarAlways},
		},
		OutputArg:     "result",
		TrivialOutput: true,
	}

	m[models.EventVerifyInput] = EventSpec{
		Name: models.EventVerifyInput,
		Inputs: []RoleSpec{
			{Role: "inputHandle", Arg: "inputHandle", Kind: RoleHandle},
		},
		OutputArg: "result",
	}

	m[models.EventFheRand] = EventSpec{
		Name: models.EventFheRand,
		Inputs: []RoleSpec{
			{Role: "randType", Arg: "randType", Kind: RoleScalarAlways},
			{Role: "seed", Arg: "seed", Kind: RoleScalarAlways},
		},
		OutputArg: "result",
	}

	m[models.EventFheRandBounded] = EventSpec{
		Name: models.EventFheRandBounded,
		Inputs: []RoleSpec{
			{Role: "upperBound", Arg: "upperBound", Kind: RoleScalarAlways},
			{Role: "randType", Arg: "randType", Kind: RoleScalarAlways},
			{Role: "seed", Arg: "seed", Kind: RoleScalarAlways},
		},
		OutputArg: "result",
	}

	return m
}
