// Package evmlog decodes raw executor contract logs against the closed set
// of 28 recognized FHE operation events (spec.md §6), using go-ethereum's
// ABI package the way the retrieved corpus's event-feed code does
// (parse a generated-ABI-shaped JSON, match Topics[0] against each event's
// precomputed ID, unpack the non-indexed tail against Data).
package evmlog

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// staticEventFragments covers the six non-binary, non-unary executor
// events. Every event carries an indexed `caller` address as its first
// field, followed by the argument layout from spec.md §6.
const staticEventFragments = `
{"anonymous":false,"name":"FheIfThenElse","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"control","type":"bytes32","indexed":false},
  {"name":"ifTrue","type":"bytes32","indexed":false},
  {"name":"ifFalse","type":"bytes32","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]},
{"anonymous":false,"name":"Cast","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"ct","type":"bytes32","indexed":false},
  {"name":"toType","type":"uint8","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]},
{"anonymous":false,"name":"TrivialEncrypt","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"pt","type":"uint256","indexed":false},
  {"name":"toType","type":"uint8","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]},
{"anonymous":false,"name":"VerifyInput","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"inputHandle","type":"bytes32","indexed":false},
  {"name":"userAddress","type":"address","indexed":false},
  {"name":"inputProof","type":"bytes","indexed":false},
  {"name":"inputType","type":"uint8","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]},
{"anonymous":false,"name":"FheRand","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"randType","type":"uint8","indexed":false},
  {"name":"seed","type":"uint256","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]},
{"anonymous":false,"name":"FheRandBounded","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"upperBound","type":"uint256","indexed":false},
  {"name":"randType","type":"uint8","indexed":false},
  {"name":"seed","type":"uint256","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]}`

func binaryEventFragment(name string) string {
	return `{"anonymous":false,"name":"` + name + `","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"lhs","type":"bytes32","indexed":false},
  {"name":"rhs","type":"bytes32","indexed":false},
  {"name":"scalarByte","type":"bytes1","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]}`
}

func unaryEventFragment(name string) string {
	return `{"anonymous":false,"name":"` + name + `","type":"event","inputs":[
  {"name":"caller","type":"address","indexed":true},
  {"name":"ct","type":"bytes32","indexed":false},
  {"name":"result","type":"bytes32","indexed":false}
]}`
}

func buildEventABIJSON() string {
	parts := []string{buildBinaryFragments(), buildUnaryFragments(), staticEventFragments}
	return "[" + strings.Join(parts, ",\n") + "]"
}

func buildBinaryFragments() string {
	names := sortedNames(models.BinaryOps)
	frags := make([]string, len(names))
	for i, n := range names {
		frags[i] = binaryEventFragment(string(n))
	}
	return strings.Join(frags, ",\n")
}

func buildUnaryFragments() string {
	names := sortedNames(models.UnaryOps)
	frags := make([]string, len(names))
	for i, n := range names {
		frags[i] = unaryEventFragment(string(n))
	}
	return strings.Join(frags, ",\n")
}

func sortedNames(set map[models.EventName]bool) []models.EventName {
	names := make([]models.EventName, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	// Deterministic order for the generated ABI text; doesn't affect
	// decoding semantics, only readability of what would be emitted if
	// this were ever dumped to a file.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// contractABI is parsed once at package init, the same way the retrieved
// corpus's `ContractMetaData.GetAbi()` helpers parse a generated ABI JSON.
var contractABI abi.ABI

// topic0ToName maps each event's computed ID to its EventName, so decoding
// a log never has to search contractABI.Events linearly.
var topic0ToName map[string]models.EventName

func init() {
	parsed, err := abi.JSON(strings.NewReader(buildEventABIJSON()))
	if err != nil {
		// The ABI fragment above is a fixed compile-time constant; a parse
		// failure here means this file itself is broken, not bad input.
		panic("evmlog: invalid embedded ABI: " + err.Error())
	}
	contractABI = parsed

	topic0ToName = make(map[string]models.EventName, len(contractABI.Events))
	for name, ev := range contractABI.Events {
		topic0ToName[ev.ID.Hex()] = models.EventName(name)
	}
}
