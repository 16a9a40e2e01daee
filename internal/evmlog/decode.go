package evmlog

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// RawLog is the minimal shape evmlog needs from an RPC log; production
// ingest populates it from go-ethereum's types.Log.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	Index       uint64
}

// Decode matches log.Topics[0] against the 28 known event IDs and unpacks
// its arguments into a role-keyed map. An unrecognized topic0 yields
// (Unknown, nil, nil) per spec.md §7's DecodeFailure semantics — the caller
// persists the event with event_name=Unknown and a null args map rather
// than treating this as fatal.
func Decode(log RawLog) (models.EventName, map[string]any, error) {
	if len(log.Topics) == 0 {
		return models.EventUnknown, nil, nil
	}

	name, ok := topic0ToName[log.Topics[0].Hex()]
	if !ok {
		return models.EventUnknown, nil, nil
	}

	event := contractABI.Events[string(name)]

	args := make(map[string]any)

	// caller is the only indexed field across all 28 events; topic[1]
	// carries its left-padded address value.
	for _, in := range event.Inputs {
		if in.Indexed && len(log.Topics) > 1 {
			args[in.Name] = common.BytesToAddress(log.Topics[1].Bytes())
			break
		}
	}

	nonIndexed := event.Inputs.NonIndexed()
	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return models.EventUnknown, nil, err
	}
	for i, in := range nonIndexed {
		args[in.Name] = values[i]
	}

	return name, args, nil
}
