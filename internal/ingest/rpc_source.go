package ingest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ciphergraph/fhevm-dfg/internal/evmlog"
)

// RPCLogSource implements LogSource over an ethclient.Client, scoped to
// one executor contract address. It is the only component in this repo
// that crosses the RPC boundary for log retrieval.
type RPCLogSource struct {
	client  *ethclient.Client
	address common.Address
}

// NewRPCLogSource dials rpcURL and returns a source filtering logs emitted
// by the executor contract at address.
func NewRPCLogSource(ctx context.Context, rpcURL string, address common.Address) (*RPCLogSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ingest: dial rpc %s: %w", rpcURL, err)
	}
	return &RPCLogSource{client: client, address: address}, nil
}

// Close releases the underlying RPC connection.
func (s *RPCLogSource) Close() { s.client.Close() }

// FetchLogs retrieves every log emitted by the executor contract within
// [fromBlock, toBlock], inclusive.
func (s *RPCLogSource) FetchLogs(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) ([]evmlog.RawLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{s.address},
	}

	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ingest: filter logs chain=%d blocks=%d-%d: %w", chainID, fromBlock, toBlock, err)
	}

	out := make([]evmlog.RawLog, len(logs))
	for i, l := range logs {
		out[i] = evmlog.RawLog{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			TxHash:      l.TxHash,
			BlockNumber: l.BlockNumber,
			BlockHash:   l.BlockHash,
			Index:       uint64(l.Index),
		}
	}
	return out, nil
}

// BlockTimestamp implements rollup.BlockTimestampSource by fetching one
// block header over the same RPC connection.
func (s *RPCLogSource) BlockTimestamp(ctx context.Context, chainID, blockNumber uint64) (int64, error) {
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, fmt.Errorf("ingest: header chain=%d block=%d: %w", chainID, blockNumber, err)
	}
	return int64(header.Time), nil
}

// HeadBlock reports the chain's current block height, for the batch
// runner's headBlock argument minus the confirmation depth.
func (s *RPCLogSource) HeadBlock(ctx context.Context) (uint64, error) {
	n, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: block number: %w", err)
	}
	return n, nil
}
