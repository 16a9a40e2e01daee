package models

// HandleProducer is the last-writer-wins mapping from a handle to the tx
// that produced it.
type HandleProducer struct {
	ChainID     uint64 `json:"chainId"`
	Handle      string `json:"handle"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	IsTrivial   bool   `json:"isTrivial"`
}

// DependencyRecord is the per-tx cross-transaction dependency summary.
type DependencyRecord struct {
	ChainID     uint64   `json:"chainId"`
	TxHash      string   `json:"txHash"`
	BlockNumber uint64   `json:"blockNumber"`
	UpstreamTxs []string `json:"upstreamTxs"`
	HandleLinks int      `json:"handleLinks"`
	ChainDepth  int      `json:"chainDepth"`
	TotalDepth  int      `json:"totalDepth"`
}
