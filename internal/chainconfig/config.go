// Package chainconfig loads per-chain operator configuration from the
// environment, the way cmd/fhegraph's main loads DATABASE_URL:
// requireEnv fails fast on a missing required value, getEnvOrDefault
// fills in a safe default for everything else.
package chainconfig

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is one chain's complete ingest/rollup configuration.
type Config struct {
	ChainID           uint64
	RPCURL            string
	ExecutorAddress   string
	ConfirmationDepth uint64
	PollInterval      time.Duration
	IngestBatchSize   uint64
	RollupBatchSize   uint64
	BucketSeconds     int64
	FetchConcurrency  int
	BlockFetchDelay   time.Duration
}

const (
	defaultConfirmationDepth = 12
	defaultPollInterval      = 15 * time.Second
	defaultIngestBatchSize   = 2000
	defaultRollupBatchSize   = 500
	defaultBucketSeconds     = 300
	defaultBlockFetchDelay   = 0
)

// Load reads FHEGRAPH_CHAINS (a comma list of chain IDs) and builds one
// Config per chain, with each chain's RPC URL required from
// FHEGRAPH_RPC_<CHAINID>. It exits the process on a missing required
// variable, matching the teacher's requireEnv fail-fast behavior.
func Load() ([]Config, error) {
	chainsRaw := requireEnv("FHEGRAPH_CHAINS")
	ids := strings.Split(chainsRaw, ",")

	configs := make([]Config, 0, len(ids))
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chainconfig: invalid chain id %q in FHEGRAPH_CHAINS: %w", raw, err)
		}
		configs = append(configs, loadOne(chainID))
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("chainconfig: FHEGRAPH_CHAINS resolved to zero chains")
	}
	return configs, nil
}

func loadOne(chainID uint64) Config {
	rpcKey := fmt.Sprintf("FHEGRAPH_RPC_%d", chainID)
	return Config{
		ChainID:           chainID,
		RPCURL:            requireEnv(rpcKey),
		ExecutorAddress:   requireEnvPerChainOrGlobal(chainID, "EXECUTOR_ADDRESS", "FHEGRAPH_EXECUTOR_ADDRESS"),
		ConfirmationDepth: getEnvUintOrDefault(prefixed(chainID, "CONFIRMATIONS"), defaultConfirmationDepth),
		PollInterval:      getEnvDurationOrDefault(prefixed(chainID, "POLL_INTERVAL"), defaultPollInterval),
		IngestBatchSize:   getEnvUintOrDefault(prefixed(chainID, "INGEST_BATCH_SIZE"), defaultIngestBatchSize),
		RollupBatchSize:   getEnvUintOrDefault(prefixed(chainID, "ROLLUP_BATCH_SIZE"), defaultRollupBatchSize),
		BucketSeconds:     int64(getEnvUintOrDefault(prefixed(chainID, "BUCKET_SECONDS"), defaultBucketSeconds)),
		BlockFetchDelay:   getEnvDurationOrDefault(prefixed(chainID, "BLOCK_FETCH_DELAY"), defaultBlockFetchDelay),
		FetchConcurrency:  int(getEnvUintOrDefault(prefixed(chainID, "FETCH_CONCURRENCY"), 0)),
	}
}

func prefixed(chainID uint64, suffix string) string {
	return fmt.Sprintf("FHEGRAPH_%d_%s", chainID, suffix)
}

// requireEnvPerChainOrGlobal reads a per-chain override first, falling back
// to a shared global variable (most deployments run every chain against
// the same executor contract address) before failing fast.
func requireEnvPerChainOrGlobal(chainID uint64, perChainSuffix, globalKey string) string {
	if val := os.Getenv(prefixed(chainID, perChainSuffix)); val != "" {
		return val
	}
	return requireEnv(globalKey)
}

// requireEnv reads a required environment variable and exits if it is not
// set, mirroring cmd/fhegraph's requireEnv.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvUintOrDefault(key string, fallback uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			return n
		}
		log.Printf("WARNING: %s=%q is not a valid uint, using default %d", key, val, fallback)
	}
	return fallback
}

func getEnvDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("WARNING: %s=%q is not a valid duration, using default %s", key, val, fallback)
	}
	return fallback
}
