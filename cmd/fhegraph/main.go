package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ciphergraph/fhevm-dfg/internal/api"
	"github.com/ciphergraph/fhevm-dfg/internal/chainconfig"
	"github.com/ciphergraph/fhevm-dfg/internal/depgraph"
	"github.com/ciphergraph/fhevm-dfg/internal/errs"
	"github.com/ciphergraph/fhevm-dfg/internal/ingest"
	"github.com/ciphergraph/fhevm-dfg/internal/registry"
	"github.com/ciphergraph/fhevm-dfg/internal/rollup"
	"github.com/ciphergraph/fhevm-dfg/internal/store"
	"github.com/ciphergraph/fhevm-dfg/internal/validator"
)

func main() {
	log.Println("Starting fhegraph — FHE execution event ingestion and data-flow-graph analytics engine...")

	fromBlock := flag.Uint64("from-block", 0, "one-shot backfill start block (requires -to-block; skips the checkpointed poll loop)")
	toBlock := flag.Uint64("to-block", 0, "one-shot backfill end block")
	forceFullRollup := flag.Bool("force-full-rollup", false, "recompute every rollup from scratch instead of resuming from its checkpoint")
	forceFullBuild := flag.Bool("force-full-build", false, "re-derive every tx's DFG from its events instead of trusting prior ingest output")
	failOnCycles := flag.Bool("fail-on-cycles", false, "exit with status 2 if any intra-block dependency cycle was detected")
	failOnMismatch := flag.Bool("fail-on-mismatch", false, "exit with status 2 if the re-derivation validator found a discrepancy")
	validate := flag.Bool("validate", false, "run the re-derivation cross-check (internal/validator) alongside ingest")
	port := flag.String("port", getEnvOrDefault("PORT", "8080"), "HTTP API listen port")
	flag.Parse()

	oneShot := *fromBlock != 0 || *toBlock != 0
	if oneShot && *toBlock < *fromBlock {
		log.Fatalf("FATAL: -to-block (%d) must be >= -from-block (%d)", *toBlock, *fromBlock)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbURL := requireEnv("DATABASE_URL")
	db, err := store.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	chains, err := chainconfig.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	runtimeErrs := make(chan error, len(chains))
	var wg sync.WaitGroup

	for _, cfg := range chains {
		cfg := cfg
		source, err := ingest.NewRPCLogSource(ctx, cfg.RPCURL, common.HexToAddress(cfg.ExecutorAddress))
		if err != nil {
			log.Fatalf("FATAL: chain %d: %v", cfg.ChainID, err)
		}
		defer source.Close()

		if *forceFullBuild && !oneShot {
			if err := db.SaveCheckpoint(ctx, cfg.ChainID, 0); err != nil {
				log.Fatalf("FATAL: chain %d: reset checkpoint for -force-full-build: %v", cfg.ChainID, err)
			}
		}

		chain := newChainRuntime(cfg, db, source, *validate)

		if oneShot {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := chain.backfill(ctx, *fromBlock, *toBlock); err != nil {
					runtimeErrs <- err
				}
			}()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			chain.runIngestLoop(ctx, *failOnCycles, *failOnMismatch, runtimeErrs)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			chain.runRollupLoop(ctx, *forceFullRollup, runtimeErrs)
		}()
	}

	if oneShot {
		wg.Wait()
		os.Exit(collectExitCode(runtimeErrs, *failOnCycles, *failOnMismatch))
	}

	wsHub := api.NewHub()
	go wsHub.Run()
	router := api.SetupRouter(db, wsHub)

	srvErrs := make(chan error, 1)
	go func() {
		log.Printf("fhegraph API listening on :%s", *port)
		srvErrs <- router.Run(":" + *port)
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, stopping chains...")
	case err := <-srvErrs:
		log.Printf("HTTP server exited: %v", err)
		stop()
	case err := <-runtimeErrs:
		log.Printf("fatal chain error, shutting down: %v", err)
		stop()
		wg.Wait()
		os.Exit(errs.ExitCode(err, *failOnCycles, *failOnMismatch))
	}

	wg.Wait()
}

// chainRuntime bundles one chain's wired collaborators: fetcher, batch
// runner, pipeline, and rollup engines, all sharing the same *store.DB.
type chainRuntime struct {
	cfg        chainconfig.Config
	db         *store.DB
	source     *ingest.RPCLogSource
	pipeline   *ingest.ChainPipeline
	batchRun   *ingest.BatchRunner
	fetcher    *ingest.Fetcher
	opmix      *rollup.OpMixEngine
	dependency *rollup.DependencyEngine
	stats      *rollup.StatsEngine
	opbucket   *rollup.OpBucketEngine
}

func newChainRuntime(cfg chainconfig.Config, db *store.DB, source *ingest.RPCLogSource, runValidator bool) *chainRuntime {
	producers := registry.New(db)
	depEngine := depgraph.New(producers, db)

	var collector *validator.Collector
	if runValidator {
		collector = validator.NewCollector(cfg.ChainID)
	}
	pipeline := ingest.NewChainPipeline(cfg.ChainID, db, producers, depEngine, collector)

	fetcher := ingest.NewFetcher(source, cfg.IngestBatchSize, cfg.BlockFetchDelay)
	batchRun := ingest.NewBatchRunner(fetcher, db, cfg.IngestBatchSize, 0)

	timestamps := store.NewPersistingTimestampSource(db, source)
	tsCache := rollup.NewTimestampCache(timestamps, 0)

	return &chainRuntime{
		cfg:        cfg,
		db:         db,
		source:     source,
		pipeline:   pipeline,
		batchRun:   batchRun,
		fetcher:    fetcher,
		opmix:      rollup.NewOpMixEngine(db),
		dependency: rollup.NewDependencyEngine(db),
		stats:      rollup.NewStatsEngine(db),
		opbucket:   rollup.NewOpBucketEngine(db, tsCache, cfg.BucketSeconds),
	}
}

// runIngestLoop polls the chain head and drains new blocks through the
// checkpointed batch runner until ctx is cancelled.
func (c *chainRuntime) runIngestLoop(ctx context.Context, failOnCycles, failOnMismatch bool, fatal chan<- error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	mismatchReported := false
	for {
		head, err := c.source.HeadBlock(ctx)
		if err != nil {
			log.Printf("chain %d: head block lookup failed: %v", c.cfg.ChainID, err)
		} else if head >= c.cfg.ConfirmationDepth {
			confirmedHead := head - c.cfg.ConfirmationDepth
			err := c.batchRun.RunOnce(ctx, c.cfg.ChainID, confirmedHead, c.pipeline.WriteChunk)
			switch {
			case errors.Is(err, ingest.ErrNoWork):
				// caught up, nothing to do this tick
			case err != nil:
				if errors.Is(err, errs.ErrUpstreamOrderViolation) {
					fatal <- err
					return
				}
				log.Printf("chain %d: ingest batch failed, will retry next tick: %v", c.cfg.ChainID, err)
			}
		}

		if report := c.pipeline.ValidationReport(); len(report.Counts) > 0 && !mismatchReported {
			mismatchReported = true
			log.Printf("chain %d: %v: %+v", c.cfg.ChainID, errs.ErrValidationMismatch, report.Counts)
			if failOnMismatch {
				fatal <- errs.ErrValidationMismatch
				return
			}
		}

		if failOnCycles && c.pipeline.HadCycle() {
			fatal <- errs.ErrCycleDetected
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// backfill runs a single bounded fetch over [from, to] outside the
// checkpoint mechanism, for one-shot -from-block/-to-block invocations.
func (c *chainRuntime) backfill(ctx context.Context, from, to uint64) error {
	if err := c.fetcher.Run(ctx, c.cfg.ChainID, from, to, c.pipeline.WriteChunk); err != nil {
		return err
	}
	if report := c.pipeline.ValidationReport(); len(report.Counts) > 0 {
		log.Printf("chain %d: %v: %+v", c.cfg.ChainID, errs.ErrValidationMismatch, report.Counts)
		return errs.ErrValidationMismatch
	}
	if c.pipeline.HadCycle() {
		return errs.ErrCycleDetected
	}
	return nil
}

// runRollupLoop recomputes every rollup kind on the same ticker cadence as
// ingest, falling back to a full rebuild when a checkpoint is missing or
// when forceFull is set (spec.md §4.8's ModeForcedFull).
func (c *chainRuntime) runRollupLoop(ctx context.Context, forceFull bool, fatal chan<- error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	mode := rollup.ModeIncremental
	if forceFull {
		mode = rollup.ModeForcedFull
	}

	for {
		if err := c.opmix.Run(ctx, c.cfg.ChainID, mode); err != nil {
			log.Printf("chain %d: opmix rollup failed: %v", c.cfg.ChainID, err)
		}
		if err := c.dependency.Run(ctx, c.cfg.ChainID, mode); err != nil {
			log.Printf("chain %d: dependency rollup failed: %v", c.cfg.ChainID, err)
		}
		if err := c.stats.Run(ctx, c.cfg.ChainID, mode); err != nil {
			log.Printf("chain %d: stats rollup failed: %v", c.cfg.ChainID, err)
		}
		if err := c.opbucket.Run(ctx, c.cfg.ChainID, mode); err != nil {
			log.Printf("chain %d: opbucket rollup failed: %v", c.cfg.ChainID, err)
		}

		// Only the first pass after a forced full rebuild needs ModeForcedFull;
		// subsequent ticks resume incrementally from the checkpoint it wrote.
		mode = rollup.ModeIncremental

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func collectExitCode(errsCh <-chan error, failOnCycles, failOnMismatch bool) int {
	select {
	case err := <-errsCh:
		return errs.ExitCode(err, failOnCycles, failOnMismatch)
	default:
		return 0
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
