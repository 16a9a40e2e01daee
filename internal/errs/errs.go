// Package errs names the error taxonomy from the spec's error-handling
// design: which failures are recovered locally, which are reported but
// non-fatal, and which must halt a batch outright. Sentinel values are
// wrapped with fmt.Errorf("%w: ...") at the call site so errors.Is keeps
// working through the wrap.
package errs

import "errors"

var (
	// ErrDecodeFailure: a log could not be decoded against any known
	// signature. Non-fatal — the event is persisted as Unknown.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrDeriveInconsistency: result type contradicted the expected type
	// for Cast/TrivialEncrypt/VerifyInput/FheRand*. Non-fatal, rate-limited
	// warning.
	ErrDeriveInconsistency = errors.New("derive inconsistency")

	// ErrBuildSkip: a malformed argument blob inside a specific event.
	// Non-fatal — that event contributes no node.
	ErrBuildSkip = errors.New("build skip")

	// ErrCheckpointMissing: an incremental rollup consumer started without
	// a checkpoint. Recovered by falling back to a full rebuild.
	ErrCheckpointMissing = errors.New("checkpoint missing")

	// ErrUpstreamOrderViolation: a consumer's non-trivial upstream has no
	// dependency record yet. Fatal — halts the batch.
	ErrUpstreamOrderViolation = errors.New("upstream order violation")

	// ErrCycleDetected: an intra-block SCC was found. Non-fatal unless the
	// operator requested fail-on-cycles.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrValidationMismatch: the validator found a discrepancy. Non-fatal
	// unless the operator requested fail-on-mismatch.
	ErrValidationMismatch = errors.New("validation mismatch")

	// ErrTransport: an RPC timeout or 5xx. Retried locally with backoff;
	// surfaced only if retries are exhausted.
	ErrTransport = errors.New("transport error")
)

// ExitCode maps a possibly-nil top-level error (and whether the operator
// asked for fail-on-cycles / fail-on-mismatch) to the process exit status
// described in spec.md §6: 0 success, 1 unrecoverable failure, 2 when an
// analyzer was explicitly asked to fail on a detected mismatch.
func ExitCode(err error, failOnCycles, failOnMismatch bool) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrCycleDetected):
		if failOnCycles {
			return 2
		}
		return 0
	case errors.Is(err, ErrValidationMismatch):
		if failOnMismatch {
			return 2
		}
		return 0
	default:
		return 1
	}
}
