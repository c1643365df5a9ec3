package dspgemm

import "errors"

// Sentinel errors implementing the §7 error taxonomy. Every fatal condition
// the engine can raise wraps one of these with fmt.Errorf("%w: ...") so
// callers can classify failures with errors.Is while still getting a
// specific message.
var (
	// ErrConfigInvalid marks an unrecognized Nneurons or Nlayers value.
	ErrConfigInvalid = errors.New("dspgemm: invalid configuration")

	// ErrIoFailure marks a missing, truncated or malformed input file.
	ErrIoFailure = errors.New("dspgemm: io failure")

	// ErrAllocFailure marks an allocator that returned null or exceeded capacity.
	ErrAllocFailure = errors.New("dspgemm: allocation failure")

	// ErrTilingFailure marks ntiles != nrowgrps*ncolgrps, a factorization
	// mismatch, or a diagonal uniqueness violation.
	ErrTilingFailure = errors.New("dspgemm: tiling failure")

	// ErrDimensionMismatch marks A.ncols != B.nrows at SpGEMM entry.
	ErrDimensionMismatch = errors.New("dspgemm: dimension mismatch")

	// ErrInvariantViolation marks broken CSC ordering, disagreeing exchange
	// counts, or inconsistent repartition math.
	ErrInvariantViolation = errors.New("dspgemm: invariant violation")

	// ErrCommFailure marks a collective or point-to-point communication error.
	ErrCommFailure = errors.New("dspgemm: communication failure")

	// ErrChallengeFailed marks categories disagreeing with ground truth.
	// Unlike the rest of this set it is not fatal: Net.Execute returns it
	// as a plain error alongside the computed categories, and only the
	// cmd layer maps it onto a distinct non-zero process exit code.
	ErrChallengeFailed = errors.New("dspgemm: challenge failed")
)
