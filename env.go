package dspgemm

import (
	"sync"
)

// ThreadBarrier is a reusable barrier for nthreads process-local worker
// goroutines, standing in for pthread_barrier_t in the original engine.
// Workers call Wait at each synchronization point named in §5; the last
// arriving goroutine releases every waiter and resets the barrier for
// reuse on the next layer.
type ThreadBarrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	waiting int
	phase   int
}

// NewThreadBarrier builds a barrier that releases once n goroutines call Wait.
func NewThreadBarrier(n int) *ThreadBarrier {
	b := &ThreadBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until n goroutines have called Wait since the last release.
func (b *ThreadBarrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	phase := b.phase
	b.waiting++
	if b.waiting == b.n {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	for phase == b.phase {
		b.cond.Wait()
	}
}

// ThreadCounters holds per-thread scalars the Environment publishes across
// barrier points: nnz contributions ahead of a cross-thread reduction, and
// the pass/fail bit the challenge validation step collects from every
// worker before the final AllReduce.
type ThreadCounters struct {
	OffsetNNZ  uint64
	IdxNNZ     int
	CheckConv  bool
}

// Environment is the long-lived, explicitly-passed value carrying
// process/thread identity, the thread barrier and per-thread counters. It
// replaces the original's global Env:: namespace and singleton state: every
// component that needs rank/thread context receives one by value or
// pointer, never through a package-level global.
type Environment struct {
	Rank     int
	NRanks   int
	NThreads int

	Comm    Comm
	Barrier *ThreadBarrier

	mu       sync.Mutex
	counters []ThreadCounters
}

// NewEnvironment constructs an Environment for the given rank within a
// group of nranks processes, each running nthreads worker goroutines.
func NewEnvironment(rank, nranks, nthreads int, comm Comm) *Environment {
	return &Environment{
		Rank:     rank,
		NRanks:   nranks,
		NThreads: nthreads,
		Comm:     comm,
		Barrier:  NewThreadBarrier(nthreads),
		counters: make([]ThreadCounters, nthreads),
	}
}

// SetCounter stores tid's counters, replacing whatever was stored before.
func (e *Environment) SetCounter(tid int, c ThreadCounters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[tid] = c
}

// Counter returns a copy of tid's last published counters.
func (e *Environment) Counter(tid int) ThreadCounters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters[tid]
}

// SumOffsetNNZ returns the sum of OffsetNNZ across all nthreads counters:
// the local rank's total for the cross-thread nnz allocation of §4.4 (the
// same value PrefixSumOffsetNNZ returns as its total).
func (e *Environment) SumOffsetNNZ() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var sum uint64
	for _, c := range e.counters {
		sum += c.OffsetNNZ
	}
	return sum
}

// PrefixSumOffsetNNZ computes, from the currently published per-thread
// OffsetNNZ counters, the exclusive prefix sum used to seed each thread's
// idx_nnz origin before the numeric pass, and the grand total nnz.
func (e *Environment) PrefixSumOffsetNNZ() (prefix []uint64, total uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix = make([]uint64, len(e.counters))
	var running uint64
	for i, c := range e.counters {
		prefix[i] = running
		running += c.OffsetNNZ
	}
	return prefix, running
}

// AllConverged reports whether every thread's CheckConv bit, last published
// via SetCounter, is true.
func (e *Environment) AllConverged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.counters {
		if !c.CheckConv {
			return false
		}
	}
	return true
}

// AssignCols splits [0, ncols) into nthreads contiguous stripes as evenly as
// possible and returns tid's own [start, end), matching Env::assign_col in
// the original engine. The first (ncols % nthreads) stripes get one extra
// column.
func AssignCols(ncols, nthreads, tid int) ColStripe {
	base := ncols / nthreads
	rem := ncols % nthreads
	start := tid*base + min(tid, rem)
	end := start + base
	if tid < rem {
		end++
	}
	return ColStripe{Start: start, End: end}
}
