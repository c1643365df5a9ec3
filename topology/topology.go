// Package topology provides thread-to-core/NUMA-socket affinity,
// standing in for the original engine's pthread_setaffinity_np calls via
// Env::set_thread_affinity.
package topology

// Topology maps worker thread indices to NUMA sockets and pins the
// calling OS thread to a specific CPU.
type Topology interface {
	// SocketOf returns the NUMA socket a worker thread's data (its SPA,
	// its owned tiles) should be placed on.
	SocketOf(tid int) int
	// Pin binds the calling OS thread to the core associated with tid.
	// Implementations that cannot express affinity (non-Linux) return nil
	// without effect.
	Pin(tid int) error
}

// roundRobin is the portable fallback: tid's socket is tid modulo the
// configured socket count, with no actual pinning capability.
type roundRobin struct {
	nSockets int
}

// NewRoundRobin returns a Topology that assigns sockets round-robin over
// nSockets without attempting any OS-level affinity call.
func NewRoundRobin(nSockets int) Topology {
	if nSockets < 1 {
		nSockets = 1
	}
	return &roundRobin{nSockets: nSockets}
}

func (r *roundRobin) SocketOf(tid int) int {
	if tid < 0 {
		tid = -tid
	}
	return tid % r.nSockets
}

func (r *roundRobin) Pin(tid int) error { return nil }
