//go:build linux

package topology

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// linuxTopology pins worker goroutines to specific CPUs via
// SchedSetaffinity, matching Env::set_thread_affinity's use of
// pthread_setaffinity_np in the original engine. coresPerSocket divides
// the machine's logical CPUs into NUMA-sized groups; SocketOf and Pin
// both derive their placement from tid % runtime.NumCPU().
type linuxTopology struct {
	nCPU          int
	coresPerSocket int
}

// NewLinux builds a Topology backed by SchedSetaffinity, grouping
// runtime.NumCPU() logical CPUs into sockets of coresPerSocket each.
func NewLinux(coresPerSocket int) Topology {
	if coresPerSocket < 1 {
		coresPerSocket = 1
	}
	return &linuxTopology{nCPU: runtime.NumCPU(), coresPerSocket: coresPerSocket}
}

func (l *linuxTopology) SocketOf(tid int) int {
	cpu := l.cpuOf(tid)
	return cpu / l.coresPerSocket
}

func (l *linuxTopology) cpuOf(tid int) int {
	if tid < 0 {
		tid = -tid
	}
	if l.nCPU < 1 {
		return 0
	}
	return tid % l.nCPU
}

// Pin locks the calling goroutine to its OS thread and sets that
// thread's CPU affinity mask to the single CPU tid maps to.
func (l *linuxTopology) Pin(tid int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(l.cpuOf(tid))
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("topology: SchedSetaffinity tid=%d: %w", tid, err)
	}
	return nil
}
