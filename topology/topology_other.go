//go:build !linux

package topology

// NewLinux falls back to the portable round-robin Topology on platforms
// without SchedSetaffinity; coresPerSocket is ignored.
func NewLinux(coresPerSocket int) Topology {
	return NewRoundRobin(coresPerSocket)
}
