package dspgemm

import "sync"

// tripleScratchPool backs the per-destination/per-tile triple staging
// buffers that would otherwise cause GC pressure across the
// hundreds-to-thousands of layers a run iterates: Tile.Compress's
// sort staging and Tiling.Exchange's per-destination send buffers.
const pooledTripleCap = 256

var tripleScratchPool = sync.Pool{
	New: func() interface{} {
		return make([]Triple, 0, pooledTripleCap)
	},
}

// getTripleScratch returns a []Triple with at least capacity c and length 0,
// used to stage per-destination triples during an all-to-all exchange and
// to stage a tile's triples during its column-major sort in Compress.
func getTripleScratch(c int) []Triple {
	w := tripleScratchPool.Get().([]Triple)
	if cap(w) < c {
		w = make([]Triple, 0, c)
	}
	return w[:0]
}

// putTripleScratch returns w to the pool. It must not be called while any
// reference to w's backing array is still live elsewhere.
func putTripleScratch(w []Triple) {
	if cap(w) >= pooledTripleCap {
		tripleScratchPool.Put(w[:0])
	}
}
