package dspgemm

import (
	"fmt"
	"sort"
)

// TilingShape names one of the four concrete tile-ownership layouts Net
// builds (§4.5). Each shape is a degenerate case of tiling.hpp's general
// gcd-based ownership formula (§4.3): a pure row-1D grid (ncolgrps == 1)
// or a pure col-1D grid (nrowgrps == 1), optionally with tiling.hpp's
// one_rank override (every cell forced to the building process's own
// rank, used when a tiling represents one rank's private replica rather
// than a cross-rank distribution). shapeFactors resolves each shape to
// the (effNRanks, effNThreads, oneRank, rowWise) the general formula in
// ownerOf needs.
type TilingShape int

const (
	// FeatureRankShape: row-1D across ranks only, one tile per row group,
	// a single column group. Used for the features/output tiling under
	// data x model, where Env::nranks row groups each map to rank == i,
	// thread == 0 (ncolgrps is always 1, so j is always 0).
	FeatureRankShape TilingShape = iota
	// FeatureThreadShape: row-1D across nranks*nthreads row groups. Used
	// for the features/output tiling under data x data, where net.hpp
	// constructs the Tiling with a global thread count of
	// Env::nranks*Env::nthreads; row group i maps to rank = i % nranks,
	// thread = i / nranks (verified by hand for nranks=2, nthreads=2: i=0
	// -> rank0/thread0, i=1 -> rank1/thread0, i=2 -> rank0/thread1, i=3
	// -> rank1/thread1).
	FeatureThreadShape
	// LayerColShape: col-1D across nthreads column groups, a single row
	// group, with one_rank forcing every cell's owning rank to the
	// building process's own rank (each rank holds a full, independent
	// copy of the layer weights, split by thread column stripe). Column
	// group j maps to thread == j.
	LayerColShape
	// LayerReplicatedShape: a single 1x1 tile, replicated in full by
	// every rank and shared read-only by every thread within a rank.
	// Used for the layer weight tiling under data x data.
	LayerReplicatedShape
)

// BuildParams describes the shape of one Tiling to construct, replacing
// the original's sprawling Tiling constructor overloads with a single
// value per §9's redesign directive ("Tiling.Build(params)").
type BuildParams struct {
	NRows, NCols int
	NRowGrps     int
	NColGrps     int
	NRanks       int
	NThreads     int
	Shape        TilingShape
	// OwnRank is this process's rank, needed only by LayerColShape and
	// LayerReplicatedShape to resolve the "every rank owns its own copy"
	// rule.
	OwnRank int
}

// Tiling is the 1D row or column grid of Tiles covering a global matrix,
// owned by the enclosing Net (spec.md §3).
type Tiling struct {
	NRowGrps, NColGrps int
	NRanks, NThreads   int
	Shape              TilingShape

	// RowBounds/ColBounds are monotonically increasing upper edges of
	// each row/column partition, used to locate a triple's owning tile
	// in O(log n). Both are populated; the one along a dimension with a
	// single group has one entry.
	RowBounds []uint32
	ColBounds []uint32

	Tiles [][]*Tile
}

// evenBounds splits [0, total) into n contiguous partitions as evenly as
// possible and returns the upper (exclusive) edge of each, so
// evenBounds(10, 3) == [4, 7, 10].
func evenBounds(total, n int) []uint32 {
	bounds := make([]uint32, n)
	base := total / n
	rem := total % n
	acc := 0
	for k := 0; k < n; k++ {
		acc += base
		if k < rem {
			acc++
		}
		bounds[k] = uint32(acc)
	}
	return bounds
}

// gcd returns the greatest common divisor of a and b (a, b >= 0).
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// shapeFactors resolves a TilingShape to the parameters ownerOf's general
// formula needs: effNRanks*effNThreads is the total number of processing
// units the grid's single varying dimension is striped across; oneRank
// forces every cell's rank to p.OwnRank once the formula's own rank term
// resolves to the degenerate effNRanks == 1 case; rowWise selects whether
// row index i (true) or column index j (false) is the varying dimension.
func shapeFactors(p BuildParams) (effNRanks, effNThreads int, oneRank, rowWise bool) {
	switch p.Shape {
	case FeatureRankShape:
		return p.NRanks, 1, false, true
	case FeatureThreadShape:
		return p.NRanks, p.NThreads, false, true
	case LayerColShape:
		return 1, p.NThreads, true, false
	case LayerReplicatedShape:
		return 1, 1, true, false
	default:
		return 1, 1, false, true
	}
}

// ownerOf resolves the (rank, thread) pair owning grid position (i, j),
// via tiling.hpp's general gcd-based formula (§4.3):
//
//	t = (((i mod colgrp_nT) * rowgrp_nT) + (j mod rowgrp_nT) +
//	     (i div (nrowgrps / gcd(rowgrp_nT, colgrp_nT))) * thread_nrowgrps) mod (nranks*nthreads)
//	rank = t mod nranks; thread = t div nranks
//
// specialized to the degenerate row-1D/col-1D grids shapeFactors
// describes: every TilingShape Net builds varies only one of i or j (the
// other's own group count is always 1), so the formula's cross term and
// its thread_nrowgrps/gcd machinery reduce to the single-axis form below
// without approximation. one_rank then overrides the resolved rank with
// p.OwnRank, mirroring tiling.hpp's own override for a process's private
// tiling replica.
func ownerOf(p BuildParams, i, j int) (rank, thread int) {
	effNRanks, effNThreads, oneRank, rowWise := shapeFactors(p)
	nT := effNRanks * effNThreads

	rowgrpNT, colgrpNT := nT, 1
	if rowWise {
		rowgrpNT, colgrpNT = 1, nT
	}

	g := gcd(rowgrpNT, colgrpNT)
	threadNRowGrps := p.NRowGrps / colgrpNT
	t := ((i%colgrpNT)*rowgrpNT + (j%rowgrpNT) + (i/(p.NRowGrps/g))*threadNRowGrps) % nT

	rank, thread = t%effNRanks, t/effNRanks
	if oneRank {
		rank = p.OwnRank
	}
	return rank, thread
}

// Build constructs a Tiling per params, filling every grid cell's
// ownership metadata. Only the tile(s) owned by (params.OwnRank, *) carry
// a live triple buffer after Build; all others are metadata-only
// placeholders, since a Tile's payload belongs to exactly one (rank,
// thread) pair (spec.md §3).
func Build(p BuildParams) (*Tiling, error) {
	if p.NRowGrps <= 0 || p.NColGrps <= 0 {
		return nil, fmt.Errorf("%w: Build nrowgrps=%d ncolgrps=%d", ErrTilingFailure, p.NRowGrps, p.NColGrps)
	}
	ntiles := p.NRowGrps * p.NColGrps
	switch p.Shape {
	case FeatureRankShape:
		if p.NRowGrps != p.NRanks || p.NColGrps != 1 {
			return nil, fmt.Errorf("%w: FeatureRankShape expects nrowgrps=nranks, ncolgrps=1", ErrTilingFailure)
		}
	case FeatureThreadShape:
		if p.NRowGrps != p.NRanks*p.NThreads || p.NColGrps != 1 {
			return nil, fmt.Errorf("%w: FeatureThreadShape expects nrowgrps=nranks*nthreads, ncolgrps=1", ErrTilingFailure)
		}
	case LayerColShape:
		if p.NRowGrps != 1 || p.NColGrps != p.NThreads {
			return nil, fmt.Errorf("%w: LayerColShape expects nrowgrps=1, ncolgrps=nthreads", ErrTilingFailure)
		}
	case LayerReplicatedShape:
		if p.NRowGrps != 1 || p.NColGrps != 1 {
			return nil, fmt.Errorf("%w: LayerReplicatedShape expects a single 1x1 tile", ErrTilingFailure)
		}
	default:
		return nil, fmt.Errorf("%w: unknown tiling shape %d", ErrTilingFailure, p.Shape)
	}

	t := &Tiling{
		NRowGrps: p.NRowGrps,
		NColGrps: p.NColGrps,
		NRanks:   p.NRanks,
		NThreads: p.NThreads,
		Shape:    p.Shape,
	}
	t.RowBounds = evenBounds(p.NRows, p.NRowGrps)
	t.ColBounds = evenBounds(p.NCols, p.NColGrps)

	// Diagonal uniqueness check (spec.md §4.3): when ntiles == nranks^2,
	// no rank may appear twice on the main diagonal.
	if ntiles == p.NRanks*p.NRanks {
		seen := make(map[int]bool)
		for d := 0; d < p.NRanks; d++ {
			rank, _ := ownerOf(p, d, d)
			if seen[rank] {
				return nil, fmt.Errorf("%w: rank %d appears twice on tiling diagonal", ErrTilingFailure, rank)
			}
			seen[rank] = true
		}
	}

	t.Tiles = make([][]*Tile, p.NRowGrps)
	rowStart := 0
	for i := 0; i < p.NRowGrps; i++ {
		t.Tiles[i] = make([]*Tile, p.NColGrps)
		rowEnd := int(t.RowBounds[i])
		colStart := 0
		for j := 0; j < p.NColGrps; j++ {
			colEnd := int(t.ColBounds[j])
			rank, thread := ownerOf(p, i, j)
			t.Tiles[i][j] = &Tile{
				Rank: rank, Thread: thread,
				StartRow: rowStart, EndRow: rowEnd,
				StartCol: colStart, EndCol: colEnd,
			}
			colStart = colEnd
		}
		rowStart = rowEnd
	}
	return t, nil
}

// locate returns the row (row-major bounds) or column (col-major bounds)
// partition index owning value v, via binary search over bounds, the
// smallest k with v < bounds[k].
func locate(bounds []uint32, v uint32) int {
	lo, hi := 0, len(bounds)
	for lo < hi {
		mid := (lo + hi) / 2
		if v < bounds[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= len(bounds) {
		lo = len(bounds) - 1
	}
	return lo
}

// rowColOf returns the (i, j) grid position owning triple (r, c),
// depending on whether this Tiling partitions rows or columns.
func (t *Tiling) rowColOf(r, c uint32) (i, j int) {
	if t.NColGrps == 1 {
		return locate(t.RowBounds, r), 0
	}
	if t.NRowGrps == 1 {
		return 0, locate(t.ColBounds, c)
	}
	return locate(t.RowBounds, r), locate(t.ColBounds, c)
}

// IngestLocal places tr into the tile that contains it, regardless of
// that tile's owning rank; ownership is resolved later by Exchange. This
// mirrors every process independently reading the full input file before
// redistributing (spec.md §4.3, "Triple exchange").
func (t *Tiling) IngestLocal(tr Triple) {
	i, j := t.rowColOf(tr.Row, tr.Col)
	t.Tiles[i][j].Insert(tr)
}

// Exchange redistributes locally-ingested triples via comm so that every
// tile not owned by this rank is emptied, and every tile owned by this
// rank gains what peers sent it. Every rank is expected to have ingested
// the same stream, so each rank contributes only the triples at positions
// k of a tile with k % nranks == ownRank and the owner ends up with each
// triple exactly once; a per-rank replica (LayerColShape,
// LayerReplicatedShape) keeps its whole stream. It fails with
// ErrInvariantViolation if the global triple count changes across the
// exchange (the conservation check named in spec.md §4.3).
func (t *Tiling) Exchange(comm Comm, ownRank int) error {
	nshare, myShare := comm.Size(), ownRank
	if t.Shape == LayerColShape || t.Shape == LayerReplicatedShape {
		nshare, myShare = 1, 0
	}
	var sentTotal uint64
	dest := make(map[int][]Triple)
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			var share []Triple
			for k, tr := range tl.Triples {
				if k%nshare == myShare {
					share = append(share, tr)
				}
			}
			if tl.Rank == ownRank {
				tl.Triples = share
				continue
			}
			if _, ok := dest[tl.Rank]; !ok {
				dest[tl.Rank] = getTripleScratch(len(share))
			}
			dest[tl.Rank] = append(dest[tl.Rank], share...)
			sentTotal += uint64(len(share))
			tl.Triples = nil
		}
	}
	defer func() {
		for _, ts := range dest {
			putTripleScratch(ts)
		}
	}()
	localTotal := uint64(0)
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			if tl.Rank == ownRank {
				localTotal += uint64(len(tl.Triples))
			}
		}
	}

	received, err := comm.Exchange(dest)
	if err != nil {
		return err
	}
	for _, tr := range received {
		i, j := t.rowColOf(tr.Row, tr.Col)
		if t.Tiles[i][j].Rank != ownRank {
			return fmt.Errorf("%w: received triple for tile not owned by rank %d", ErrTilingFailure, ownRank)
		}
		t.Tiles[i][j].Insert(tr)
	}

	before := comm.AllReduceSum(sentTotal + localTotal)
	afterLocal := uint64(0)
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			if tl.Rank == ownRank {
				afterLocal += uint64(len(tl.Triples))
			}
		}
	}
	after := comm.AllReduceSum(afterLocal)
	if before != after {
		return fmt.Errorf("%w: triple conservation violated: before=%d after=%d", ErrInvariantViolation, before, after)
	}
	return nil
}

// PublishLoads exchanges every owned tile's edge count with all peers so
// every process ends up with a consistent NEdges for every tile in the
// grid (spec.md §4.3, "Tile load accounting").
func (t *Tiling) PublishLoads(comm Comm, ownRank int) {
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			var local uint64
			if tl.Rank == ownRank {
				local = uint64(len(tl.Triples))
				if tl.SpMat != nil {
					local = uint64(tl.SpMat.NNZ())
				}
			}
			tl.NEdges = comm.AllReduceSum(local)
		}
	}
}

// CompressOwned compresses every tile owned by ownRank, building its CSC
// from its accumulated triple buffer.
func (t *Tiling) CompressOwned(ownRank int) error {
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			if tl.Rank != ownRank {
				continue
			}
			if err := tl.Compress(); err != nil {
				return err
			}
		}
	}
	return nil
}

// nnzHistogram builds a per-row (row-1D) or per-column (col-1D) nnz
// count over this tiling's locally-owned tiles, keyed by global row or
// column index, for the repartitioning algorithm of spec.md §4.3 step 1.
func (t *Tiling) nnzHistogram(ownRank int, total int) []uint64 {
	hist := make([]uint64, total)
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			tl := t.Tiles[i][j]
			if tl.Rank != ownRank || tl.SpMat == nil {
				continue
			}
			tl.SpMat.Walk(func(row, col int, w float64) {
				if t.NColGrps == 1 {
					hist[tl.StartRow+row]++
				} else {
					hist[tl.StartCol+col]++
				}
			})
		}
	}
	return hist
}

// Repartition implements the NNZ-balanced repartitioning of spec.md §4.3
// step 2-3: every rank all-reduces the full histogram one bucket at a
// time and then computes the same bounds itself, greedily closing a
// partition once the running sum exceeds balanced; no broadcast is
// needed. Callers are responsible for re-reading the input and
// re-ingesting/re-exchanging against the new bounds; Repartition itself
// only recomputes RowBounds/ColBounds and each tile's extents, and clears
// every tile's Triples and SpMat.
func (t *Tiling) Repartition(comm Comm, ownRank int, total int) error {
	local := t.nnzHistogram(ownRank, total)
	gathered := make([]uint64, total)
	for i := range local {
		gathered[i] = comm.AllReduceSum(local[i])
	}

	var grandTotal uint64
	for _, v := range gathered {
		grandTotal += v
	}
	ntiles := t.NRowGrps * t.NColGrps
	if ntiles == 0 {
		return fmt.Errorf("%w: Repartition on empty tiling", ErrTilingFailure)
	}
	balanced := grandTotal / uint64(ntiles)

	bounds := make([]uint32, 0, ntiles)
	var running uint64
	for idx := 0; idx < total; idx++ {
		running += gathered[idx]
		isLast := idx == total-1
		closeNow := running > balanced && len(bounds) < ntiles-1
		if closeNow || isLast {
			bounds = append(bounds, uint32(idx+1))
			running = 0
		}
	}
	for len(bounds) < ntiles {
		bounds = append(bounds, uint32(total))
	}

	if t.NColGrps == 1 {
		t.RowBounds = bounds
		rowStart := 0
		for i := 0; i < t.NRowGrps; i++ {
			rowEnd := int(bounds[i])
			t.Tiles[i][0].StartRow = rowStart
			t.Tiles[i][0].EndRow = rowEnd
			t.Tiles[i][0].Triples = nil
			t.Tiles[i][0].SpMat = nil
			rowStart = rowEnd
		}
	} else {
		t.ColBounds = bounds
		colStart := 0
		for j := 0; j < t.NColGrps; j++ {
			colEnd := int(bounds[j])
			t.Tiles[0][j].StartCol = colStart
			t.Tiles[0][j].EndCol = colEnd
			t.Tiles[0][j].Triples = nil
			t.Tiles[0][j].SpMat = nil
			colStart = colEnd
		}
	}
	return nil
}

// TotalEdges sums NEdges across every tile in the grid. Meaningful once
// PublishLoads has given every process a consistent view of every tile's
// load, feeding the nnz_ranks telemetry breakdown of net.hpp::printTimesExcel.
func (t *Tiling) TotalEdges() uint64 {
	var total uint64
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			total += t.Tiles[i][j].NEdges
		}
	}
	return total
}

// OwnedTiles returns every tile owned by ownRank, in row-major grid
// order, for iteration by callers that don't need the full grid.
func (t *Tiling) OwnedTiles(ownRank int) []*Tile {
	var out []*Tile
	for i := range t.Tiles {
		for j := range t.Tiles[i] {
			if t.Tiles[i][j].Rank == ownRank {
				out = append(out, t.Tiles[i][j])
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Thread < out[b].Thread })
	return out
}
