package dspgemm

import "sort"

// Tile is a rectangular submatrix descriptor owned by exactly one (rank,
// thread) pair. Before compression it holds a triple buffer; afterwards it
// holds a CSC. The two payloads are mutually exclusive (per §3, a Tile's
// Triples are discarded once Compress populates SpMat).
type Tile struct {
	Rank   int
	Thread int

	StartRow, EndRow int
	StartCol, EndCol int

	Triples []Triple
	SpMat   *CSC

	// NEdges is the published edge count for this tile, set either while
	// ingesting locally or via Tiling.PublishLoads so every process holds
	// a consistent view of every tile's load.
	NEdges uint64
}

// Height returns EndRow - StartRow.
func (t *Tile) Height() int { return t.EndRow - t.StartRow }

// Width returns EndCol - StartCol.
func (t *Tile) Width() int { return t.EndCol - t.StartCol }

// Contains reports whether (row, col) falls within this tile's extents,
// the locality invariant P4 of §8.
func (t *Tile) Contains(row, col uint32) bool {
	r, c := int(row), int(col)
	return t.StartRow <= r && r < t.EndRow && t.StartCol <= c && c < t.EndCol
}

// Insert appends a triple to this tile's pre-compression buffer.
func (t *Tile) Insert(tr Triple) {
	t.Triples = append(t.Triples, tr)
}

// Compress builds this tile's CSC from its accumulated triples, sorted
// column-major, and discards the triple buffer. The CSC's (nrows, ncols)
// are the tile's own Height/Width, not the global matrix shape, since a
// CSC's coordinates are tile-local.
func (t *Tile) Compress() error {
	sorted := getTripleScratch(len(t.Triples))
	sorted = append(sorted, t.Triples...)
	sort.Sort(ByColMajor(sorted))

	localized := make([]Triple, len(sorted))
	for i, tr := range sorted {
		localized[i] = NewTriple(tr.Row-uint32(t.StartRow), tr.Col-uint32(t.StartCol), tr.Weight)
	}
	putTripleScratch(sorted)

	c, err := NewCSC(len(localized), t.Height(), t.Width())
	if err != nil {
		return err
	}
	if err := c.PopulateFromTriples(localized, t.Height(), t.Width()); err != nil {
		return err
	}
	t.SpMat = c
	t.Triples = nil
	t.NEdges = uint64(len(localized))
	return nil
}
