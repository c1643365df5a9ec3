package dspgemm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CSC is a compressed sparse column matrix: three DataBlocks, JA (column
// pointers, length ncols+1), IA (row indices, length nnz) and A (values,
// length nnz). Underlying capacity of each block may exceed nnz. A CSC is
// owned by exactly one Tile at a time; it implements gonum's mat.Matrix so
// it can be dropped into the wider numerical ecosystem for inspection and
// testing.
type CSC struct {
	nnz          int
	nrows, ncols int

	JA *DataBlock[uint32]
	IA *DataBlock[uint32]
	A  *DataBlock[float64]
}

var _ mat.Matrix = (*CSC)(nil)

// NewCSC constructs an empty CSC sized for up to capacity nonzeros over an
// nrows x ncols matrix. JA is always fully allocated to ncols+1 since its
// length is fixed by shape, not by nnz.
func NewCSC(capacity, nrows, ncols int) (*CSC, error) {
	if nrows < 0 || ncols < 0 || capacity < 0 {
		return nil, fmt.Errorf("%w: CSC(%d, %d, %d)", ErrAllocFailure, capacity, nrows, ncols)
	}
	ja, err := NewDataBlock[uint32](ncols+1, 0)
	if err != nil {
		return nil, err
	}
	ia, err := NewDataBlock[uint32](capacity, 0)
	if err != nil {
		return nil, err
	}
	a, err := NewDataBlock[float64](capacity, 0)
	if err != nil {
		return nil, err
	}
	ja.SetLen(ncols + 1)
	c := &CSC{nrows: nrows, ncols: ncols, JA: ja, IA: ia, A: a}
	return c, nil
}

// NNZ returns the number of stored (structurally) non-zero entries.
func (c *CSC) NNZ() int { return c.nnz }

// Dims implements mat.Matrix.
func (c *CSC) Dims() (r, col int) { return c.nrows, c.ncols }

// At implements mat.Matrix with an O(log nnz-in-column) binary search.
func (c *CSC) At(i, j int) float64 {
	if i < 0 || i >= c.nrows {
		panic(fmt.Sprintf("dspgemm: CSC row %d out of range [0,%d)", i, c.nrows))
	}
	if j < 0 || j >= c.ncols {
		panic(fmt.Sprintf("dspgemm: CSC col %d out of range [0,%d)", j, c.ncols))
	}
	ja := c.JA.Raw()
	ia := c.IA.Raw()
	a := c.A.Raw()
	lo, hi := int(ja[j]), int(ja[j+1])
	for lo < hi {
		mid := (lo + hi) / 2
		switch v := int(ia[mid]); {
		case v == i:
			return a[mid]
		case v < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0
}

// T implements mat.Matrix.
func (c *CSC) T() mat.Matrix { return mat.Transpose{Matrix: c} }

// PopulateFromTriples fills JA/IA/A from a column-major sorted stream of
// triples. Fails with ErrInvariantViolation if a duplicate (row, col) is
// seen or the stream is not column-major sorted.
func (c *CSC) PopulateFromTriples(triples []Triple, nrows, ncols int) error {
	nnz := len(triples)
	if err := c.Reallocate(nnz, nrows, ncols, nil); err != nil {
		return err
	}
	ja := c.JA.Raw()
	ia := c.IA.Raw()
	a := c.A.Raw()

	col := 0
	ja[0] = 0
	var prev Triple
	havePrev := false
	for k, t := range triples {
		if int(t.Col) >= ncols || int(t.Row) >= nrows {
			return fmt.Errorf("%w: triple (%d,%d) out of bounds for %dx%d", ErrInvariantViolation, t.Row, t.Col, nrows, ncols)
		}
		if havePrev {
			if t.Col < prev.Col || (t.Col == prev.Col && t.Row <= prev.Row) {
				return fmt.Errorf("%w: triples not column-major sorted or duplicate at index %d", ErrInvariantViolation, k)
			}
		}
		for int(t.Col) > col {
			col++
			ja[col] = uint32(k)
		}
		ia[k] = t.Row
		a[k] = t.Weight
		prev = t
		havePrev = true
	}
	for col < ncols {
		col++
		ja[col] = uint32(nnz)
	}
	c.nnz = nnz
	c.IA.SetLen(nnz)
	c.A.SetLen(nnz)
	return nil
}

// Reallocate resizes JA/IA/A for a new (nnz, nrows, ncols) shape. Prior
// contents are not preserved. If stripe is non-nil, only the JA entries in
// [stripe.Start, stripe.End] are zeroed (the thread's own column-pointer
// range, inclusive of the right edge it is responsible for writing);
// otherwise the whole JA block is zeroed. IA/A are never zeroed here: the
// numeric/symbolic kernels only ever read indices they themselves just
// wrote via idx_nnz bookkeeping.
func (c *CSC) Reallocate(newNNZ, nrows, ncols int, stripe *ColStripe) error {
	if newNNZ < 0 || nrows < 0 || ncols < 0 {
		return fmt.Errorf("%w: Reallocate(%d,%d,%d)", ErrAllocFailure, newNNZ, nrows, ncols)
	}
	c.nrows, c.ncols = nrows, ncols

	if err := c.JA.Reallocate(ncols + 1); err != nil {
		return err
	}
	c.JA.SetLen(ncols + 1)
	if stripe == nil {
		c.JA.ZeroRange(0, ncols+1)
	} else {
		lo, hi := stripe.Start, stripe.End+1
		if hi > ncols+1 {
			hi = ncols + 1
		}
		c.JA.ZeroRange(lo, hi)
	}

	if err := c.IA.Reallocate(newNNZ); err != nil {
		return err
	}
	if err := c.A.Reallocate(newNNZ); err != nil {
		return err
	}
	c.IA.SetLen(newNNZ)
	c.A.SetLen(newNNZ)
	c.nnz = newNNZ
	return nil
}

// ColStripe names a contiguous, inclusive-exclusive range of column indices
// [Start, End) a single thread is responsible for within a CSC or SPA.
type ColStripe struct {
	Start, End int
}

// ReLUCap applies min(max(x, 0), cap) — the fused activation of §4.2.
func ReLUCap(x, cap float64) float64 {
	if x < 0 {
		return 0
	}
	if x > cap {
		return cap
	}
	return x
}

// PopulateColumnFromSPA drains column j of the shared SPA into C, applying
// bias then ReLUCap, and zeroing each SPA slot as it is emitted. idxNNZ is
// the running write cursor into IA/A shared across all columns this thread
// populates; it is advanced in place. Emitted row indices within the
// column are strictly increasing because the SPA is walked in ascending
// row order.
func (c *CSC) PopulateColumnFromSPA(spa *DataBlock[float64], bias float64, j int, idxNNZ *int, cap float64) {
	s := spa.Raw()
	ia := c.IA.Raw()
	a := c.A.Raw()
	for i, v := range s {
		if v == 0 {
			continue
		}
		v = ReLUCap(v+bias, cap)
		s[i] = 0
		if v != 0 {
			ia[*idxNNZ] = uint32(i)
			a[*idxNNZ] = v
			*idxNNZ++
		}
	}
	c.JA.Raw()[j+1] = uint32(*idxNNZ)
}

// TripleIterFunc is invoked once per stored non-zero during Walk, in
// column-major order (ascending column, ascending row within column).
type TripleIterFunc func(row, col int, weight float64)

// Walk performs a read-only column-major iteration over all stored
// non-zeros, for tests and validation.
func (c *CSC) Walk(f TripleIterFunc) {
	ja := c.JA.Raw()
	ia := c.IA.Raw()
	a := c.A.Raw()
	for j := 0; j < c.ncols; j++ {
		for k := int(ja[j]); k < int(ja[j+1]); k++ {
			f(int(ia[k]), j, a[k])
		}
	}
}

// ToTriples materializes all stored non-zeros as a column-major sorted
// []Triple, the inverse of PopulateFromTriples.
func (c *CSC) ToTriples() []Triple {
	out := make([]Triple, 0, c.nnz)
	c.Walk(func(row, col int, w float64) {
		out = append(out, NewTriple(uint32(row), uint32(col), w))
	})
	return out
}

// Categories derives the §4.5 validation vector: category[i] = 1 iff row i
// has any stored non-zero.
func (c *CSC) Categories() []uint32 {
	cats := make([]uint32, c.nrows)
	c.Walk(func(row, col int, w float64) {
		cats[row] = 1
	})
	return cats
}
