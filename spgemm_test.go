package dspgemm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCSC(t *testing.T, triples []Triple, nrows, ncols int) *CSC {
	t.Helper()
	c, err := NewCSC(len(triples), nrows, ncols)
	require.NoError(t, err)
	require.NoError(t, c.PopulateFromTriples(triples, nrows, ncols))
	return c
}

func TestSpmmSymbAndNumericIdentity(t *testing.T) {
	// A = I2, W = I2, bias 0 -> Y = I2
	a := buildCSC(t, []Triple{NewTriple(0, 0, 1), NewTriple(1, 1, 1)}, 2, 2)
	w := buildCSC(t, []Triple{NewTriple(0, 0, 1), NewTriple(1, 1, 1)}, 2, 2)

	spa, err := NewDataBlock[float64](2, 0)
	require.NoError(t, err)
	spa.SetLen(2)

	nnz, err := spmmSymb(a, w, spa, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, nnz)
	for _, v := range spa.Raw() {
		assert.Equal(t, 0.0, v, "SPA must be fully zeroed after spmm_symb (P2)")
	}

	c, err := NewCSC(nnz, 2, 2)
	require.NoError(t, err)
	idx := 0
	require.NoError(t, spmmNumeric(a, w, c, spa, 0, 0, 2, 0, &idx))
	assert.Equal(t, 2, idx)
	for _, v := range spa.Raw() {
		assert.Equal(t, 0.0, v, "SPA must be fully zeroed after spmm_numeric (P2)")
	}
	assert.Equal(t, 1.0, c.At(0, 0))
	assert.Equal(t, 1.0, c.At(1, 1))
	assert.Equal(t, []uint32{1, 1}, c.Categories())
}

func TestSpmmDimensionMismatch(t *testing.T) {
	a := buildCSC(t, []Triple{NewTriple(0, 0, 1)}, 1, 2)
	w := buildCSC(t, []Triple{NewTriple(0, 0, 1)}, 1, 1)
	spa, err := NewDataBlock[float64](1, 0)
	require.NoError(t, err)
	spa.SetLen(1)
	_, err = spmmSymb(a, w, spa, 0, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSpmmEmptyColumnProducesNoWrites(t *testing.T) {
	// W's column 0 has no nonzeros -> no SPA writes, no output nonzeros.
	a := buildCSC(t, []Triple{NewTriple(0, 0, 1)}, 1, 1)
	w, err := NewCSC(0, 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.PopulateFromTriples(nil, 1, 1))

	spa, err := NewDataBlock[float64](1, 0)
	require.NoError(t, err)
	spa.SetLen(1)

	nnz, err := spmmSymb(a, w, spa, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, nnz)
}

func TestAdjustRebasesStripe(t *testing.T) {
	c, err := NewCSC(4, 4, 4)
	require.NoError(t, err)
	ja := c.JA.Raw()
	// stripe (2,4]: locally based at 0,1,2; ja[2] belongs to the
	// neighboring thread's stripe and must be left untouched.
	ja[2], ja[3], ja[4] = 0, 1, 2
	adjust(c, ColStripe{Start: 2, End: 4}, 10)
	assert.Equal(t, []uint32{0, 11, 12}, []uint32{ja[2], ja[3], ja[4]})
}

func TestRepopulateCopiesStripeInPlace(t *testing.T) {
	c := buildCSC(t, []Triple{NewTriple(0, 0, 1), NewTriple(1, 1, 2)}, 2, 2)
	dst, err := NewCSC(2, 2, 2)
	require.NoError(t, err)
	require.NoError(t, ensureCapacity(dst, 2))
	repopulate(dst, c, ColStripe{Start: 0, End: 2})
	assert.Equal(t, 1.0, dst.At(0, 0))
	assert.Equal(t, 2.0, dst.At(1, 1))
}
