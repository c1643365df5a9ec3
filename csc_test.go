package dspgemm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSCPopulateFromTriples(t *testing.T) {
	// 2x2 identity, column-major: (0,0,1), (1,1,1)
	triples := []Triple{
		NewTriple(0, 0, 1.0),
		NewTriple(1, 1, 1.0),
	}
	c, err := NewCSC(0, 2, 2)
	require.NoError(t, err)
	require.NoError(t, c.PopulateFromTriples(triples, 2, 2))

	assert.Equal(t, 2, c.NNZ())
	assert.Equal(t, uint32(0), c.JA.Raw()[0])
	assert.Equal(t, uint32(2), c.JA.Raw()[2])
	assert.Equal(t, 1.0, c.At(0, 0))
	assert.Equal(t, 1.0, c.At(1, 1))
	assert.Equal(t, 0.0, c.At(0, 1))
}

func TestCSCPopulateFromTriples_DuplicateFails(t *testing.T) {
	triples := []Triple{
		NewTriple(0, 0, 1.0),
		NewTriple(0, 0, 2.0),
	}
	c, err := NewCSC(0, 1, 1)
	require.NoError(t, err)
	err = c.PopulateFromTriples(triples, 1, 1)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestCSCPopulateFromTriples_UnsortedFails(t *testing.T) {
	triples := []Triple{
		NewTriple(0, 1, 1.0),
		NewTriple(0, 0, 2.0),
	}
	c, err := NewCSC(0, 2, 2)
	require.NoError(t, err)
	err = c.PopulateFromTriples(triples, 2, 2)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestCSCReallocateKeepsCapacity(t *testing.T) {
	c, err := NewCSC(10, 2, 2)
	require.NoError(t, err)
	require.NoError(t, c.Reallocate(4, 2, 2, nil))
	assert.Equal(t, 4, c.NNZ())
	assert.Equal(t, 10, c.IA.Cap())
}

func TestCSCReallocateGrows(t *testing.T) {
	c, err := NewCSC(2, 2, 2)
	require.NoError(t, err)
	require.NoError(t, c.Reallocate(8, 2, 2, nil))
	assert.Equal(t, 8, c.NNZ())
	assert.Equal(t, 8, c.IA.Cap())
}

func TestCSCPopulateColumnFromSPA_CapBoundary(t *testing.T) {
	c, err := NewCSC(1, 1, 1)
	require.NoError(t, err)
	c.JA.SetLen(2)
	spa, err := NewDataBlock[float64](1, 0)
	require.NoError(t, err)
	spa.SetLen(1)
	spa.Raw()[0] = 100.0 // A=[[1]] W=[[100]] -> accumulated value 100

	idx := 0
	c.PopulateColumnFromSPA(spa, 0, 0, &idx, 32.0)
	require.Equal(t, 1, idx)
	assert.Equal(t, 32.0, c.A.Raw()[0])
	assert.Equal(t, 0.0, spa.Raw()[0], "SPA slot must be zeroed after drain")
}

func TestCSCPopulateColumnFromSPA_BiasKillsValue(t *testing.T) {
	c, err := NewCSC(1, 1, 1)
	require.NoError(t, err)
	c.JA.SetLen(2)
	spa, err := NewDataBlock[float64](1, 0)
	require.NoError(t, err)
	spa.SetLen(1)
	spa.Raw()[0] = 0.2

	idx := 0
	c.PopulateColumnFromSPA(spa, -0.3, 0, &idx, 32.0)
	assert.Equal(t, 0, idx, "value clipped to zero by bias must not be emitted")
}

func TestCSCRoundTripTriples(t *testing.T) {
	triples := []Triple{
		NewTriple(0, 0, 1.5),
		NewTriple(2, 0, 2.5),
		NewTriple(1, 1, 3.5),
	}
	c, err := NewCSC(0, 3, 2)
	require.NoError(t, err)
	require.NoError(t, c.PopulateFromTriples(triples, 3, 2))
	assert.ElementsMatch(t, triples, c.ToTriples())
}

func TestCSCCategories(t *testing.T) {
	triples := []Triple{
		NewTriple(0, 0, 1.0),
		NewTriple(0, 1, 1.0),
	}
	c, err := NewCSC(0, 3, 2)
	require.NoError(t, err)
	require.NoError(t, c.PopulateFromTriples(triples, 3, 2))
	assert.Equal(t, []uint32{1, 0, 0}, c.Categories())
}
