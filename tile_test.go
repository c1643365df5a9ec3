package dspgemm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileContainsAndLocality(t *testing.T) {
	tl := &Tile{StartRow: 2, EndRow: 5, StartCol: 0, EndCol: 3}
	assert.True(t, tl.Contains(2, 0))
	assert.True(t, tl.Contains(4, 2))
	assert.False(t, tl.Contains(5, 0))
	assert.False(t, tl.Contains(1, 0))
	assert.Equal(t, 3, tl.Height())
	assert.Equal(t, 3, tl.Width())
}

func TestTileCompress(t *testing.T) {
	tl := &Tile{StartRow: 2, EndRow: 4, StartCol: 0, EndCol: 2}
	tl.Insert(NewTriple(2, 1, 5.0))
	tl.Insert(NewTriple(3, 0, 6.0))

	require.NoError(t, tl.Compress())
	require.NotNil(t, tl.SpMat)
	assert.Nil(t, tl.Triples)
	assert.Equal(t, uint64(2), tl.NEdges)
	assert.Equal(t, 5.0, tl.SpMat.At(0, 1))
	assert.Equal(t, 6.0, tl.SpMat.At(1, 0))
}
