package dspgemm

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripleOrderings(t *testing.T) {
	ts := []Triple{
		NewTriple(2, 1, 1.0),
		NewTriple(0, 3, 2.0),
		NewTriple(0, 1, 3.0),
		NewTriple(1, 1, 4.0),
	}

	rowMajor := append([]Triple(nil), ts...)
	sort.Sort(ByRowMajor(rowMajor))
	require.Len(t, rowMajor, 4)
	for i := 1; i < len(rowMajor); i++ {
		assert.True(t, !LessRowMajor(rowMajor[i], rowMajor[i-1]))
	}
	assert.Equal(t, uint32(0), rowMajor[0].Row)
	assert.Equal(t, uint32(2), rowMajor[3].Row)

	colMajor := append([]Triple(nil), ts...)
	sort.Sort(ByColMajor(colMajor))
	for i := 1; i < len(colMajor); i++ {
		assert.True(t, !LessColMajor(colMajor[i], colMajor[i-1]))
	}
	assert.Equal(t, uint32(1), colMajor[0].Col)
	assert.Equal(t, uint32(3), colMajor[3].Col)
}
