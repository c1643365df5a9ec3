package io

import (
	"bytes"
	"testing"

	"github.com/dspgemm/dspgemm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextTripleSourceMode3(t *testing.T) {
	src := NewTextTripleSource(bytes.NewBufferString("1 1 0.5\n2 3 1.25\n"), Mode3)
	tr, ok, err := src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dspgemm.NewTriple(0, 0, 0.5), tr)

	tr, ok, err = src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dspgemm.NewTriple(1, 2, 1.25), tr)

	_, ok, err = src.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBinaryRoundTripMode3(t *testing.T) {
	triples := []dspgemm.Triple{
		dspgemm.NewTriple(0, 0, 1.5),
		dspgemm.NewTriple(4, 2, -3.25),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTriplesBinary(&buf, triples, Mode3))

	src := NewBinaryTripleSource(&buf, Mode3)
	var got []dspgemm.Triple
	for {
		tr, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, tr)
	}
	assert.Equal(t, triples, got)
}

func TestTextBinaryConvertRoundTrip(t *testing.T) {
	text := "1 1 2.0\n3 2 4.5\n"
	textSrc := NewTextTripleSource(bytes.NewBufferString(text), Mode3)

	var binBuf bytes.Buffer
	require.NoError(t, Convert(textSrc, &binBuf, true, Mode3))

	binSrc := NewBinaryTripleSource(&binBuf, Mode3)
	var textOut bytes.Buffer
	require.NoError(t, Convert(binSrc, &textOut, false, Mode3))

	assert.Equal(t, "1 1 2\n3 2 4.5\n", textOut.String())
}
