package io

import (
	"fmt"
	"io"

	"github.com/dspgemm/dspgemm"
)

// Convert drains every triple from src and writes it to w in the given
// mode, as binary if toBinary is set and as text otherwise: the
// text<->binary converter named as an external collaborator in the
// engine's interface contract, used by `dspgemm convert` and by
// round-trip tests.
func Convert(src TripleSource, w io.Writer, toBinary bool, mode Mode) error {
	var triples []dspgemm.Triple
	for {
		tr, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		triples = append(triples, tr)
	}
	if toBinary {
		return WriteTriplesBinary(w, triples, mode)
	}
	return WriteTriplesText(w, triples, mode)
}

// NewSource builds a TripleSource over r for the given mode, choosing the
// text or binary reader.
func NewSource(r io.Reader, binaryFormat bool, mode Mode) (TripleSource, error) {
	switch mode {
	case Mode1, Mode2, Mode3:
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", dspgemm.ErrIoFailure, mode)
	}
	if binaryFormat {
		return NewBinaryTripleSource(r, mode), nil
	}
	return NewTextTripleSource(r, mode), nil
}
