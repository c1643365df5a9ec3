// Package io provides the text and binary triple-stream codecs named as
// an external collaborator in the engine's input/output contract: the
// Graph Challenge Sparse DNN benchmark's tab/whitespace-separated text
// format and a packed little-endian binary format, each supporting
// 1/2/3-column records (row-only, row+col, row+col+weight).
package io

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dspgemm/dspgemm"
)

// Mode names how many columns a triple stream's records carry.
type Mode int

const (
	// Mode1 records carry only a row index; column is implicitly 0 and
	// weight implicitly 1.0 (used for category files treated as triples).
	Mode1 Mode = 1
	// Mode2 records carry row and column; weight is implicitly 1.0.
	Mode2 Mode = 2
	// Mode3 records carry row, column and weight.
	Mode3 Mode = 3
)

// TripleSource iterates a stream of triples one at a time. Next returns
// ok=false once the stream is exhausted, with err nil.
type TripleSource interface {
	Next() (tr dspgemm.Triple, ok bool, err error)
}

// TextTripleSource reads whitespace-separated text records, one per
// line, 1-based indices converted to 0-based on read.
type TextTripleSource struct {
	sc   *bufio.Scanner
	mode Mode
}

// NewTextTripleSource wraps r as a TextTripleSource in the given mode.
func NewTextTripleSource(r io.Reader, mode Mode) *TextTripleSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &TextTripleSource{sc: sc, mode: mode}
}

func (s *TextTripleSource) Next() (dspgemm.Triple, bool, error) {
	for s.sc.Scan() {
		line := strings.TrimSpace(s.sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		tr, err := parseFields(fields, s.mode)
		if err != nil {
			return dspgemm.Triple{}, false, fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
		return tr, true, nil
	}
	if err := s.sc.Err(); err != nil {
		return dspgemm.Triple{}, false, fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}
	return dspgemm.Triple{}, false, nil
}

func parseFields(fields []string, mode Mode) (dspgemm.Triple, error) {
	var row, col uint64
	weight := 1.0
	var err error

	switch mode {
	case Mode1:
		if len(fields) < 1 {
			return dspgemm.Triple{}, fmt.Errorf("expected 1 field, got %d", len(fields))
		}
		row, err = strconv.ParseUint(fields[0], 10, 32)
	case Mode2:
		if len(fields) < 2 {
			return dspgemm.Triple{}, fmt.Errorf("expected 2 fields, got %d", len(fields))
		}
		row, err = strconv.ParseUint(fields[0], 10, 32)
		if err == nil {
			col, err = strconv.ParseUint(fields[1], 10, 32)
		}
	case Mode3:
		if len(fields) < 3 {
			return dspgemm.Triple{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
		}
		row, err = strconv.ParseUint(fields[0], 10, 32)
		if err == nil {
			col, err = strconv.ParseUint(fields[1], 10, 32)
		}
		if err == nil {
			weight, err = strconv.ParseFloat(fields[2], 64)
		}
	default:
		return dspgemm.Triple{}, fmt.Errorf("unknown mode %d", mode)
	}
	if err != nil {
		return dspgemm.Triple{}, err
	}
	// Input files use 1-based indices; the engine's internal Triple is 0-based.
	if row == 0 {
		return dspgemm.Triple{}, fmt.Errorf("row index must be >= 1 (1-based input)")
	}
	r := uint32(row - 1)
	c := uint32(0)
	if mode != Mode1 {
		if col == 0 {
			return dspgemm.Triple{}, fmt.Errorf("column index must be >= 1 (1-based input)")
		}
		c = uint32(col - 1)
	}
	return dspgemm.NewTriple(r, c, weight), nil
}

// BinaryTripleSource reads packed little-endian records: mode 1 is a u32,
// mode 2 is two u32s, mode 3 is two u32s followed by an f64. No header.
type BinaryTripleSource struct {
	r    io.Reader
	mode Mode
	buf  [16]byte
}

// NewBinaryTripleSource wraps r as a BinaryTripleSource in the given mode.
func NewBinaryTripleSource(r io.Reader, mode Mode) *BinaryTripleSource {
	return &BinaryTripleSource{r: r, mode: mode}
}

func recordSize(mode Mode) int {
	switch mode {
	case Mode1:
		return 4
	case Mode2:
		return 8
	case Mode3:
		return 16
	default:
		return 0
	}
}

func (s *BinaryTripleSource) Next() (dspgemm.Triple, bool, error) {
	n := recordSize(s.mode)
	if n == 0 {
		return dspgemm.Triple{}, false, fmt.Errorf("%w: unknown mode %d", dspgemm.ErrIoFailure, s.mode)
	}
	_, err := io.ReadFull(s.r, s.buf[:n])
	if err == io.EOF {
		return dspgemm.Triple{}, false, nil
	}
	if err != nil {
		return dspgemm.Triple{}, false, fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}

	row := binary.LittleEndian.Uint32(s.buf[0:4])
	var col uint32
	weight := 1.0
	if s.mode == Mode2 || s.mode == Mode3 {
		col = binary.LittleEndian.Uint32(s.buf[4:8])
	}
	if s.mode == Mode3 {
		bits := binary.LittleEndian.Uint64(s.buf[8:16])
		weight = math.Float64frombits(bits)
	}
	if row == 0 {
		return dspgemm.Triple{}, false, fmt.Errorf("%w: row index must be >= 1 (1-based input)", dspgemm.ErrIoFailure)
	}
	r := row - 1
	c := uint32(0)
	if s.mode != Mode1 {
		if col == 0 {
			return dspgemm.Triple{}, false, fmt.Errorf("%w: column index must be >= 1 (1-based input)", dspgemm.ErrIoFailure)
		}
		c = col - 1
	}
	return dspgemm.NewTriple(r, c, weight), true, nil
}

// WriteTriplesText writes triples in the given mode to w, one per line,
// 0-based indices converted back to 1-based.
func WriteTriplesText(w io.Writer, triples []dspgemm.Triple, mode Mode) error {
	bw := bufio.NewWriter(w)
	for _, t := range triples {
		var line string
		switch mode {
		case Mode1:
			line = fmt.Sprintf("%d\n", t.Row+1)
		case Mode2:
			line = fmt.Sprintf("%d %d\n", t.Row+1, t.Col+1)
		case Mode3:
			line = fmt.Sprintf("%d %d %.17g\n", t.Row+1, t.Col+1, t.Weight)
		default:
			return fmt.Errorf("%w: unknown mode %d", dspgemm.ErrIoFailure, mode)
		}
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}
	return nil
}

// WriteTriplesBinary writes triples in the given mode to w as packed
// little-endian records, 0-based indices converted back to 1-based.
func WriteTriplesBinary(w io.Writer, triples []dspgemm.Triple, mode Mode) error {
	bw := bufio.NewWriter(w)
	var buf [16]byte
	n := recordSize(mode)
	if n == 0 {
		return fmt.Errorf("%w: unknown mode %d", dspgemm.ErrIoFailure, mode)
	}
	for _, t := range triples {
		binary.LittleEndian.PutUint32(buf[0:4], t.Row+1)
		if mode == Mode2 || mode == Mode3 {
			binary.LittleEndian.PutUint32(buf[4:8], t.Col+1)
		}
		if mode == Mode3 {
			binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(t.Weight))
		}
		if _, err := bw.Write(buf[:n]); err != nil {
			return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}
	return nil
}
