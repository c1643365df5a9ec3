package io

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dspgemm/dspgemm"
)

// ReadCategories reads a ground-truth category vector: one u32 per row
// (0 or 1), as text lines or packed little-endian u32, mirroring the
// input triple formats' binary/text duality.
func ReadCategories(r io.Reader, binaryFormat bool) ([]uint32, error) {
	if binaryFormat {
		return readCategoriesBinary(r)
	}
	return readCategoriesText(r)
}

func readCategoriesText(r io.Reader) ([]uint32, error) {
	sc := bufio.NewScanner(r)
	var out []uint32
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing category line %q: %v", dspgemm.ErrIoFailure, line, err)
		}
		out = append(out, uint32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}
	return out, nil
}

func readCategoriesBinary(r io.Reader) ([]uint32, error) {
	var out []uint32
	var buf [4]byte
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
		out = append(out, binary.LittleEndian.Uint32(buf[:]))
	}
	return out, nil
}

// WriteCategories writes a category vector in text or binary form.
func WriteCategories(w io.Writer, cats []uint32, binaryFormat bool) error {
	if binaryFormat {
		bw := bufio.NewWriter(w)
		var buf [4]byte
		for _, c := range cats {
			binary.LittleEndian.PutUint32(buf[:], c)
			if _, err := bw.Write(buf[:]); err != nil {
				return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
			}
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
		return nil
	}
	bw := bufio.NewWriter(w)
	for _, c := range cats {
		if _, err := fmt.Fprintf(bw, "%d\n", c); err != nil {
			return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", dspgemm.ErrIoFailure, err)
	}
	return nil
}
