package dspgemm

import "fmt"

// spmmSymb is the symbolic phase of §4.4: it walks B's column stripe
// [startCol, endCol) through A, marking SPA[i] for every output row i
// that will receive a nonzero, then drains the SPA to a plain nnz count
// without touching C. SPA is guaranteed fully zeroed again on return.
//
// Precondition: A.ncols == B.nrows (the multiply's inner dimension);
// violation is fatal (ErrDimensionMismatch).
func spmmSymb(a, b *CSC, spa *DataBlock[float64], startCol, endCol int) (nnzLocal int, err error) {
	if a.ncols != b.nrows {
		return 0, fmt.Errorf("%w: spmm_symb A is %dx%d, B is %dx%d", ErrDimensionMismatch, a.nrows, a.ncols, b.nrows, b.ncols)
	}
	bja, bia := b.JA.Raw(), b.IA.Raw()
	aja, aia := a.JA.Raw(), a.IA.Raw()
	s := spa.Raw()

	for j := startCol; j < endCol; j++ {
		for k := int(bja[j]); k < int(bja[j+1]); k++ {
			l := int(bia[k])
			for n := int(aja[l]); n < int(aja[l+1]); n++ {
				s[aia[n]] = 1
			}
		}
		for i := range s {
			if s[i] != 0 {
				nnzLocal++
				s[i] = 0
			}
		}
	}
	return nnzLocal, nil
}

// spmmNumeric is the numeric phase of §4.4: it recomputes the same
// accumulation as spmmSymb but with real products, then drains each
// column of the SPA into C via PopulateColumnFromSPA, applying bias and
// ReLUCap and advancing the shared idxNNZ cursor. offCol lets the caller
// place C's output columns at an offset distinct from B's own column
// numbering (used when C spans a wider matrix than the thread's own
// stripe).
func spmmNumeric(a, b, c *CSC, spa *DataBlock[float64], bias float64, startCol, endCol, offCol int, idxNNZ *int) error {
	if a.ncols != b.nrows {
		return fmt.Errorf("%w: spmm_numeric A is %dx%d, B is %dx%d", ErrDimensionMismatch, a.nrows, a.ncols, b.nrows, b.ncols)
	}
	bja, bia, bv := b.JA.Raw(), b.IA.Raw(), b.A.Raw()
	aja, aia, av := a.JA.Raw(), a.IA.Raw(), a.A.Raw()
	s := spa.Raw()

	for j := startCol; j < endCol; j++ {
		for k := int(bja[j]); k < int(bja[j+1]); k++ {
			l := int(bia[k])
			weight := bv[k]
			for n := int(aja[l]); n < int(aja[l+1]); n++ {
				s[aia[n]] += weight * av[n]
			}
		}
		c.PopulateColumnFromSPA(spa, bias, offCol+j, idxNNZ, 32.0)
	}
	return nil
}

// adjust rebases a stripe of C's JA that was written from an idx_nnz
// origin of 0 to its globally correct position, by adding base. A base of
// 0 is a no-op. net.go's data x model loop does not call it: there each
// thread's numeric pass starts idx_nnz at its exclusive prefix-summed
// base, so its JA stripe is written already globally based.
//
// The loop starts at stripe.Start+1, not stripe.Start: JA[stripe.Start] is
// the neighboring (lower) thread's own JA[stripe.End] and was already
// rebased by that thread. Every thread's writes must stay confined to the
// half-open-from-the-left range (stripe.Start, stripe.End] it alone
// populated during the numeric pass, or two threads end up concurrently
// writing the shared boundary index.
func adjust(c *CSC, stripe ColStripe, base uint64) {
	if base == 0 {
		return
	}
	ja := c.JA.Raw()
	lo, hi := stripe.Start+1, stripe.End+1
	if hi > len(ja) {
		hi = len(ja)
	}
	for k := lo; k < hi; k++ {
		ja[k] += uint32(base)
	}
}

// ensureCapacity grows dst's IA/A blocks to hold at least total non-zeros
// and sets dst's nnz bookkeeping to total. It must be called once, by a
// single thread, before any repopulate call touches dst: DataBlock.Reallocate
// replaces the backing array outright when growing, which is not safe to
// call from more than one goroutine at a time on the same block.
func ensureCapacity(dst *CSC, total int) error {
	if dst.IA.Cap() < total {
		if err := dst.IA.Reallocate(total); err != nil {
			return err
		}
	}
	if dst.A.Cap() < total {
		if err := dst.A.Reallocate(total); err != nil {
			return err
		}
	}
	if dst.IA.Len() < total {
		dst.IA.SetLen(total)
	}
	if dst.A.Len() < total {
		dst.A.SetLen(total)
	}
	dst.nnz = total
	return nil
}

// repopulate copies C's column stripe (JA, IA, A) back into the
// corresponding stripe of dst in place, preserving the two-buffer toggle
// cost model of §2. Callers must have already grown dst to its final size
// via ensureCapacity; repopulate itself never reallocates, so every
// thread's call touches only the disjoint (stripe.Start, stripe.End] JA
// range and [start, end) IA/A range it alone is responsible for.
func repopulate(dst, c *CSC, stripe ColStripe) {
	cja, cia, cv := c.JA.Raw(), c.IA.Raw(), c.A.Raw()
	start := int(cja[stripe.Start])
	end := int(cja[stripe.End])

	dja := dst.JA.Raw()
	dia := dst.IA.Raw()
	dv := dst.A.Raw()
	for k := stripe.Start + 1; k <= stripe.End; k++ {
		dja[k] = cja[k]
	}
	copy(dia[start:end], cia[start:end])
	copy(dv[start:end], cv[start:end])
}
