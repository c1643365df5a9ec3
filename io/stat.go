package io

// FileStat summarizes a triple file's shape without fully materializing
// it into memory, mirroring IO::text_file_stat/IO::binary_file_stat in
// the original engine's net.hpp, used to size a Tiling before ingestion.
type FileStat struct {
	NNZ          int
	NRows, NCols int
}

// StatFile scans source once, recording the nnz count and the maximum
// row/col index seen (+1), without retaining the triples themselves.
func StatFile(source TripleSource) (FileStat, error) {
	var st FileStat
	for {
		tr, ok, err := source.Next()
		if err != nil {
			return FileStat{}, err
		}
		if !ok {
			break
		}
		st.NNZ++
		if int(tr.Row)+1 > st.NRows {
			st.NRows = int(tr.Row) + 1
		}
		if int(tr.Col)+1 > st.NCols {
			st.NCols = int(tr.Col) + 1
		}
	}
	return st, nil
}
