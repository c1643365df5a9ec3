package dspgemm

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Telemetry is the §6 output line plus the original's per-layer
// breakdown (Env::time_ranks, nnz_ranks, nnz_mean_thread_ranks,
// nnz_std_dev_thread_ranks), recovered from net.hpp::printTimesExcel and
// computed with gonum/stat rather than hand-rolled mean/variance.
type Telemetry struct {
	ExecMean, ExecStd, ExecMin, ExecMax float64

	SpmmSymbMean    float64
	SpmmNumericMean float64
	ReallocMean     float64

	NNZMeanThread float64
	NNZStdThread  float64

	// NNZTotal is the global features-tiling edge count, published across
	// ranks by Tiling.PublishLoads (net.hpp's nnz_ranks).
	NNZTotal uint64

	Pass bool
}

func durationsToSeconds(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.Seconds()
	}
	return out
}

// Summarize derives a Telemetry snapshot from n's accumulated timing
// samples and the per-thread nnz counters currently published on Env.
func (n *Net) Summarize(pass bool) Telemetry {
	execSecs := durationsToSeconds(n.execTimes)
	symbSecs := durationsToSeconds(n.lastSymb)
	numericSecs := durationsToSeconds(n.lastNumeric)
	reallocSecs := durationsToSeconds(n.lastRealloc)

	t := Telemetry{Pass: pass}
	if len(execSecs) > 0 {
		t.ExecMean, t.ExecStd = stat.MeanStdDev(execSecs, nil)
		t.ExecMin, t.ExecMax = execSecs[0], execSecs[0]
		for _, v := range execSecs {
			if v < t.ExecMin {
				t.ExecMin = v
			}
			if v > t.ExecMax {
				t.ExecMax = v
			}
		}
	}
	if len(symbSecs) > 0 {
		t.SpmmSymbMean = stat.Mean(symbSecs, nil)
	}
	if len(numericSecs) > 0 {
		t.SpmmNumericMean = stat.Mean(numericSecs, nil)
	}
	if len(reallocSecs) > 0 {
		t.ReallocMean = stat.Mean(reallocSecs, nil)
	}

	nnz := make([]float64, n.Env.NThreads)
	for tid := 0; tid < n.Env.NThreads; tid++ {
		nnz[tid] = float64(n.Env.Counter(tid).OffsetNNZ)
	}
	if len(nnz) > 0 {
		t.NNZMeanThread, t.NNZStdThread = stat.MeanStdDev(nnz, nil)
	}
	if n.Features != nil {
		t.NNZTotal = n.Features.TotalEdges()
	}
	return t
}

// String renders the tab-separated telemetry line of spec.md §6.
func (t Telemetry) String() string {
	return fmt.Sprintf("%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%d\t%v",
		t.ExecMean, t.ExecStd, t.ExecMin, t.ExecMax,
		t.SpmmSymbMean, t.SpmmNumericMean, t.ReallocMean, t.NNZTotal, t.Pass)
}
