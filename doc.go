/*
Package dspgemm implements the distributed, multi-threaded sparse
matrix-sparse matrix multiplication (SpGEMM) engine that drives
inference for the Graph Challenge Sparse DNN benchmark.

Given an input feature matrix Y0 of shape n x f (n samples, f neurons),
a bias vector per layer, and L layer weight matrices W_l of shape f x f,
the engine computes

	Y_{l+1} = ReLU_cap(Y_l . W_l + b_l)

for l = 0 .. L-1, where ReLU_cap(x) = min(max(x, 0), 32). After the last
layer, a row with any nonzero value identifies a positively classified
sample; the resulting category vector is compared against ground truth.

The package is organised bottom-up, following its own dependency order:

  - Triple: the canonical (row, col, weight) record.
  - DataBlock: a growable buffer carrying socket placement metadata (Go
    gives no alignment or NUMA pinning guarantee for it).
  - CSC: a compressed sparse column matrix built from DataBlocks.
  - Tile: a rectangular submatrix owned by one (rank, thread) pair.
  - Tiling: the grid of Tiles covering a whole matrix, with ownership,
    triple exchange and nnz-balanced repartitioning.
  - spmmSymb / spmmNumeric: the two-phase SpGEMM kernel.
  - Environment / ThreadBarrier / Comm: process and thread coordination.
  - Net: the end-to-end execution loop.

Subpackages io and topology hold the external collaborators the core
consumes through narrow interfaces: triple/category file codecs and
thread/socket affinity, respectively.
*/
package dspgemm
