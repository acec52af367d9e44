// Package fista solves the L1 (or sparse-group) regularized least-squares
// problem
//
//	minimize 0.5*||y - Hx||^2 + lambda*P(x)
//
// with the fast iterative shrinkage-thresholding algorithm. The monotone
// variant (the default) keeps the objective non-increasing across
// iterations. SolvePath traces a warm-started regularization path over a
// decreasing lambda sequence.
package fista
