// Package criterion selects the operating point of a sparse regularization
// path and computes fixed regularization strengths from a noise estimate.
//
// Path selectors implement Selector and are chosen by name with Parse:
//
//   - "factor": largest lambda whose rms residual is within Factor*sigma of
//     the smallest rms residual on the path
//   - "bic", "aic": minimum information criterion, ties to the sparsest entry
//   - "knee": point of maximum distance below the residual-sparsity chord
//
// Fixed-lambda rules (Rule) derive lambda from the wavelet noise estimate
// returned by NoiseEstimate.
package criterion
