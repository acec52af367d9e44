// Package core holds the types shared by the SPFM solvers: the error
// taxonomy, the regularization path representation, per-voxel diagnostics,
// acquisition settings and a handful of numeric helpers.
//
// # Errors
//
// Every failure returned by the spfm packages wraps one of three sentinels:
//
//   - [ErrConfiguration]: invalid shapes or parameters, raised before any solve
//   - [ErrNumerical]: non-finite input or unrecoverable rank deficiency
//   - [ErrSelection]: empty or degenerate solution path
//
// Callers test for them with errors.Is.
//
// # Paths
//
// A [Path] is an ordered list of [Entry] values, one per regularization
// strength, ordered by decreasing lambda. FISTA and LARS both produce paths so
// that criterion selection and debiasing can treat them uniformly.
package core
