// Package pipeline fans voxel series out to a fixed pool of workers that
// share one read-only estimator, and hands every per-voxel outcome to a
// caller-supplied visitor. A failing voxel becomes a failure record and never
// stops its siblings; cancellation is honoured between voxels.
package pipeline
