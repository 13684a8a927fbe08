// Package registration solves correspondence-based rigid registration of two
// unstructured 3-D point clouds: given a source set and a target set with
// arbitrary initial pose, heavy noise, and a majority of spurious candidate
// matches, it estimates a rigid transform (R, t) in SE(3) aligning source to
// target without any initial guess.
//
// The pipeline has four stages, run in order by Pipeline.Match/Estimate:
//
//   - Descriptor extraction (descriptor.go): per-point normal and a 33-bin
//     fast-PFH-style histogram, filtering degenerate neighborhoods.
//   - Correspondence search (correspondence.go): mutual nearest neighbor in
//     descriptor space plus an optional geometric tuple-consistency filter.
//   - Graph-theoretic outlier pruning (graph_prune.go): a compatibility graph
//     over candidate correspondences, pruned by max-k-core or max-clique.
//   - Robust SE(3) solving (solver.go): graduated non-convexity with a
//     truncated least squares loss for rotation (or a 2-DoF yaw-only
//     estimator when gravity is known), and componentwise adaptive voting
//     for translation.
package registration
