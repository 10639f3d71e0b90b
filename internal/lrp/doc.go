// Package lrp implements layer-wise relevance propagation for tensor
// primitives.
//
// The Engine decorates a numeric backend: forward calls compute the regular
// result through the wrapped backend and record a relevance rule on a tape.
// Relevance walks the tape in reverse, redistributing an output relevance
// seed to the inputs according to each rule. Rules that need forward values
// at propagation time keep a saved context, either pinning the live tensor
// (with a version check against later in-place writes) or snapshotting it
// before its storage is overwritten.
//
// Rules follow the AttnLRP formulation: element-wise and affine ops use the
// epsilon rule R_x = x * R_y / (y + eps), bilinear ops (matmul, baddbmm)
// split relevance equally between factors via R_y / (2y + eps), softmax uses
// the Taylor-at-x decomposition, and normalization layers pass relevance
// through unchanged.
package lrp
