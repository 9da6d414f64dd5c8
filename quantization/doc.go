// Package quantization maps float32 vectors to fixed-width byte codes.
//
// ScalarQuantizer splits a code of CodeSize bytes evenly across the
// vector's components. With b = CodeSize*8/Dimension bits per component:
//
//   - b in {1, 2, 4, 8, 16}: each component is clamped to [lo, hi], mapped
//     linearly onto the integer levels [0, 2^b-1], rounded to nearest and
//     packed MSB-first.
//   - b == 32: components are stored as raw little-endian IEEE-754 bits.
//
// A 128-dimensional vector in a 32-byte code therefore uses 2 bits per
// component:
//
//	q, err := quantization.NewScalarQuantizer(128, 32, -1, 1)
//	code, err := q.Encode(vec)       // 32 bytes
//	d := q.Distance(distance.MetricL2, query, code)
//
// The quantizer has no training step. Identical parameters always produce
// identical codes, so codes written by one process decode identically in
// another.
package quantization
