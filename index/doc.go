// Package index provides nearest-neighbor indexes over the entries of a
// collection.
//
// Indexes never own vectors. They address entries by handle (the entry's
// position in its collection) and ask a Space for distances, so the same
// quantized codes back both the exact and the graph index.
//
// Two implementations exist:
//
//   - flat: exact linear scan, used for small collections
//   - hnsw: hierarchical navigable small-world graph, built incrementally
//
// Results are ordered by ascending distance. Equal distances are ordered by
// ascending handle, so among equidistant entries the one inserted first wins.
package index
