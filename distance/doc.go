// Package distance provides the vector distance functions used by search.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricCosine: cosine distance, 1 - cos(a, b)
//   - MetricDot: negated inner product
//
// Every metric is a distance: smaller means closer, so results from any
// metric are ordered ascending.
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricCosine)
//	d := fn(a, b)
package distance
