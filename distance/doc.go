// Package distance provides the metrics used to rank datastore keys against a query.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default, matches a flat L2 index)
//   - MetricDot: inner product, reported as its negation so that smaller still
//     means nearer
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricL2)
//	d := fn(query, key)
package distance
