// Package kmeans clusters datastore keys with Lloyd's algorithm.
//
// It backs the centroid-distribution projection in the vocab package: keys
// are grouped into centroids and every centroid becomes one pseudo-vocabulary
// entry.
package kmeans
