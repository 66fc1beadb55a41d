package datastore

import (
	"context"

	"github.com/hupe1980/knnlm/tensor"
)

// Searcher finds the k nearest stored keys for a batch of queries.
type Searcher interface {
	// Dimension returns the key dimensionality.
	Dimension() int
	// Size returns the number of entries.
	Size() int
	// Search returns the k nearest entries for every query row,
	// ascending by distance.
	Search(ctx context.Context, queries *tensor.Matrix, k int) (*Neighbors, error)
}

// Neighbors is the result of a batch search, stored row-major: entry j of
// query i lives at index i*K+j.
type Neighbors struct {
	Queries   int
	K         int
	Distances []float32
	IDs       []int64 // entry indices
	Values    []int64 // value (token) ids of the entries
}

// NewNeighbors allocates a result for q queries of k neighbors each.
func NewNeighbors(q, k int) *Neighbors {
	return &Neighbors{
		Queries:   q,
		K:         k,
		Distances: make([]float32, q*k),
		IDs:       make([]int64, q*k),
		Values:    make([]int64, q*k),
	}
}

// Row returns the neighbors of query i as views into the result.
func (n *Neighbors) Row(i int) (dists []float32, ids, values []int64) {
	lo, hi := i*n.K, (i+1)*n.K
	return n.Distances[lo:hi:hi], n.IDs[lo:hi:hi], n.Values[lo:hi:hi]
}
