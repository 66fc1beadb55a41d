package knn

import (
	"context"
	"fmt"

	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/tensor"
)

// Retrieval is the outcome of Retriever.Retrieve.
type Retrieval struct {
	// LogProbs holds one retrieval log-probability per query row.
	// Rows that were not searched hold MaskBias.
	LogProbs []float32
	// Neighbors holds the search result of the searched rows only.
	Neighbors *datastore.Neighbors
	// Rows maps neighbor row i to its query row.
	Rows []int
	// Hits reports per query row whether the target was among the neighbors.
	Hits []bool
}

// Retriever searches a datastore and scores the neighbors against targets.
type Retriever struct {
	store datastore.Searcher
	k     int
	temp  float32
}

// NewRetriever creates a Retriever that asks store for k neighbors and
// converts distances with temperature temp.
func NewRetriever(store datastore.Searcher, k int, temp float32) (*Retriever, error) {
	if k <= 0 {
		return nil, datastore.ErrInvalidK
	}
	if k > store.Size() {
		return nil, &datastore.ErrCapacityExceeded{K: k, Size: store.Size()}
	}
	if err := ValidateTemperature(temp); err != nil {
		return nil, err
	}
	return &Retriever{store: store, k: k, temp: temp}, nil
}

// K returns the number of neighbors per query.
func (r *Retriever) K() int { return r.k }

// Temperature returns the distance temperature.
func (r *Retriever) Temperature() float32 { return r.temp }

// Retrieve scores queries against targets. valid may be nil, meaning every
// row is searched; otherwise only rows with valid[i] set are searched and the
// others receive MaskBias.
func (r *Retriever) Retrieve(ctx context.Context, queries *tensor.Matrix, targets []int64, valid []bool) (*Retrieval, error) {
	if queries.Rows != len(targets) || (valid != nil && len(valid) != len(targets)) {
		return nil, fmt.Errorf("%w: %d queries, %d targets, %d valid flags", ErrLengthMismatch, queries.Rows, len(targets), len(valid))
	}

	out := &Retrieval{
		LogProbs: make([]float32, queries.Rows),
		Hits:     make([]bool, queries.Rows),
	}

	sub, subTargets := queries, targets
	if valid != nil {
		for i, ok := range valid {
			if ok {
				out.Rows = append(out.Rows, i)
			} else {
				out.LogProbs[i] = MaskBias
			}
		}
		if len(out.Rows) != queries.Rows {
			sub = queries.SelectRows(out.Rows)
			subTargets = make([]int64, len(out.Rows))
			for j, i := range out.Rows {
				subTargets[j] = targets[i]
			}
		}
	} else {
		out.Rows = make([]int, queries.Rows)
		for i := range out.Rows {
			out.Rows[i] = i
		}
	}

	if sub.Rows == 0 {
		out.Neighbors = datastore.NewNeighbors(0, r.k)
		return out, nil
	}

	nb, err := r.store.Search(ctx, sub, r.k)
	if err != nil {
		return nil, err
	}
	out.Neighbors = nb

	scores := make([]float32, sub.Rows)
	if err := Score(scores, nb.Distances, nb.Values, r.k, subTargets, r.temp); err != nil {
		return nil, err
	}
	for j, i := range out.Rows {
		out.LogProbs[i] = scores[j]
		_, _, values := nb.Row(j)
		for _, v := range values {
			if v == subTargets[j] {
				out.Hits[i] = true
				break
			}
		}
	}
	return out, nil
}
