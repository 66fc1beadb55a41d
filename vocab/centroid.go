package vocab

import (
	"context"
	"fmt"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/internal/kmeans"
	"github.com/hupe1980/knnlm/tensor"
)

// CentroidConfig configures CentroidDistribution.
type CentroidConfig struct {
	// Clusters is the number of centroids, which becomes the pseudo size.
	Clusters int
	// MaxIter bounds the k-means iterations. Zero selects 25.
	MaxIter int
	Metric  distance.Metric
	Seed    int64
}

// CentroidDistribution clusters datastore keys and returns the
// cluster-to-token projection: row c holds the frequency of each token among
// the values of the keys assigned to centroid c, normalized to sum to 1.
// A centroid that ends up with no keys keeps an empty row.
func CentroidDistribution(ctx context.Context, keys *tensor.Matrix, values []int64, vocabSize int, cfg CentroidConfig) (*Sparse, error) {
	if keys.Rows != len(values) {
		return nil, fmt.Errorf("%w: %d keys, %d values", ErrInvalidProjection, keys.Rows, len(values))
	}
	for i, v := range values {
		if v < 0 || v >= int64(vocabSize) {
			return nil, fmt.Errorf("%w: value %d at %d outside vocabulary of %d", ErrInvalidProjection, v, i, vocabSize)
		}
	}

	res, err := kmeans.Train(ctx, keys, kmeans.Config{
		Clusters: cfg.Clusters,
		MaxIter:  cfg.MaxIter,
		Metric:   cfg.Metric,
		Seed:     cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	type cell struct{ cluster, word int }
	freq := make(map[cell]int)
	sizes := make([]int, cfg.Clusters)
	for i, c := range res.Assignments {
		freq[cell{c, int(values[i])}]++
		sizes[c]++
	}

	entries := make([]Entry, 0, len(freq))
	for k, n := range freq {
		entries = append(entries, Entry{
			Pseudo: k.cluster,
			Word:   k.word,
			Weight: float32(float64(n) / float64(sizes[k.cluster])),
		})
	}
	return NewSparse(cfg.Clusters, vocabSize, entries)
}
