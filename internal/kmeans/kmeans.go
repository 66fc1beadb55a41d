package kmeans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/tensor"
)

// ErrTooFewPoints is returned when there are fewer points than clusters.
var ErrTooFewPoints = errors.New("kmeans: fewer points than clusters")

// Config controls training.
type Config struct {
	Clusters int
	MaxIter  int
	Metric   distance.Metric
	Seed     int64
}

// Result holds trained centroids and the final assignment of every point.
type Result struct {
	Centroids   *tensor.Matrix
	Assignments []int
	Iterations  int
}

// Train clusters the rows of points. The initial centroids are distinct rows
// drawn with cfg.Seed, so a fixed seed gives a fixed result.
func Train(ctx context.Context, points *tensor.Matrix, cfg Config) (*Result, error) {
	n, dim, k := points.Rows, points.Cols, cfg.Clusters
	if k <= 0 {
		return nil, fmt.Errorf("kmeans: clusters must be positive, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d points, %d clusters", ErrTooFewPoints, n, k)
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 25
	}

	distFunc, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // clustering, not crypto
	centroids := tensor.New(k, dim)
	for j, idx := range rng.Perm(n)[:k] {
		copy(centroids.Row(j), points.Row(idx))
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float64, k*dim)

	iter := 0
	for iter < cfg.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		changed := false
		for i := 0; i < n; i++ {
			best := nearest(points.Row(i), centroids, distFunc)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		clear(sums)
		clear(counts)
		for i := 0; i < n; i++ {
			c := assignments[i]
			counts[c]++
			for d, v := range points.Row(i) {
				sums[c*dim+d] += float64(v)
			}
		}

		for j := 0; j < k; j++ {
			row := centroids.Row(j)
			if counts[j] == 0 {
				// Empty cluster: restart from a random point.
				copy(row, points.Row(rng.Intn(n)))
				continue
			}
			inv := 1 / float64(counts[j])
			for d := range row {
				row[d] = float32(sums[j*dim+d] * inv)
			}
		}
	}

	return &Result{Centroids: centroids, Assignments: assignments, Iterations: iter}, nil
}

// Assign returns the index of the centroid nearest to vec.
func Assign(vec []float32, centroids *tensor.Matrix, metric distance.Metric) (int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	return nearest(vec, centroids, distFunc), nil
}

// nearest breaks ties toward the lower centroid index.
func nearest(vec []float32, centroids *tensor.Matrix, distFunc distance.Func) int {
	best := -1
	minDist := float32(math.Inf(1))
	for j := 0; j < centroids.Rows; j++ {
		if d := distFunc(vec, centroids.Row(j)); d < minDist || best < 0 {
			minDist = d
			best = j
		}
	}
	return best
}
