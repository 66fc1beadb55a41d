package testutil

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/tensor"
)

// SearchResult represents a search result.
type SearchResult struct {
	ID       int64
	Distance float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformMatrix generates a rows×cols matrix with values in range [-1, 1).
func (r *RNG) UniformMatrix(rows, cols int) *tensor.Matrix {
	m := tensor.New(rows, cols)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range m.Data {
		m.Data[i] = r.rand.Float32()*2 - 1
	}
	return m
}

// GaussianMatrix generates a rows×cols matrix of standard normal values.
func (r *RNG) GaussianMatrix(rows, cols int) *tensor.Matrix {
	m := tensor.New(rows, cols)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range m.Data {
		m.Data[i] = float32(r.rand.NormFloat64())
	}
	return m
}

// Tokens generates n token ids in [0, vocab).
func (r *RNG) Tokens(n, vocab int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(r.rand.Intn(vocab))
	}
	return out
}

// Distributions generates rows probability vectors of length cols.
// Every entry is strictly positive.
func (r *RNG) Distributions(rows, cols int) *tensor.Matrix {
	m := tensor.New(rows, cols)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		var sum float64
		for j := range row {
			row[j] = r.rand.Float32() + 1e-3
			sum += float64(row[j])
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
	return m
}

// Log returns a copy of m with the natural log applied element-wise.
func Log(m *tensor.Matrix) *tensor.Matrix {
	out := m.Clone()
	for i, v := range out.Data {
		out.Data[i] = float32(math.Log(float64(v)))
	}
	return out
}

// ComputeRecall computes recall@k by comparing approximate results against ground truth.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truthSet := make(map[int64]struct{}, k)
	for i := range k {
		truthSet[groundTruth[i].ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truthSet[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}

// BruteForceSearch performs exact search for ground truth.
// Ties are ordered by lower ID.
func BruteForceSearch(keys *tensor.Matrix, query []float32, k int, fn distance.Func) []SearchResult {
	results := make([]SearchResult, keys.Rows)
	for i := 0; i < keys.Rows; i++ {
		results[i] = SearchResult{ID: int64(i), Distance: fn(query, keys.Row(i))}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}
