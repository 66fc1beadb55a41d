// Package pool provides reusable scratch state for exact datastore scans.
// A sweep issues the same shape of search for every batch and temperature,
// so the per-query heaps are recycled through a sync.Pool.
package pool

import (
	"sync"

	"github.com/hupe1980/knnlm/internal/queue"
)

// MaxPooledHeaps bounds the heaps a context keeps when it is returned.
const MaxPooledHeaps = 4096

// ScanContext holds one worker's heaps and key decode buffer.
type ScanContext struct {
	Heaps []*queue.TopK
	Buf   []float32
}

var scanContextPool = sync.Pool{
	New: func() any {
		return &ScanContext{}
	},
}

// Get returns a context with n empty heaps of capacity k and a decode
// buffer of length dim.
func Get(n, k, dim int) *ScanContext {
	sc := scanContextPool.Get().(*ScanContext)
	sc.Reset(n, k, dim)
	return sc
}

// Put returns sc to the pool.
func Put(sc *ScanContext) {
	if len(sc.Heaps) > MaxPooledHeaps {
		sc.Heaps = sc.Heaps[:MaxPooledHeaps]
	}
	scanContextPool.Put(sc)
}

// Reset resizes sc for n queries and empties every heap.
func (sc *ScanContext) Reset(n, k, dim int) {
	for len(sc.Heaps) < n {
		sc.Heaps = append(sc.Heaps, queue.NewTopK(k))
	}
	sc.Heaps = sc.Heaps[:n]
	for _, h := range sc.Heaps {
		h.Reset(k)
	}

	if cap(sc.Buf) < dim {
		sc.Buf = make([]float32, dim)
	}
	sc.Buf = sc.Buf[:dim]
}
