// Package queue provides the bounded priority queue used for exact top-k selection.
package queue

// Item is a candidate entry with its distance to the query.
type Item struct {
	ID       int64   // Datastore entry index.
	Distance float32 // Smaller is nearer.
}

// worse reports whether a ranks after b: larger distance, ties broken by larger ID.
func worse(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

// TopK keeps the k nearest items seen so far.
//
// It is a max-heap on (Distance, ID): the root is the current worst of the
// kept items, so a new candidate only costs a comparison unless it improves
// the result set. A TopK is not safe for concurrent use; reuse one per worker
// through Reset.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a queue keeping at most k items.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of kept items.
func (q *TopK) Len() int { return len(q.items) }

// Reset clears the queue for reuse with capacity k.
func (q *TopK) Reset(k int) {
	q.k = k
	if cap(q.items) < k {
		q.items = make([]Item, 0, k)
	}
	q.items = q.items[:0]
}

// Worst returns the current worst kept item.
func (q *TopK) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Push offers a candidate. It reports whether the candidate was kept.
func (q *TopK) Push(id int64, dist float32) bool {
	it := Item{ID: id, Distance: dist}
	if len(q.items) < q.k {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if q.k == 0 || !worse(q.items[0], it) {
		return false
	}
	q.items[0] = it
	q.siftDown(0)
	return true
}

// Drain writes the kept items in ascending order (nearest first) into
// dists and ids, which must hold at least Len() elements, and empties the queue.
func (q *TopK) Drain(dists []float32, ids []int64) int {
	n := len(q.items)
	for i := n - 1; i >= 0; i-- {
		it := q.pop()
		dists[i] = it.Distance
		ids[i] = it.ID
	}
	return n
}

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return root
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(q.items[i], q.items[p]) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		top := l
		if r := l + 1; r < n && worse(q.items[r], q.items[l]) {
			top = r
		}
		if !worse(q.items[top], q.items[i]) {
			return
		}
		q.items[i], q.items[top] = q.items[top], q.items[i]
		i = top
	}
}
