package scorer

import "iter"

// Mode is the slicing strategy of one model call.
type Mode int

const (
	// SingleShot processes all positions in one slice.
	SingleShot Mode = iota
	// Chunked processes fixed-size slices of the flattened positions.
	Chunked
)

func (m Mode) String() string {
	if m == Chunked {
		return "chunked"
	}
	return "single_shot"
}

// ModeFor selects the mode for n flat positions under a slice limit.
// A limit of 0 means unlimited.
func ModeFor(n, softmaxBatch int) Mode {
	if softmaxBatch <= 0 || n < softmaxBatch {
		return SingleShot
	}
	return Chunked
}

// Slices yields the [start, end) ranges of the flat positions for mode m.
func (m Mode) Slices(n, softmaxBatch int) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		if m == SingleShot {
			yield(0, n)
			return
		}
		for s := 0; s < n; s += softmaxBatch {
			if !yield(s, min(s+softmaxBatch, n)) {
				return
			}
		}
	}
}
