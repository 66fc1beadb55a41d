package vocab

import (
	"fmt"
	"io"
	"slices"

	"github.com/hupe1980/knnlm/codec"
	"github.com/hupe1980/knnlm/tensor"
)

var _ Projector = (*Sparse)(nil)

// Entry is one non-zero coefficient of a projection.
type Entry struct {
	Pseudo int     `json:"pseudo"`
	Word   int     `json:"word"`
	Weight float32 `json:"weight"`
}

// Sparse is a projection in compressed sparse row form over pseudo entries.
type Sparse struct {
	pseudo, vocab int
	rowPtr        []int
	cols          []int
	vals          []float32
}

// NewSparse builds a projection from coordinate entries. Duplicate
// coordinates are summed.
func NewSparse(pseudoSize, vocabSize int, entries []Entry) (*Sparse, error) {
	if pseudoSize <= 0 || vocabSize <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidProjection, pseudoSize, vocabSize)
	}
	sorted := slices.Clone(entries)
	for _, e := range sorted {
		if e.Pseudo < 0 || e.Pseudo >= pseudoSize || e.Word < 0 || e.Word >= vocabSize {
			return nil, fmt.Errorf("%w: entry (%d, %d) outside %dx%d", ErrInvalidProjection, e.Pseudo, e.Word, pseudoSize, vocabSize)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		if a.Pseudo != b.Pseudo {
			return a.Pseudo - b.Pseudo
		}
		return a.Word - b.Word
	})

	s := &Sparse{pseudo: pseudoSize, vocab: vocabSize, rowPtr: make([]int, pseudoSize+1)}
	prev := Entry{Pseudo: -1}
	for _, e := range sorted {
		if e.Pseudo == prev.Pseudo && e.Word == prev.Word {
			s.vals[len(s.vals)-1] += e.Weight
			continue
		}
		s.cols = append(s.cols, e.Word)
		s.vals = append(s.vals, e.Weight)
		s.rowPtr[e.Pseudo+1]++
		prev = e
	}
	for p := 0; p < pseudoSize; p++ {
		s.rowPtr[p+1] += s.rowPtr[p]
	}
	return s, nil
}

// OneHot returns the projection for k clusters per word over a base
// vocabulary of size v: pseudo entry p belongs to word p mod v.
func OneHot(v, k int) (*Sparse, error) {
	if v <= 0 || k <= 0 {
		return nil, fmt.Errorf("%w: vocab %d, clusters %d", ErrInvalidProjection, v, k)
	}
	p := v * k
	s := &Sparse{pseudo: p, vocab: v, rowPtr: make([]int, p+1), cols: make([]int, p), vals: make([]float32, p)}
	for i := 0; i < p; i++ {
		s.rowPtr[i+1] = i + 1
		s.cols[i] = i % v
		s.vals[i] = 1
	}
	return s, nil
}

// FromClusterCounts returns the projection for a variable number of clusters
// per word. counts[w] >= 1 is the number of slots of word w; the first V
// pseudo entries are the words themselves and the extra slots follow in word
// order.
func FromClusterCounts(counts []int) (*Sparse, error) {
	v := len(counts)
	if v == 0 {
		return nil, fmt.Errorf("%w: no words", ErrInvalidProjection)
	}
	p := 0
	for w, c := range counts {
		if c < 1 {
			return nil, fmt.Errorf("%w: word %d has %d clusters", ErrInvalidProjection, w, c)
		}
		p += c
	}

	s := &Sparse{pseudo: p, vocab: v, rowPtr: make([]int, p+1), cols: make([]int, 0, p), vals: make([]float32, 0, p)}
	for w := 0; w < v; w++ {
		s.cols = append(s.cols, w)
	}
	for w, c := range counts {
		for range c - 1 {
			s.cols = append(s.cols, w)
		}
	}
	for i := 0; i < p; i++ {
		s.rowPtr[i+1] = i + 1
		s.vals = append(s.vals, 1)
	}
	return s, nil
}

// PseudoSize returns P.
func (s *Sparse) PseudoSize() int { return s.pseudo }

// VocabSize returns V.
func (s *Sparse) VocabSize() int { return s.vocab }

// NonZero returns the number of stored coefficients.
func (s *Sparse) NonZero() int { return len(s.cols) }

// Project writes src·coef into dst.
func (s *Sparse) Project(dst, src []float32) error {
	if err := checkLens(s, dst, src); err != nil {
		return err
	}
	clear(dst)
	for p, w := range src {
		if w == 0 {
			continue
		}
		for i := s.rowPtr[p]; i < s.rowPtr[p+1]; i++ {
			dst[s.cols[i]] += w * s.vals[i]
		}
	}
	return nil
}

// Dense returns the projection as a P×V matrix.
func (s *Sparse) Dense() *tensor.Matrix {
	m := tensor.New(s.pseudo, s.vocab)
	for p := 0; p < s.pseudo; p++ {
		for i := s.rowPtr[p]; i < s.rowPtr[p+1]; i++ {
			m.Set(p, s.cols[i], m.At(p, s.cols[i])+s.vals[i])
		}
	}
	return m
}

// Entries returns the coordinate form of the projection.
func (s *Sparse) Entries() []Entry {
	out := make([]Entry, 0, len(s.cols))
	for p := 0; p < s.pseudo; p++ {
		for i := s.rowPtr[p]; i < s.rowPtr[p+1]; i++ {
			out = append(out, Entry{Pseudo: p, Word: s.cols[i], Weight: s.vals[i]})
		}
	}
	return out
}

type sparseFile struct {
	PseudoSize int     `json:"pseudo_size"`
	VocabSize  int     `json:"vocab_size"`
	Entries    []Entry `json:"entries"`
}

// LoadSparse reads a projection document written by Save. A nil codec
// selects codec.Default.
func LoadSparse(r io.Reader, c codec.Codec) (*Sparse, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var f sparseFile
	if err := c.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProjection, err)
	}
	return NewSparse(f.PseudoSize, f.VocabSize, f.Entries)
}

// Save writes the projection as a JSON document.
func (s *Sparse) Save(w io.Writer, c codec.Codec) error {
	if c == nil {
		c = codec.Default
	}
	data, err := c.Marshal(sparseFile{PseudoSize: s.pseudo, VocabSize: s.vocab, Entries: s.Entries()})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
