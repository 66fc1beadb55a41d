package scorer

import "github.com/hupe1980/knnlm/tensor"

// HardAlignment links every target position that is neither pad nor eos to
// the source position with the highest attention, ignoring pad and eos
// source positions. attn is tgtLen×srcLen.
func HardAlignment(attn *tensor.Matrix, src, tgt []int64, pad, eos int64) []AlignmentPair {
	if attn == nil {
		return nil
	}
	srcValid := make([]bool, len(src))
	anyValid := false
	for j, tok := range src {
		srcValid[j] = tok != pad && tok != eos
		anyValid = anyValid || srcValid[j]
	}
	if !anyValid {
		return nil
	}

	var out []AlignmentPair
	for t, tok := range tgt {
		if tok == pad || tok == eos || t >= attn.Rows {
			continue
		}
		row := attn.Row(t)
		best := -1
		for j := range min(len(row), len(src)) {
			if srcValid[j] && (best < 0 || row[j] > row[best]) {
				best = j
			}
		}
		if best >= 0 {
			out = append(out, AlignmentPair{Source: best, Target: t})
		}
	}
	return out
}
