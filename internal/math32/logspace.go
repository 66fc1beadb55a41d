package math32

import "math"

// LogSumExp returns log(Σ exp(a[i])) computed with the max-shift trick.
//
// The result is -Inf for an empty slice or when every element is -Inf, and
// +Inf when any element is +Inf.
func LogSumExp(a []float32) float32 {
	m, s := shiftedSum(a)
	if math.IsInf(float64(m), 0) {
		return m
	}
	return m + float32(math.Log(s))
}

// shiftedSum returns m = max(a) and s = Σ exp(a[i] - m). s is 0 when m is
// infinite.
func shiftedSum(a []float32) (float32, float64) {
	m := Max(a)
	if math.IsInf(float64(m), 0) {
		return m, 0
	}
	var s float64
	for _, v := range a {
		s += math.Exp(float64(v - m))
	}
	return m, s
}

// LogSumExp2 is LogSumExp for exactly two terms in float64.
func LogSumExp2(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// LogSoftmax writes the log-softmax of src into dst.
//
// A row whose elements are all -Inf has no defined softmax; it is written as
// the uniform distribution instead so NaN never leaves this function.
// The max is subtracted before the normalizer. dst and src may alias.
func LogSoftmax(dst, src []float32) {
	if len(src) == 0 {
		return
	}
	m, s := shiftedSum(src)
	if math.IsInf(float64(m), 0) {
		u := float32(-math.Log(float64(len(src))))
		for i := range src {
			dst[i] = u
		}
		return
	}
	ls := float32(math.Log(s))
	for i, v := range src {
		dst[i] = (v - m) - ls
	}
}

// AddTo writes a[i] + b[i] into dst.
func AddTo(dst, a, b []float32) {
	b = b[:len(a)]
	for i := range a {
		dst[i] = a[i] + b[i]
	}
}

// ClampLog writes log(max(src[i], floor)) into dst.
// dst and src may alias.
func ClampLog(dst, src []float32, floor float32) {
	for i, v := range src {
		if !(v > floor) {
			v = floor
		}
		dst[i] = float32(math.Log(float64(v)))
	}
}

// Log writes log(src[i]) into dst. dst and src may alias.
func Log(dst, src []float32) {
	for i, v := range src {
		dst[i] = float32(math.Log(float64(v)))
	}
}
