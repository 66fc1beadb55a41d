// Package knn turns nearest-neighbor search results into log-probabilities
// of a target token and mixes them with a model's own distribution.
//
// For one query with neighbors (d_j, v_j), j < k, temperature T and target y:
//
//	logp_j = log_softmax(-d / T)_j
//	bias_j = 0 if v_j == y else MaskBias
//	p_knn  = logsumexp_j(logp_j + bias_j)
//
// Mixer then combines p_knn with the model probability p_lm in log space:
//
//	p = logsumexp(p_lm + log(1-λ), p_knn + log(λ))
//
// All functions operate on row-major buffers of k entries per query and
// accumulate exponent sums in float64.
package knn
