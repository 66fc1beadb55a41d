// Package scorer computes per-token log-probabilities of reference targets
// under one model or an ensemble, optionally fused with a kNN datastore.
//
// The model output is consumed in slices over the flattened batch·time axis
// so that at most SoftmaxBatch rows of a vocabulary-sized distribution are
// alive at once. Target probabilities are gathered into one flat buffer that
// is finally viewed as batch×time.
//
// Ensembles are averaged in probability space and logged once. Retrieval
// fusion is only defined for a single model and is rejected for ensembles
// before any model runs.
package scorer
