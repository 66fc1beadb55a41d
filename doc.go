// Package knnlm implements retrieval-augmented language-model scoring
// (kNN-LM) for Go.
//
// A datastore of cached (context vector, next token) pairs is searched at
// inference time. The neighbors of a query form a distribution over tokens
// that is interpolated with the neural model's own distribution:
//
//	p(y|x) = λ·p_kNN(y|x) + (1-λ)·p_LM(y|x)
//
// Every combination happens in log space with max-shifted log-sum-exp.
//
// # Quick Start
//
//	ctx := context.Background()
//	lm, err := knnlm.Open(ctx, datastore.Config{
//	    Path:         "checkpoints/dstore",
//	    Size:         103225485,
//	    Dimension:    1024,
//	    FP16:         true,
//	    LoadToMemory: true,
//	}, knnlm.WithScorerConfig(scorer.DefaultConfig()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lm.Close()
//
//	hypos, err := lm.Score(ctx, []scorer.Model{model}, batch)
//
// # Temperature Sweeps
//
// Sweep scores a query set at many temperatures and writes the per-query
// results through a blobstore.BlobStore (local disk, memory, S3 or MinIO):
//
//	report, err := lm.Sweep(ctx, blobstore.NewLocalStore("."), sweepCfg, queries, tokens)
//
// # Packages
//
//   - datastore: exact flat search over memory-mapped or materialized keys
//   - knn: distance to log-probability conversion, target masking, aggregation, mixing
//   - scorer: chunked sequence scoring with optional vocabulary projection
//   - sweep: batch temperature sweeps with resumable, compressed outputs
//   - vocab: pseudo-vocabulary projections
//   - blobstore: output storage backends
package knnlm
