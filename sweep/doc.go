// Package sweep scores a large query set against a datastore once per
// temperature and persists the per-query results.
//
// For every temperature T the controller writes three arrays:
//
//	<name>_faiss_mask_flat.npy<T>.npy        float32 [Q]    retrieval log-probability of the target
//	<name>_faiss_mask_flat_knns.npy<T>.npy   int64   [Q, K] neighbor entry ids
//	<name>_faiss_mask_flat_dists.npy<T>.npy  float32 [Q]    sum of negated neighbor distances
//
// T is printed the way the sweep range produces it (2.0, 2.1, 2.3000000000000003).
// With compression enabled the names gain a trailing .zst or .lz4.
//
// Completed temperatures are recorded in a blobstore.CommitLog so an
// interrupted sweep can resume.
package sweep
