// Package datastore holds the (key vector, value id) pairs a retrieval
// language model searches.
//
// A datastore is written once, as two raw little-endian files sharing a base
// path:
//
//	<path>_keys.npy  N×D float16 (or float32)
//	<path>_vals.npy  N×1 int64
//
// Despite the suffix the files carry no npy header; N and D come from
// configuration. Open maps both files and either materializes the keys into
// RAM or decodes them from the mapping on every scan. The returned *Flat is
// immutable and safe for concurrent Search calls.
package datastore
