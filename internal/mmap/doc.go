// Package mmap provides read-only memory-mapped file access.
//
// Datastore key/value files and query dumps can be far larger than the heap
// budget of a scoring process. Mapping them lets the flat search stream over
// the keys without first copying them, and lets the loader materialize them
// into RAM in bounded chunks when requested.
//
// # Usage
//
//	m, err := mmap.Open("dstore_keys.npy")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	keys, err := m.Slice(0, n*dim*2)
//
// # Platform Support
//
//   - Unix: mmap(2) with madvise(2) access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent; callers must
// not touch slices obtained from the mapping after Close returns.
package mmap
