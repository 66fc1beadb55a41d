// Package blobstore is the storage abstraction for sweep artifacts.
//
// A sweep writes one set of .npy arrays per temperature, a recall bitmap and
// a manifest. They go through BlobStore so the same sweep can target a local
// directory, memory (tests), S3 or MinIO. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, mmap reads, atomic rename on write
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart streaming uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Commit logs
//
// CommitLog records which sweep points are durably written so an
// interrupted sweep can resume. BlobCommitLog stores marker blobs next to
// the outputs; s3.DDBCommitLog uses DynamoDB conditional writes.
package blobstore
