// Package hash provides the CRC32-Castagnoli checksums used for output
// integrity: sweep manifests record one per output blob and the S3 store
// sends one with every upload.
package hash
