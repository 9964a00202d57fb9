// Package blobstore provides the storage abstraction for co-occurrence input
// and joint-matrix output.
//
// Store is the interface for reading and writing whole blobs. Implementations
// must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with atomic writes
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart uploads (package blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible storage (package blobstore/minio)
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error         // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
