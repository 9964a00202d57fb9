// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("plsa/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	co, err := cooccur.Load(ctx, store, "pairs.bin", cooccur.FormatBinary)
//
// # Features
//
//   - CRC32C-checksummed writes
//   - Multipart uploads for large joint matrices
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
