package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/plsago/blobstore"
	minioblob "github.com/hupe1980/plsago/blobstore/minio"
	s3blob "github.com/hupe1980/plsago/blobstore/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// openStore returns the blob store that holds input and output.
func openStore(ctx context.Context, s *Settings) (blobstore.Store, error) {
	switch s.Store {
	case "s3":
		opts := []s3blob.Option{s3blob.WithPrefix(s.Prefix)}
		if s.Region != "" {
			opts = append(opts, s3blob.WithRegion(s.Region))
		}
		if s.Endpoint != "" {
			opts = append(opts, s3blob.WithEndpoint(s.Endpoint))
		}
		return s3blob.New(ctx, s.Bucket, opts...)
	case "minio":
		client, err := minio.New(s.Endpoint, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: !s.Insecure,
			Region: s.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, s.Bucket, s.Prefix), nil
	default:
		return blobstore.NewLocalStore(s.Prefix), nil
	}
}
