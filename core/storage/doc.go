// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface so run reports can
// be archived to AWS S3 or a self-hosted MinIO instance, and mocked in tests
// (see core/storage/mocks).
//
// # Operations
//
//   - BucketExists / MakeBucket: used by EnsureBucket before the first upload.
//   - PutObject: uploads a report.
//   - GetObject: streams a report back.
//   - ListObjects: lists archived reports under a prefix.
//   - RemoveObject: prunes reports beyond the retention count.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region)
package storage
