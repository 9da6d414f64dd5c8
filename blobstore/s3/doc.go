// Package s3 implements blobstore.Store on Amazon S3.
//
// Blobs are stored as objects under an optional key prefix. Small blobs are
// written with a single PutObject carrying a CRC32C checksum; larger blobs
// go through the multipart uploader. S3 object writes are atomic, so readers
// never observe a partially written collection.
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "vectors/")
//	db, err := vecdir.NewDatabase(ctx, store)
package s3
