package storage

import (
	"context"
	"io"
)

// UploadOptions are applied when a multipart upload is initiated.
type UploadOptions struct {
	// KMSKeyID requests server-side encryption with the given key. Empty
	// leaves encryption to the bucket defaults.
	KMSKeyID    string
	ContentType string
}

// CompletedPart identifies one uploaded part of a multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// ObjectReader opens objects for streaming reads. Callers close the returned reader.
type ObjectReader interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// MultipartUploader captures the S3 multipart upload protocol.
type MultipartUploader interface {
	NewMultipartUpload(ctx context.Context, bucket, key string, opts UploadOptions) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte, contentMD5 string) (etag string, err error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (etag string, err error)
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}

// ObjectStorage captures the minimal S3-compatible operations the pipeline needs.
type ObjectStorage interface {
	ObjectReader
	MultipartUploader
}
