package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

const bucketOwnerFullControl = "bucket-owner-full-control"

// MinioConfig encapsulates the connection info for S3-compatible storage.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioClient implements ObjectStorage for AWS S3 and S3-compatible services.
type MinioClient struct {
	core *minio.Core
}

// NewMinioClient builds a MinioClient on top of minio-go's low level Core API,
// which exposes the multipart primitives directly.
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	// Static keys when given, otherwise the usual AWS environment/instance chain.
	var creds *credentials.Credentials
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("storage credentials must include both access and secret key")
		}
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &MinioClient{core: core}, nil
}

// GetObject opens a streaming reader over the object.
func (c *MinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, _, err := c.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// NewMultipartUpload starts a multipart upload granting the bucket owner full control.
func (c *MinioClient) NewMultipartUpload(ctx context.Context, bucket, key string, opts UploadOptions) (string, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: map[string]string{"x-amz-acl": bucketOwnerFullControl},
	}
	if opts.KMSKeyID != "" {
		sse, err := encrypt.NewSSEKMS(opts.KMSKeyID, nil)
		if err != nil {
			return "", fmt.Errorf("configure kms key %s: %w", opts.KMSKeyID, err)
		}
		putOpts.ServerSideEncryption = sse
	}

	uploadID, err := c.core.NewMultipartUpload(ctx, bucket, key, putOpts)
	if err != nil {
		return "", fmt.Errorf("initiate multipart upload to s3://%s/%s: %w", bucket, key, err)
	}
	return uploadID, nil
}

// UploadPart uploads a single part, letting the backend check contentMD5.
func (c *MinioClient) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte, contentMD5 string) (string, error) {
	part, err := c.core.PutObjectPart(ctx, bucket, key, uploadID, partNumber,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{Md5Base64: contentMD5})
	if err != nil {
		return "", fmt.Errorf("upload part %d to s3://%s/%s: %w", partNumber, bucket, key, err)
	}
	return part.ETag, nil
}

// CompleteMultipartUpload assembles the parts into the final object.
func (c *MinioClient) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (string, error) {
	completeParts := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completeParts[i] = minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	info, err := c.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload to s3://%s/%s: %w", bucket, key, err)
	}
	return info.ETag, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts.
func (c *MinioClient) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := c.core.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload %s to s3://%s/%s: %w", uploadID, bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Str("upload_id", uploadID).Msg("multipart upload aborted")
	return nil
}

var _ ObjectStorage = (*MinioClient)(nil)
