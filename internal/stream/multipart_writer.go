package stream

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/storage"
)

// MinPartSize is the smallest part the S3 multipart protocol accepts for
// every part but the last.
const MinPartSize = 5 * 1024 * 1024

var (
	ErrPartSizeTooSmall = errors.New("part size below multipart minimum")
	ErrWriterClosed     = errors.New("multipart writer already closed")
)

// WriterOption customises a MultipartWriter.
type WriterOption func(*MultipartWriter)

// WithKMSKey binds the upload to a server-side encryption key id.
func WithKMSKey(keyID string) WriterOption {
	return func(w *MultipartWriter) { w.opts.KMSKeyID = keyID }
}

// WithContentType sets the content type of the resulting object.
func WithContentType(contentType string) WriterOption {
	return func(w *MultipartWriter) { w.opts.ContentType = contentType }
}

// MultipartWriter buffers writes into partSize chunks and uploads each one as
// a multipart part. The upload session is opened on the first flush, so a
// writer that never receives data never creates an object.
//
// Failures are returned to the caller, who must call Abort; the writer does
// not abort on its own.
type MultipartWriter struct {
	ctx      context.Context
	store    storage.MultipartUploader
	bucket   string
	key      string
	opts     storage.UploadOptions
	partSize int

	buf        []byte
	total      int64
	partNumber int
	parts      []storage.CompletedPart
	uploadID   string
	digest     hash.Hash
	etag       string
	closed     bool
	err        error
}

// NewMultipartWriter returns a writer for bucket/key. partSize below
// MinPartSize is rejected.
func NewMultipartWriter(ctx context.Context, store storage.MultipartUploader, bucket, key string, partSize int, opts ...WriterOption) (*MultipartWriter, error) {
	if partSize < MinPartSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrPartSizeTooSmall, partSize, MinPartSize)
	}
	w := &MultipartWriter{
		ctx:        ctx,
		store:      store,
		bucket:     bucket,
		key:        key,
		partSize:   partSize,
		buf:        make([]byte, 0, partSize),
		partNumber: 1,
		digest:     md5.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *MultipartWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	written := 0
	for len(p) > 0 {
		n := copy(w.buf[len(w.buf):w.partSize], p)
		w.buf = w.buf[:len(w.buf)+n]
		w.total += int64(n)
		written += n
		p = p[n:]

		if len(w.buf) == w.partSize {
			if err := w.flush(false); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *MultipartWriter) flush(last bool) error {
	if len(w.buf) == 0 {
		return nil
	}

	if w.uploadID == "" {
		uploadID, err := w.store.NewMultipartUpload(w.ctx, w.bucket, w.key, w.opts)
		if err != nil {
			w.err = err
			return err
		}
		w.uploadID = uploadID
		log.Info().Str("bucket", w.bucket).Str("key", w.key).Str("upload_id", uploadID).Msg("multipart upload started")
	}

	sum := md5.Sum(w.buf)
	etag, err := w.store.UploadPart(w.ctx, w.bucket, w.key, w.uploadID, w.partNumber, w.buf, base64.StdEncoding.EncodeToString(sum[:]))
	if err != nil {
		w.err = err
		return err
	}
	log.Debug().Str("key", w.key).Int("part", w.partNumber).Int("size", len(w.buf)).Bool("last", last).Msg("part uploaded")

	w.parts = append(w.parts, storage.CompletedPart{PartNumber: w.partNumber, ETag: etag})
	w.digest.Write(w.buf)
	w.buf = w.buf[:0]
	w.partNumber++
	return nil
}

// Close uploads the remaining buffer as the last part and completes the
// upload. Close is a no-op when nothing was written and after a successful
// Close.
func (w *MultipartWriter) Close() error {
	if w.closed {
		return nil
	}
	if w.err != nil {
		return w.err
	}
	if err := w.flush(true); err != nil {
		return err
	}
	if w.uploadID != "" {
		etag, err := w.store.CompleteMultipartUpload(w.ctx, w.bucket, w.key, w.uploadID, w.parts)
		if err != nil {
			w.err = err
			return err
		}
		log.Info().Str("bucket", w.bucket).Str("key", w.key).Int("parts", len(w.parts)).Int64("bytes", w.total).Msg("multipart upload completed")
		w.etag = etag
		w.uploadID = ""
	}
	w.closed = true
	return nil
}

// Abort cancels the open upload session, if any. It is safe to call more
// than once and runs even when the writer's context is already cancelled.
func (w *MultipartWriter) Abort() error {
	w.closed = true
	w.buf = w.buf[:0]
	if w.uploadID == "" {
		return nil
	}
	uploadID := w.uploadID
	w.uploadID = ""
	if err := w.store.AbortMultipartUpload(context.WithoutCancel(w.ctx), w.bucket, w.key, uploadID); err != nil {
		return err
	}
	log.Error().Str("bucket", w.bucket).Str("key", w.key).Str("upload_id", uploadID).Msg("multipart upload aborted")
	return nil
}

// Digest returns the MD5 of every byte uploaded. It covers the whole object
// only after Close.
func (w *MultipartWriter) Digest() []byte {
	return w.digest.Sum(nil)
}

func (w *MultipartWriter) DigestBase64() string {
	return base64.StdEncoding.EncodeToString(w.Digest())
}

// ETag is the object etag, set by a successful Close that uploaded data.
func (w *MultipartWriter) ETag() string {
	return w.etag
}

// TotalBytes is the number of bytes accepted by Write.
func (w *MultipartWriter) TotalBytes() int64 {
	return w.total
}
