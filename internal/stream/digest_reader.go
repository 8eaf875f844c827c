// Package stream holds the hashing read and multipart write wrappers used to
// move entry files through object storage without buffering them whole.
package stream

import (
	"crypto/md5"
	"encoding/base64"
	"hash"
	"io"
	"sync"
)

// DigestReader feeds every byte read from the wrapped source into an MD5
// digest. Digest must only be taken after the source is fully consumed.
type DigestReader struct {
	src       io.Reader
	h         hash.Hash
	closeOnce sync.Once
	closeErr  error
	one       [1]byte
}

func NewDigestReader(src io.Reader) *DigestReader {
	return &DigestReader{src: src, h: md5.New()}
}

func (r *DigestReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.h.Write(p[:n])
	}
	return n, err
}

// ReadByte reads a single byte, hashing it when one is returned.
func (r *DigestReader) ReadByte() (byte, error) {
	for {
		n, err := r.Read(r.one[:])
		if n == 1 {
			return r.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Close closes the wrapped source if it is an io.Closer. Subsequent calls
// return the first result without touching the source again.
func (r *DigestReader) Close() error {
	r.closeOnce.Do(func() {
		if c, ok := r.src.(io.Closer); ok {
			r.closeErr = c.Close()
		}
	})
	return r.closeErr
}

// Digest returns the MD5 of the bytes read so far.
func (r *DigestReader) Digest() []byte {
	return r.h.Sum(nil)
}

// DigestBase64 returns Digest in standard base64.
func (r *DigestReader) DigestBase64() string {
	return base64.StdEncoding.EncodeToString(r.Digest())
}
