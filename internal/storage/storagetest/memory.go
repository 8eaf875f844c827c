// Package storagetest provides an in-memory storage.ObjectStorage for tests.
package storagetest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/andresuchdata/manifest-ingest/internal/storage"
)

type upload struct {
	bucket, key string
	opts        storage.UploadOptions
	parts       map[int][]byte
}

// Memory keeps objects and multipart uploads in memory and records every
// multipart call so tests can assert on the protocol.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]*upload
	nextID  int

	Initiated []storage.UploadOptions
	Completed [][]storage.CompletedPart
	Aborted   []string

	// FailPart makes UploadPart fail for the given part number.
	FailPart int
	// FailComplete makes CompleteMultipartUpload fail.
	FailComplete bool
	// FailGet makes GetObject fail.
	FailGet error
}

// ErrInjected is returned by injected failures.
var ErrInjected = errors.New("injected storage failure")

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		uploads: make(map[string]*upload),
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores an object directly.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(bucket, key)] = append([]byte(nil), data...)
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey(bucket, key)]
	return data, ok
}

// OpenUploads returns the number of multipart uploads neither completed nor aborted.
func (m *Memory) OpenUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *Memory) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		return nil, m.FailGet
	}
	data, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) NewMultipartUpload(ctx context.Context, bucket, key string, opts storage.UploadOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &upload{bucket: bucket, key: key, opts: opts, parts: make(map[int][]byte)}
	m.Initiated = append(m.Initiated, opts)
	return id, nil
}

func (m *Memory) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte, contentMD5 string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("no such upload %s", uploadID)
	}
	if m.FailPart == partNumber {
		return "", fmt.Errorf("part %d: %w", partNumber, ErrInjected)
	}
	sum := md5.Sum(data)
	if contentMD5 != base64.StdEncoding.EncodeToString(sum[:]) {
		return "", fmt.Errorf("part %d: content md5 mismatch", partNumber)
	}
	u.parts[partNumber] = append([]byte(nil), data...)
	return hex.EncodeToString(sum[:]), nil
}

func (m *Memory) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []storage.CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("no such upload %s", uploadID)
	}
	m.Completed = append(m.Completed, append([]storage.CompletedPart(nil), parts...))
	if m.FailComplete {
		return "", fmt.Errorf("complete: %w", ErrInjected)
	}
	if !sort.SliceIsSorted(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber }) {
		return "", fmt.Errorf("parts are not in ascending order")
	}

	var buf bytes.Buffer
	for _, p := range parts {
		data, ok := u.parts[p.PartNumber]
		if !ok {
			return "", fmt.Errorf("part %d was never uploaded", p.PartNumber)
		}
		buf.Write(data)
	}
	m.objects[objectKey(u.bucket, u.key)] = buf.Bytes()
	delete(m.uploads, uploadID)

	sum := md5.Sum(buf.Bytes())
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), len(parts)), nil
}

func (m *Memory) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return fmt.Errorf("no such upload %s", uploadID)
	}
	delete(m.uploads, uploadID)
	m.Aborted = append(m.Aborted, uploadID)
	return nil
}

var _ storage.ObjectStorage = (*Memory)(nil)
