package stream

import (
	"bytes"
	"context"
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/manifest-ingest/internal/storage"
	"github.com/andresuchdata/manifest-ingest/internal/storage/storagetest"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestNewMultipartWriterRejectsSmallParts(t *testing.T) {
	_, err := NewMultipartWriter(context.Background(), storagetest.NewMemory(), "out", "k", MinPartSize-1)
	require.ErrorIs(t, err, ErrPartSizeTooSmall)
}

func TestMultipartWriterDigestIndependentOfChunking(t *testing.T) {
	data := payload(2*MinPartSize + 1234)
	want := md5.Sum(data)

	for _, chunk := range []int{1 << 10, 7919, MinPartSize, len(data)} {
		mem := storagetest.NewMemory()
		w, err := NewMultipartWriter(context.Background(), mem, "out", "file.csv", MinPartSize)
		require.NoError(t, err)

		for off := 0; off < len(data); off += chunk {
			end := min(off+chunk, len(data))
			n, err := w.Write(data[off:end])
			require.NoError(t, err)
			require.Equal(t, end-off, n)
		}
		require.NoError(t, w.Close())

		assert.Equal(t, want[:], w.Digest(), "chunk %d", chunk)
		assert.Equal(t, int64(len(data)), w.TotalBytes())
		assert.NotEmpty(t, w.ETag())

		got, ok := mem.Object("out", "file.csv")
		require.True(t, ok)
		assert.True(t, bytes.Equal(data, got))
	}
}

func TestMultipartWriterPartNumbering(t *testing.T) {
	cases := []struct {
		size  int
		parts int
	}{
		{1, 1},
		{MinPartSize, 1},
		{MinPartSize + 1, 2},
		{3 * MinPartSize, 3},
	}
	for _, tc := range cases {
		mem := storagetest.NewMemory()
		w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize)
		require.NoError(t, err)
		_, err = w.Write(payload(tc.size))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		require.Len(t, mem.Completed, 1)
		parts := mem.Completed[0]
		require.Len(t, parts, tc.parts, "size %d", tc.size)
		for i, p := range parts {
			assert.Equal(t, i+1, p.PartNumber)
		}
	}
}

func TestMultipartWriterNothingWritten(t *testing.T) {
	mem := storagetest.NewMemory()
	w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Empty(t, mem.Initiated)
	assert.Empty(t, mem.Completed)
	_, ok := mem.Object("out", "k")
	assert.False(t, ok)
	assert.Empty(t, w.ETag())
}

func TestMultipartWriterAbortBeforeClose(t *testing.T) {
	mem := storagetest.NewMemory()
	w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize)
	require.NoError(t, err)

	_, err = w.Write(payload(MinPartSize + 10))
	require.NoError(t, err)
	require.Len(t, mem.Initiated, 1)

	require.NoError(t, w.Abort())
	require.NoError(t, w.Abort())
	require.NoError(t, w.Close())

	assert.Len(t, mem.Aborted, 1)
	assert.Empty(t, mem.Completed)
	assert.Zero(t, mem.OpenUploads())
	_, ok := mem.Object("out", "k")
	assert.False(t, ok)
}

func TestMultipartWriterAbortWithoutSession(t *testing.T) {
	mem := storagetest.NewMemory()
	w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize)
	require.NoError(t, err)

	_, err = w.Write([]byte("small"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	assert.Empty(t, mem.Initiated)
	assert.Empty(t, mem.Aborted)
}

func TestMultipartWriterPartFailureIsSticky(t *testing.T) {
	mem := storagetest.NewMemory()
	mem.FailPart = 2
	w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize)
	require.NoError(t, err)

	_, err = w.Write(payload(2 * MinPartSize))
	require.ErrorIs(t, err, storagetest.ErrInjected)

	_, err = w.Write([]byte("more"))
	require.ErrorIs(t, err, storagetest.ErrInjected)
	require.ErrorIs(t, w.Close(), storagetest.ErrInjected)
	assert.Empty(t, mem.Completed)

	require.NoError(t, w.Abort())
	assert.Len(t, mem.Aborted, 1)
	assert.Zero(t, mem.OpenUploads())
}

func TestMultipartWriterOptions(t *testing.T) {
	mem := storagetest.NewMemory()
	w, err := NewMultipartWriter(context.Background(), mem, "out", "k", MinPartSize,
		WithKMSKey("kms-1"), WithContentType("text/csv"))
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Len(t, mem.Initiated, 1)
	assert.Equal(t, storage.UploadOptions{KMSKeyID: "kms-1", ContentType: "text/csv"}, mem.Initiated[0])
}
