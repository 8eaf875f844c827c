package stream

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	io.Reader
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestDigestReaderMatchesDirectHash(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("id,amount,ts\n1,10.0,2020\n"),
		bytes.Repeat([]byte("0123456789"), 10000),
	}
	for _, in := range inputs {
		r := NewDigestReader(iotest.OneByteReader(bytes.NewReader(in)))
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, in, out, "content must pass through unchanged")

		want := md5.Sum(in)
		assert.Equal(t, want[:], r.Digest())
		assert.Equal(t, base64.StdEncoding.EncodeToString(want[:]), r.DigestBase64())
	}
}

func TestDigestReaderReadByte(t *testing.T) {
	r := NewDigestReader(strings.NewReader("xy"))

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('x'), b)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "y", string(rest))

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	want := md5.Sum([]byte("xy"))
	assert.Equal(t, want[:], r.Digest())
}

func TestDigestReaderClosesSourceOnce(t *testing.T) {
	src := &countingCloser{Reader: strings.NewReader("data")}
	r := NewDigestReader(src)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, src.closes)
}

func TestDigestReaderCloseWithoutCloser(t *testing.T) {
	r := NewDigestReader(strings.NewReader("data"))
	assert.NoError(t, r.Close())
}
