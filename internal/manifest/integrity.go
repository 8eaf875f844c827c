package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/signing"
	"github.com/andresuchdata/manifest-ingest/internal/stream"
)

var (
	ErrMissingHash       = errors.New("content hash missing")
	ErrMissingSignature  = errors.New("signature missing")
	ErrSignatureMismatch = errors.New("signature verification failed")
	ErrSigningFailed     = errors.New("signing failed")
)

// IntegrityError identifies the entry that failed signing or verification.
type IntegrityError struct {
	FileName string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("manifest entry %s: %v", e.FileName, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Sign signs each entry's base64 hash independently, in manifest order. The
// first entry without a hash stops signing.
func Sign(m *Manifest, signer signing.Signer) error {
	for _, e := range m.Entries {
		if strings.TrimSpace(e.Hash) == "" {
			return &IntegrityError{FileName: e.FileName, Err: ErrMissingHash}
		}
		sig, err := signer.Sign(e.Hash)
		if err != nil {
			return &IntegrityError{FileName: e.FileName, Err: fmt.Errorf("%w: %v", ErrSigningFailed, err)}
		}
		e.Signature = sig
	}
	log.Info().Str("key", m.Key).Int("entries", len(m.Entries)).Msg("manifest signed")
	return nil
}

// Verify checks every entry's signature against its hash and stops at the
// first failure.
func Verify(m *Manifest, verifier signing.Verifier) error {
	for _, e := range m.Entries {
		if strings.TrimSpace(e.Hash) == "" {
			return &IntegrityError{FileName: e.FileName, Err: ErrMissingHash}
		}
		if strings.TrimSpace(e.Signature) == "" {
			return &IntegrityError{FileName: e.FileName, Err: ErrMissingSignature}
		}
		if err := verifier.Verify(e.Hash, e.Signature); err != nil {
			log.Error().Err(err).Str("key", m.Key).Str("file", e.FileName).Msg("signature verification failed")
			return &IntegrityError{FileName: e.FileName, Err: fmt.Errorf("%w: %v", ErrSignatureMismatch, err)}
		}
	}
	log.Info().Str("key", m.Key).Int("entries", len(m.Entries)).Msg("manifest signatures verified")
	return nil
}

// HashFilesInDir sets each entry's hash from the file of the same name in dir.
func HashFilesInDir(m *Manifest, dir string) error {
	for _, e := range m.Entries {
		hash, err := hashFile(filepath.Join(dir, filepath.FromSlash(e.FileName)))
		if err != nil {
			return fmt.Errorf("hash %s: %w", e.FileName, err)
		}
		e.SetHash(hash)
	}
	return nil
}

func hashFile(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	r := stream.NewDigestReader(f)
	defer r.Close()

	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return r.DigestBase64(), nil
}
