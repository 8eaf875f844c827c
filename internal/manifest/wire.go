package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/andresuchdata/manifest-ingest/internal/storage"
)

// MaxManifestSize bounds how much of a manifest object is read.
const MaxManifestSize = 16 << 20

type wireManifest struct {
	CreatedDate     string      `json:"createdDate"`
	SourceSystem    string      `json:"sourceSystem"`
	Version         string      `json:"version"`
	ManifestEntries []wireEntry `json:"manifestEntries"`
}

type wireEntry struct {
	DataType  string `json:"dataType"`
	RowCount  int64  `json:"rowCount"`
	FileName  string `json:"fileName"`
	Signature string `json:"signature,omitempty"`
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &Manifest{
		CreatedDate:  w.CreatedDate,
		SourceSystem: w.SourceSystem,
		Version:      w.Version,
		Entries: lo.Map(w.ManifestEntries, func(e wireEntry, _ int) *Entry {
			return &Entry{DataType: e.DataType, FileName: e.FileName, RowCount: e.RowCount, Signature: e.Signature}
		}),
	}, nil
}

// Marshal encodes the manifest as indented JSON. Hashes are not included.
func (m *Manifest) Marshal() ([]byte, error) {
	w := wireManifest{
		CreatedDate:  m.CreatedDate,
		SourceSystem: m.SourceSystem,
		Version:      m.Version,
		ManifestEntries: lo.Map(m.Entries, func(e *Entry, _ int) wireEntry {
			return wireEntry{DataType: e.DataType, RowCount: e.RowCount, FileName: e.FileName, Signature: e.Signature}
		}),
	}
	if w.ManifestEntries == nil {
		w.ManifestEntries = []wireEntry{}
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// Load reads and decodes the manifest at bucket/key and sets its location.
func Load(ctx context.Context, store storage.ObjectReader, bucket, key string) (*Manifest, error) {
	body, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxManifestSize {
		return nil, fmt.Errorf("manifest s3://%s/%s exceeds %d bytes", bucket, key, MaxManifestSize)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
	}
	m.SetLocation(bucket, key)
	return m, nil
}
