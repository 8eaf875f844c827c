// Package manifest models an ingestion batch: the files it carries and the
// hashes and signatures that tie them to their producer.
package manifest

import (
	"path"
	"strings"
	"time"
)

// CreatedDateLayout formats Manifest.CreatedDate.
const CreatedDateLayout = "2006-01-02T15:04Z"

const manifestSuffix = "manifest.json"

// IsManifestKey reports whether an object key names a manifest.
func IsManifestKey(key string) bool {
	return strings.HasSuffix(key, manifestSuffix)
}

// Manifest is the working model of a manifest. Location fields are never
// serialized; see wire.go for the persisted form.
type Manifest struct {
	CreatedDate  string
	SourceSystem string
	Version      string
	Entries      []*Entry

	Bucket string
	Key    string
	prefix string
}

// NewOutput starts an empty manifest that will describe the processed copies
// of source's files.
func NewOutput(source *Manifest, version string, now time.Time) *Manifest {
	return &Manifest{
		CreatedDate:  now.UTC().Format(CreatedDateLayout),
		SourceSystem: source.SourceSystem,
		Version:      version,
	}
}

// SetLocation records where the manifest lives and derives the prefix its
// entry file names resolve against.
func (m *Manifest) SetLocation(bucket, key string) {
	m.Bucket = bucket
	m.Key = key
	m.prefix = ""
	if dir := path.Dir(key); dir != "." && dir != "/" {
		m.prefix = dir + "/"
	}
}

// Prefix is the directory part of Key, with a trailing slash.
func (m *Manifest) Prefix() string {
	return m.prefix
}

// KeyFor resolves an entry's file name to an object key.
func (m *Manifest) KeyFor(e *Entry) string {
	return m.prefix + e.FileName
}

func (m *Manifest) AddEntry(e *Entry) {
	m.Entries = append(m.Entries, e)
}

// Entry describes a single file of a manifest.
type Entry struct {
	DataType  string
	FileName  string
	RowCount  int64
	Hash      string
	Signature string
}

// Reset clears the derived fields so the entry can be reprocessed.
func (e *Entry) Reset() {
	e.RowCount = 0
	e.Hash = ""
	e.Signature = ""
}

// CloneForOutput returns a fresh entry for the same file carrying only its
// identity.
func (e *Entry) CloneForOutput() *Entry {
	return &Entry{DataType: e.DataType, FileName: e.FileName}
}

func (e *Entry) IncrementRowCount() {
	e.RowCount++
}

// SetHash records the base64 content hash once the file is fully consumed.
func (e *Entry) SetHash(hash string) {
	e.Hash = hash
}
