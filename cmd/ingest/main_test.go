package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/manifest-ingest/internal/manifest"
)

const localManifest = `{
  "createdDate": "2024-01-01T00:00Z",
  "sourceSystem": "partner",
  "version": "1.0.0",
  "manifestEntries": [
    {"dataType": "orders", "rowCount": 2, "fileName": "a.csv"}
  ]
}`

func TestKeygenSignVerify(t *testing.T) {
	dir := t.TempDir()
	keyDir := filepath.Join(dir, "keys")
	manifestPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(localManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("id,amount,ts\n1,10.0,2020\n"), 0o644))

	require.NoError(t, newApp().Run([]string{"ingest", "keygen", "--dir", keyDir, "--name", "partner"}))
	pub := filepath.Join(keyDir, "partner_public_key.txt")
	priv := filepath.Join(keyDir, "partner_private_key.txt")

	require.NoError(t, newApp().Run([]string{"ingest", "sign", manifestPath, priv}))

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	m, err := manifest.Parse(data)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.NotEmpty(t, m.Entries[0].Signature)

	require.NoError(t, newApp().Run([]string{"ingest", "verify", manifestPath, pub}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("id,amount,ts\n1,99.0,2020\n"), 0o644))
	err = newApp().Run([]string{"ingest", "verify", manifestPath, pub})
	assert.ErrorIs(t, err, manifest.ErrSignatureMismatch)
}

func TestSignRequiresArguments(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	assert.Error(t, app.Run([]string{"ingest", "sign", "only-one"}))
}
