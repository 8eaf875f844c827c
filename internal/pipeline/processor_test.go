package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/manifest-ingest/internal/manifest"
	"github.com/andresuchdata/manifest-ingest/internal/schema"
	"github.com/andresuchdata/manifest-ingest/internal/storage/storagetest"
	"github.com/andresuchdata/manifest-ingest/internal/stream"
)

const ordersCSV = "id,amount,ts\n1,10.0,2020\n2,20.0,2021\n"

func ordersProjector(t *testing.T) *schema.Projector {
	t.Helper()
	p, err := schema.NewProjector(&schema.DataType{
		Name:          "orders",
		Enabled:       true,
		InputColumns:  []string{"id", "amount", "ts"},
		OutputColumns: []string{"id", "amount"},
	})
	require.NoError(t, err)
	return p
}

func md5Base64(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type fixture struct {
	mem   *storagetest.Memory
	src   *manifest.Manifest
	out   *manifest.Manifest
	entry *manifest.Entry
}

func newFixture(content string) *fixture {
	mem := storagetest.NewMemory()
	mem.Put("incoming", "batch/orders/a.csv", []byte(content))

	entry := &manifest.Entry{DataType: "orders", FileName: "orders/a.csv"}
	src := &manifest.Manifest{Entries: []*manifest.Entry{entry}}
	src.SetLocation("incoming", "batch/manifest.json")
	out := &manifest.Manifest{}
	out.SetLocation("processed", "batch/manifest.json")

	return &fixture{mem: mem, src: src, out: out, entry: entry}
}

func processorConfig() ProcessorConfig {
	return ProcessorConfig{PartSize: stream.MinPartSize, ReadBufferSize: 4096, Delimiter: ','}
}

func TestProcessOrders(t *testing.T) {
	f := newFixture(ordersCSV)
	p := NewEntryProcessor(f.mem, processorConfig())

	outEntry, err := p.Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	require.NoError(t, err)

	got, ok := f.mem.Object("processed", "batch/orders/a.csv")
	require.True(t, ok)
	assert.Equal(t, "id,amount\n1,10.0\n2,20.0\n", string(got))

	assert.Equal(t, int64(2), outEntry.RowCount)
	assert.Equal(t, "orders/a.csv", outEntry.FileName)
	assert.Equal(t, md5Base64(got), outEntry.Hash)
	assert.Empty(t, outEntry.Signature)
	assert.Equal(t, md5Base64([]byte(ordersCSV)), f.entry.Hash)

	require.Len(t, f.out.Entries, 1)
	assert.Same(t, outEntry, f.out.Entries[0])
	assert.Equal(t, "text/csv", f.mem.Initiated[0].ContentType)
}

func TestProcessCustomDelimiterAndKMS(t *testing.T) {
	f := newFixture("id;amount;ts\n1;\"1;5\";2020\n")
	cfg := processorConfig()
	cfg.Delimiter = ';'
	cfg.KMSKeyID = "kms-key"

	_, err := NewEntryProcessor(f.mem, cfg).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	require.NoError(t, err)

	got, _ := f.mem.Object("processed", "batch/orders/a.csv")
	assert.Equal(t, "id;amount\n1;\"1;5\"\n", string(got))
	assert.Equal(t, "kms-key", f.mem.Initiated[0].KMSKeyID)
}

func TestProcessPartFailureAborts(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,amount,ts\n")
	pad := strings.Repeat("9", 60)
	for i := 0; b.Len() < 2*stream.MinPartSize; i++ {
		fmt.Fprintf(&b, "%d,%s,2020\n", i, pad)
	}

	f := newFixture(b.String())
	f.mem.FailPart = 2

	_, err := NewEntryProcessor(f.mem, processorConfig()).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "orders/a.csv", entryErr.FileName)
	assert.Equal(t, "batch/orders/a.csv", entryErr.SourceKey)
	assert.Equal(t, "processed", entryErr.DestBucket)
	assert.ErrorIs(t, err, storagetest.ErrInjected)
	assert.Contains(t, err.Error(), "orders/a.csv")

	assert.Len(t, f.mem.Aborted, 1)
	assert.Empty(t, f.mem.Completed)
	assert.Zero(t, f.mem.OpenUploads())
	_, ok := f.mem.Object("processed", "batch/orders/a.csv")
	assert.False(t, ok)
	assert.Empty(t, f.out.Entries)
}

func TestProcessRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"empty file":      "",
		"wrong header":    "id,ts,amount\n1,2020,10.0\n",
		"short header":    "id,amount\n1,10.0\n",
		"short row":       "id,amount,ts\n1,10.0\n",
		"long row":        "id,amount,ts\n1,10.0,2020,x\n",
		"malformed quote": "id,amount,ts\n1,\"10.0,2020\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(content)
			_, err := NewEntryProcessor(f.mem, processorConfig()).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)

			var entryErr *EntryError
			require.ErrorAs(t, err, &entryErr)
			assert.Equal(t, "orders/a.csv", entryErr.FileName)
			_, ok := f.mem.Object("processed", "batch/orders/a.csv")
			assert.False(t, ok)
			assert.Zero(t, f.mem.OpenUploads())
			assert.Empty(t, f.out.Entries)
		})
	}
}

func TestProcessHeaderMismatchIsSchemaError(t *testing.T) {
	f := newFixture("id,ts,amount\n1,2020,10.0\n")
	_, err := NewEntryProcessor(f.mem, processorConfig()).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	assert.ErrorIs(t, err, schema.ErrSchemaMismatch)
}

func TestProcessMissingSource(t *testing.T) {
	f := newFixture(ordersCSV)
	f.entry.FileName = "orders/missing.csv"

	_, err := NewEntryProcessor(f.mem, processorConfig()).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "batch/orders/missing.csv", entryErr.SourceKey)
	assert.Empty(t, f.mem.Initiated)
}

func TestProcessHeaderOnlyFile(t *testing.T) {
	f := newFixture("id,amount,ts\n")
	outEntry, err := NewEntryProcessor(f.mem, processorConfig()).Process(context.Background(), ordersProjector(t), f.src, f.entry, f.out)
	require.NoError(t, err)
	assert.Zero(t, outEntry.RowCount)

	got, _ := f.mem.Object("processed", "batch/orders/a.csv")
	assert.Equal(t, "id,amount\n", string(got))
}
