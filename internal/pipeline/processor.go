package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/manifest"
	"github.com/andresuchdata/manifest-ingest/internal/schema"
	"github.com/andresuchdata/manifest-ingest/internal/storage"
	"github.com/andresuchdata/manifest-ingest/internal/stream"
)

const csvContentType = "text/csv"

// ProcessorConfig holds the streaming settings for entry files.
type ProcessorConfig struct {
	PartSize       int
	ReadBufferSize int
	Delimiter      rune
	KMSKeyID       string
}

// EntryProcessor rewrites one entry file from the source manifest location
// into the output manifest location.
type EntryProcessor struct {
	store storage.ObjectStorage
	cfg   ProcessorConfig
}

func NewEntryProcessor(store storage.ObjectStorage, cfg ProcessorConfig) *EntryProcessor {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 64 * 1024
	}
	return &EntryProcessor{store: store, cfg: cfg}
}

// Process streams entry's file through projector into the output location.
// On success the source entry carries its content hash and the returned
// output entry, already appended to out, carries the rewritten file's hash
// and row count. On failure the destination upload is aborted.
func (p *EntryProcessor) Process(ctx context.Context, projector *schema.Projector, src *manifest.Manifest, entry *manifest.Entry, out *manifest.Manifest) (*manifest.Entry, error) {
	srcKey := src.KeyFor(entry)
	destKey := out.KeyFor(entry)
	fail := func(err error) error {
		return errors.WithStack(&EntryError{
			FileName:     entry.FileName,
			SourceBucket: src.Bucket,
			SourceKey:    srcKey,
			DestBucket:   out.Bucket,
			DestKey:      destKey,
			Err:          err,
		})
	}

	logger := log.With().Str("file", entry.FileName).Str("data_type", entry.DataType).Logger()
	logger.Info().Str("source", srcKey).Str("dest", destKey).Msg("processing entry")

	body, err := p.store.GetObject(ctx, src.Bucket, srcKey)
	if err != nil {
		return nil, fail(err)
	}
	source := stream.NewDigestReader(body)
	defer source.Close()

	dest, err := stream.NewMultipartWriter(ctx, p.store, out.Bucket, destKey, p.cfg.PartSize,
		stream.WithKMSKey(p.cfg.KMSKeyID), stream.WithContentType(csvContentType))
	if err != nil {
		return nil, fail(err)
	}

	outEntry := entry.CloneForOutput()
	if err := p.transform(projector, bufio.NewReaderSize(source, p.cfg.ReadBufferSize), dest, outEntry); err != nil {
		if abortErr := dest.Abort(); abortErr != nil {
			logger.Error().Err(abortErr).Msg("abort destination upload")
		}
		return nil, fail(err)
	}
	if err := dest.Close(); err != nil {
		if abortErr := dest.Abort(); abortErr != nil {
			logger.Error().Err(abortErr).Msg("abort destination upload")
		}
		return nil, fail(err)
	}

	entry.SetHash(source.DigestBase64())
	outEntry.SetHash(dest.DigestBase64())
	out.AddEntry(outEntry)

	logger.Info().Int64("rows", outEntry.RowCount).Int64("bytes", dest.TotalBytes()).Str("etag", dest.ETag()).Msg("entry processed")
	return outEntry, nil
}

func (p *EntryProcessor) transform(projector *schema.Projector, in io.Reader, out io.Writer, outEntry *manifest.Entry) error {
	reader := csv.NewReader(in)
	reader.Comma = p.cfg.Delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: file is empty", schema.ErrSchemaMismatch)
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := projector.CheckHeader(header); err != nil {
		return err
	}
	reader.FieldsPerRecord = len(header)

	writer := csv.NewWriter(out)
	writer.Comma = p.cfg.Delimiter
	if err := writer.Write(projector.Header()); err != nil {
		return err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}

		row, err := projector.Project(record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		outEntry.IncrementRowCount()
	}

	writer.Flush()
	return writer.Error()
}
