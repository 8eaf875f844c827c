package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/config"
	"github.com/andresuchdata/manifest-ingest/internal/manifest"
	"github.com/andresuchdata/manifest-ingest/internal/schema"
	"github.com/andresuchdata/manifest-ingest/internal/signing"
	"github.com/andresuchdata/manifest-ingest/internal/storage"
	"github.com/andresuchdata/manifest-ingest/internal/stream"
)

const manifestContentType = "application/json"

// SchemaSource provides the schema configuration for a run.
type SchemaSource interface {
	Load(ctx context.Context) (*schema.Config, error)
}

// RunnerConfig holds the manifest level settings.
type RunnerConfig struct {
	Processor        ProcessorConfig
	OutputBucket     string
	ManifestPartSize int
	ManifestVersion  string
}

// RunnerConfigFrom maps the ingest settings onto a RunnerConfig.
func RunnerConfigFrom(cfg config.IngestConfig) RunnerConfig {
	return RunnerConfig{
		Processor: ProcessorConfig{
			PartSize:       cfg.PartSize,
			ReadBufferSize: cfg.ReadBufferSize,
			Delimiter:      cfg.Delimiter,
			KMSKeyID:       cfg.KMSKeyID,
		},
		OutputBucket:     cfg.OutputBucket,
		ManifestPartSize: cfg.ManifestPartSize,
		ManifestVersion:  cfg.ManifestVersion,
	}
}

type RunnerOption func(*Runner)

// WithVerifier checks source manifest signatures after processing.
func WithVerifier(v signing.Verifier) RunnerOption {
	return func(r *Runner) { r.verifier = v }
}

// WithSigner signs the output manifest before it is saved.
func WithSigner(s signing.Signer) RunnerOption {
	return func(r *Runner) { r.signer = s }
}

func WithTracker(t Tracker) RunnerOption {
	return func(r *Runner) { r.tracker = t }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Runner processes a source manifest end to end: every entry in order, then
// integrity checks, then the output manifest.
type Runner struct {
	store     storage.ObjectStorage
	schemas   SchemaSource
	processor *EntryProcessor
	cfg       RunnerConfig
	verifier  signing.Verifier
	signer    signing.Signer
	tracker   Tracker
	now       func() time.Time
}

func NewRunner(store storage.ObjectStorage, schemas SchemaSource, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:     store,
		schemas:   schemas,
		processor: NewEntryProcessor(store, cfg.Processor),
		cfg:       cfg,
		tracker:   NewNoopTracker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessManifest runs the manifest at bucket/key. Keys that do not name a
// manifest are skipped.
func (r *Runner) ProcessManifest(ctx context.Context, bucket, key string) (*Result, error) {
	if !manifest.IsManifestKey(key) {
		log.Info().Str("bucket", bucket).Str("key", key).Msg("not a manifest, skipping")
		return &Result{Bucket: bucket, Key: key, Skipped: true}, nil
	}

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("bucket", bucket).Str("key", key).Logger()
	logger.Info().Msg("manifest run started")

	schemaCfg, err := r.schemas.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema configuration: %w", err)
	}
	outputBucket := r.cfg.OutputBucket
	if outputBucket == "" {
		outputBucket = schemaCfg.OutputBucket
	}
	if outputBucket == "" {
		return nil, fmt.Errorf("%w: PROCESSED_BUCKET or schema outputBucket", config.ErrMissingSetting)
	}

	src, err := manifest.Load(ctx, r.store, bucket, key)
	if err != nil {
		return nil, err
	}

	run := &ManifestRun{
		RunID:        runID,
		Bucket:       bucket,
		Key:          key,
		OutputBucket: outputBucket,
		Status:       StatusPending,
		TotalEntries: len(src.Entries),
		StartedAt:    r.now(),
	}
	r.track(logger, "start run", r.tracker.StartRun(ctx, run))

	out, err := r.process(ctx, logger, run, schemaCfg, src, outputBucket)
	r.finishRun(ctx, logger, run, err)
	if err != nil {
		logger.Error().Stack().Err(err).Msg("manifest run failed")
		return nil, err
	}

	result := &Result{
		RunID:        runID,
		Bucket:       bucket,
		Key:          key,
		OutputBucket: outputBucket,
		Entries:      len(out.Entries),
	}
	for _, e := range out.Entries {
		result.Rows += e.RowCount
	}
	logger.Info().Int("entries", result.Entries).Int64("rows", result.Rows).Msg("manifest run completed")
	return result, nil
}

func (r *Runner) process(ctx context.Context, logger zerolog.Logger, run *ManifestRun, schemaCfg *schema.Config, src *manifest.Manifest, outputBucket string) (*manifest.Manifest, error) {
	// Resolve every data type up front so configuration errors surface
	// before anything is uploaded.
	projectors := make(map[string]*schema.Projector)
	for _, e := range src.Entries {
		if _, ok := projectors[e.DataType]; ok {
			continue
		}
		dt, err := schemaCfg.DataType(e.DataType)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.FileName, err)
		}
		projector, err := schema.NewProjector(dt)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.FileName, err)
		}
		projectors[e.DataType] = projector
	}

	out := manifest.NewOutput(src, r.cfg.ManifestVersion, r.now())
	out.SetLocation(outputBucket, src.Key)

	jobs := make([]*EntryJob, len(src.Entries))
	for i, e := range src.Entries {
		jobs[i] = &EntryJob{
			RunID:     run.ID,
			FileName:  e.FileName,
			DataType:  e.DataType,
			SourceKey: src.KeyFor(e),
			DestKey:   out.KeyFor(e),
			Status:    EntryStatusPending,
			StartedAt: r.now(),
		}
		r.track(logger, "start entry", r.tracker.StartEntry(ctx, jobs[i]))
	}
	run.Status = StatusProcessing
	r.track(logger, "set run status", r.tracker.SetRunStatus(ctx, run))

	for i, e := range src.Entries {
		job := jobs[i]
		job.Status = EntryStatusProcessing
		r.track(logger, "set entry status", r.tracker.SetEntryStatus(ctx, job))

		outEntry, err := r.processor.Process(ctx, projectors[e.DataType], src, e, out)
		processedAt := r.now()
		job.ProcessedAt = &processedAt
		if err != nil {
			job.Status = EntryStatusFailed
			job.ErrorMessage = err.Error()
			r.track(logger, "finish entry", r.tracker.FinishEntry(ctx, job))
			return nil, err
		}
		job.Status = EntryStatusCompleted
		job.RowCount = outEntry.RowCount
		job.SourceHash = e.Hash
		job.DestHash = outEntry.Hash
		r.track(logger, "finish entry", r.tracker.FinishEntry(ctx, job))
	}

	if r.verifier != nil {
		if err := manifest.Verify(src, r.verifier); err != nil {
			return nil, err
		}
	}
	if r.signer != nil {
		if err := manifest.Sign(out, r.signer); err != nil {
			return nil, err
		}
	}
	if len(out.Entries) != len(src.Entries) {
		return nil, fmt.Errorf("%w: %d of %d entries", ErrIncompleteManifest, len(out.Entries), len(src.Entries))
	}

	if err := r.save(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) save(ctx context.Context, out *manifest.Manifest) error {
	data, err := out.Marshal()
	if err != nil {
		return err
	}

	w, err := stream.NewMultipartWriter(ctx, r.store, out.Bucket, out.Key, r.cfg.ManifestPartSize,
		stream.WithKMSKey(r.cfg.Processor.KMSKeyID), stream.WithContentType(manifestContentType))
	if err != nil {
		return fmt.Errorf("save output manifest: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return fmt.Errorf("save output manifest s3://%s/%s: %w", out.Bucket, out.Key, err)
	}
	if err := w.Close(); err != nil {
		_ = w.Abort()
		return fmt.Errorf("save output manifest s3://%s/%s: %w", out.Bucket, out.Key, err)
	}
	return nil
}

func (r *Runner) finishRun(ctx context.Context, logger zerolog.Logger, run *ManifestRun, runErr error) {
	completedAt := r.now()
	run.CompletedAt = &completedAt
	run.Status = StatusCompleted
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorMessage = runErr.Error()
	}
	r.track(logger, "finish run", r.tracker.FinishRun(context.WithoutCancel(ctx), run))
}

func (r *Runner) track(logger zerolog.Logger, op string, err error) {
	if err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("run tracking failed")
	}
}
