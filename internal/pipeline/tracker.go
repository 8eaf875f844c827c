package pipeline

import (
	"context"
)

// Tracker records run and entry state transitions. Failures are reported to
// the caller but never stop a run.
type Tracker interface {
	StartRun(ctx context.Context, run *ManifestRun) error
	SetRunStatus(ctx context.Context, run *ManifestRun) error
	FinishRun(ctx context.Context, run *ManifestRun) error
	StartEntry(ctx context.Context, job *EntryJob) error
	SetEntryStatus(ctx context.Context, job *EntryJob) error
	FinishEntry(ctx context.Context, job *EntryJob) error
}

type noopTracker struct{}

func NewNoopTracker() Tracker {
	return noopTracker{}
}

func (noopTracker) StartRun(context.Context, *ManifestRun) error { return nil }
func (noopTracker) SetRunStatus(context.Context, *ManifestRun) error { return nil }
func (noopTracker) FinishRun(context.Context, *ManifestRun) error { return nil }
func (noopTracker) StartEntry(context.Context, *EntryJob) error { return nil }
func (noopTracker) SetEntryStatus(context.Context, *EntryJob) error { return nil }
func (noopTracker) FinishEntry(context.Context, *EntryJob) error { return nil }
