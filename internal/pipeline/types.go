package pipeline

import (
	"time"
)

// RunStatus represents the current state of a manifest run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// EntryStatus represents the state of a single entry file
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusCompleted  EntryStatus = "completed"
	EntryStatusFailed     EntryStatus = "failed"
)

// ManifestRun tracks one execution over a source manifest
type ManifestRun struct {
	ID               int64      `db:"id" json:"-"`
	RunID            string     `db:"run_id" json:"run_id"`
	Bucket           string     `db:"bucket" json:"bucket"`
	Key              string     `db:"manifest_key" json:"key"`
	OutputBucket     string     `db:"output_bucket" json:"output_bucket"`
	Status           RunStatus  `db:"status" json:"status"`
	TotalEntries     int        `db:"total_entries" json:"total_entries"`
	ProcessedEntries int        `db:"processed_entries" json:"processed_entries"`
	TotalRows        int64      `db:"total_rows" json:"total_rows"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
}

// EntryJob tracks the processing of a single manifest entry
type EntryJob struct {
	ID           int64       `db:"id" json:"-"`
	RunID        int64       `db:"run_id" json:"-"`
	FileName     string      `db:"file_name" json:"file_name"`
	DataType     string      `db:"data_type" json:"data_type"`
	SourceKey    string      `db:"source_key" json:"source_key"`
	DestKey      string      `db:"dest_key" json:"dest_key"`
	Status       EntryStatus `db:"status" json:"status"`
	RowCount     int64       `db:"row_count" json:"row_count"`
	SourceHash   string      `db:"source_hash" json:"source_hash,omitempty"`
	DestHash     string      `db:"dest_hash" json:"dest_hash,omitempty"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time   `db:"started_at" json:"started_at"`
	ProcessedAt  *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
}

// Result summarises a ProcessManifest call.
type Result struct {
	RunID        string `json:"run_id,omitempty"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	OutputBucket string `json:"output_bucket,omitempty"`
	Entries      int    `json:"entries"`
	Rows         int64  `json:"rows"`
	Skipped      bool   `json:"skipped,omitempty"`
}
