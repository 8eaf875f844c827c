package pipeline

import (
	"errors"
	"fmt"
)

// ErrIncompleteManifest means the output manifest is missing entries of the
// source manifest.
var ErrIncompleteManifest = errors.New("output manifest incomplete")

// EntryError is returned when a manifest entry fails to process.
type EntryError struct {
	FileName     string
	SourceBucket string
	SourceKey    string
	DestBucket   string
	DestKey      string
	Err          error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("process %s (s3://%s/%s -> s3://%s/%s): %v",
		e.FileName, e.SourceBucket, e.SourceKey, e.DestBucket, e.DestKey, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
