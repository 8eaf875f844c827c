// Package event extracts object references from storage notifications.
package event

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
)

var ErrInvalidNotification = errors.New("invalid notification payload")

// ObjectRef names an object that triggered a notification.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ParseNotification returns the objects referenced by an S3 event
// notification, or by an SQS batch whose message bodies are S3 event
// notifications. Records that are not object events are ignored.
func ParseNotification(payload []byte) ([]ObjectRef, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrInvalidNotification
	}

	var refs []ObjectRef
	var parseErr error
	gjson.GetBytes(payload, "Records").ForEach(func(_, record gjson.Result) bool {
		if body := record.Get("body"); body.Exists() {
			if !gjson.Valid(body.String()) {
				parseErr = fmt.Errorf("%w: message body is not JSON", ErrInvalidNotification)
				return false
			}
			inner, err := ParseNotification([]byte(body.String()))
			if err != nil {
				parseErr = err
				return false
			}
			refs = append(refs, inner...)
			return true
		}

		bucket := record.Get("s3.bucket.name").String()
		rawKey := record.Get("s3.object.key").String()
		if bucket == "" || rawKey == "" {
			return true
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			parseErr = fmt.Errorf("%w: object key %q: %v", ErrInvalidNotification, rawKey, err)
			return false
		}
		refs = append(refs, ObjectRef{Bucket: bucket, Key: key})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return refs, nil
}
