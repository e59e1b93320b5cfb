package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopcraft/media-pipeline/pkg/schema"
)

// ValidationError carries the structured rejection reason for bad input.
// It is always recoverable by the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// StorageError marks a read/write failure against the blob backend.
// Retryable during the async phase; on the synchronous original-write
// path a single occurrence aborts the submission.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// TranscodeError marks one variant's generation failure. It is caught
// per-variant and never aborts the remaining variants or the job.
type TranscodeError struct {
	Variant string
	Err     error
}

func (e TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Variant, e.Err)
}

func (e TranscodeError) Unwrap() error { return e.Err }

// classifyFailure buckets an error for the result events.
func classifyFailure(err error) schema.FailureType {
	if err == nil {
		return ""
	}
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return schema.FailureTypeValidation
	}
	var storageErr StorageError
	if errors.As(err, &storageErr) {
		return schema.FailureTypeRetryable
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "context deadline exceeded") {
		return schema.FailureTypeRetryable
	}
	if strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "decode") {
		return schema.FailureTypePermanent
	}
	return schema.FailureTypeRetryable
}
