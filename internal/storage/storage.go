// Package storage abstracts durable blob storage behind a small backend
// interface. Concurrent writes to different keys need no coordination;
// key uniqueness is the path resolver's job.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("storage: object not found")

type Backend interface {
	// Write stores the full content of r under key and returns the stored
	// key. It must respect ctx deadlines so a slow backend surfaces as a
	// retryable error instead of hanging the caller.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	Read(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the prefix. Used when an
	// upload is explicitly deleted.
	DeletePrefix(ctx context.Context, prefix string) error

	Exists(ctx context.Context, key string) (bool, error)
}

type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendS3    BackendType = "s3"
)

type Config struct {
	Type BackendType

	LocalPath string

	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// WriteTimeout bounds each Write call when the caller's context has
	// no tighter deadline.
	WriteTimeout time.Duration
}

func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Type {
	case BackendS3:
		return NewS3Backend(cfg)
	default:
		return NewLocalBackend(cfg)
	}
}
