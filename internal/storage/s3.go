package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shopcraft/media-pipeline/internal/objectkey"
)

// S3Backend stores objects in an S3-compatible bucket. All workspaces
// share one pool bucket; tenancy lives in the key prefix.
type S3Backend struct {
	client       *minio.Client
	bucket       string
	writeTimeout time.Duration
}

func NewS3Backend(cfg Config) (*S3Backend, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{Region: cfg.S3Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &S3Backend{client: client, bucket: cfg.S3Bucket, writeTimeout: timeout}, nil
}

func (b *S3Backend) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.writeTimeout)
		defer cancel()
	}
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControlForKey(key),
	}
	if _, err := b.client.PutObject(ctx, b.bucket, key, r, size, opts); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// cacheControlForKey reads the version folder out of a resolved key,
// which follows workspaces/{ws}/media/{upload}/{kind}/{version}/{file}.
func cacheControlForKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 7 {
		return objectkey.CacheControlFor(parts[5])
	}
	return objectkey.CacheControlFor("")
}

func (b *S3Backend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}

func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			return obj.Err
		}
		if err := b.client.RemoveObject(ctx, b.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
