package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopcraft/media-pipeline/internal/storage"
)

type config struct {
	NATSURL       string
	JobSubject    string
	WorkerQueue   string
	ResultSubject string

	DatabasePath string

	StorageType  storage.BackendType
	LocalPath    string
	S3Endpoint   string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3UseSSL     bool
	WriteTimeout time.Duration

	MockURLs      bool
	LocalURLBase  string
	CDNDomains    map[string]string
	DefaultDomain string

	MaxImageBytes int64
	ImageRetries  int
	MediaRetries  int
	BackoffBase   time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		NATSURL:       getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:    getenv("VARIANT_JOB_SUBJECT", "media.variants.jobs"),
		WorkerQueue:   getenv("VARIANT_WORKER_QUEUE", "variant-workers"),
		ResultSubject: getenv("VARIANT_RESULT_SUBJECT", "media.variants.done"),
		DatabasePath:  getenv("DATABASE_PATH", "./data/media.db"),
		StorageType:   storage.BackendType(getenv("STORAGE_BACKEND", "local")),
		LocalPath:     getenv("STORAGE_LOCAL_PATH", "./data/media"),
		S3Endpoint:    getenv("S3_ENDPOINT", ""),
		S3Bucket:      getenv("S3_BUCKET", "media-pool"),
		S3AccessKey:   getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getenv("S3_SECRET_KEY", ""),
		S3Region:      getenv("S3_REGION", "us-east-1"),
		S3UseSSL:      getenv("S3_USE_SSL", "false") == "true",
		MockURLs:      getenv("URL_MODE", "mock") == "mock",
		LocalURLBase:  getenv("LOCAL_URL_BASE", "/media"),
		DefaultDomain: getenv("CDN_DEFAULT_DOMAIN", "cdn.example.com"),
	}

	writeTimeout, err := parsePositiveInt(getenv("STORAGE_WRITE_TIMEOUT_SECONDS", "30"), "STORAGE_WRITE_TIMEOUT_SECONDS")
	if err != nil {
		return config{}, err
	}
	cfg.WriteTimeout = time.Duration(writeTimeout) * time.Second

	maxImageMB, err := parsePositiveInt(getenv("MAX_IMAGE_MB", "5"), "MAX_IMAGE_MB")
	if err != nil {
		return config{}, err
	}
	cfg.MaxImageBytes = int64(maxImageMB) << 20

	cfg.ImageRetries, err = parsePositiveInt(getenv("IMAGE_JOB_RETRIES", "3"), "IMAGE_JOB_RETRIES")
	if err != nil {
		return config{}, err
	}
	cfg.MediaRetries, err = parsePositiveInt(getenv("MEDIA_JOB_RETRIES", "2"), "MEDIA_JOB_RETRIES")
	if err != nil {
		return config{}, err
	}

	backoffMS, err := parsePositiveInt(getenv("JOB_BACKOFF_MS", "2000"), "JOB_BACKOFF_MS")
	if err != nil {
		return config{}, err
	}
	cfg.BackoffBase = time.Duration(backoffMS) * time.Millisecond

	if domains := getenv("CDN_DOMAINS", ""); domains != "" {
		cfg.CDNDomains, err = parseCDNDomains(domains)
		if err != nil {
			return config{}, fmt.Errorf("parse CDN_DOMAINS: %w", err)
		}
	}

	return cfg, nil
}

// parseCDNDomains reads "workspace=domain" pairs separated by commas.
func parseCDNDomains(value string) (map[string]string, error) {
	domains := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid pair %q, expected 'workspace=domain'", pair)
		}
		domains[parts[0]] = parts[1]
	}
	return domains, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
