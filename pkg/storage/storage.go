// Package storage provides object storage with local, S3 and GCS backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo contains metadata about a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// Storage defines object storage operations, keyed by slash-separated paths
type Storage interface {
	// Upload stores r under key, replacing any existing object
	Upload(ctx context.Context, key, contentType string, r io.Reader) (*ObjectInfo, error)

	// Download opens the object at key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetInfo returns metadata for an object without downloading it
	GetInfo(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns every object whose key starts with prefix, sorted by key
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)

	// Delete removes the object at key
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeGCS   StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// Local storage config
	LocalPath string

	// S3 storage config
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)

	// GCS storage config
	GCSBucket          string
	GCSCredentialsFile string
}

// New creates a Storage implementation based on configuration
func New(ctx context.Context, cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg)
	case StorageTypeGCS:
		return NewGCSStorage(ctx, cfg)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// cleanKey rejects keys that escape the storage root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}
