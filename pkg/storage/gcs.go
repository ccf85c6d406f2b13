package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorage implements Storage on a Google Cloud Storage bucket. Without a
// credentials file it relies on Application Default Credentials.
type GCSStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func NewGCSStorage(ctx context.Context, cfg *Config) (*GCSStorage, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStorage{client: client, bucket: client.Bucket(cfg.GCSBucket)}, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) Upload(ctx context.Context, key, contentType string, r io.Reader) (*ObjectInfo, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	w := s.bucket.Object(k).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("copy file to GCS writer: %w", err)
	}
	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}
	return fromAttrs(w.Attrs()), nil
}

func (s *GCSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(k).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
		}
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return rc, nil
}

func (s *GCSStorage) GetInfo(ctx context.Context, key string) (*ObjectInfo, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	attrs, err := s.bucket.Object(k).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
		}
		return nil, fmt.Errorf("read GCS object attrs: %w", err)
	}
	return fromAttrs(attrs), nil
}

func (s *GCSStorage) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})

	var out []*ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects: %w", err)
		}
		out = append(out, fromAttrs(attrs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(k).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete GCS object: %w", err)
	}
	return nil
}

func fromAttrs(a *gcs.ObjectAttrs) *ObjectInfo {
	if a == nil {
		return &ObjectInfo{}
	}
	return &ObjectInfo{
		Key:          a.Name,
		Size:         a.Size,
		ContentType:  a.ContentType,
		LastModified: a.Updated,
	}
}
