package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// ObjectStore is the part of pkg/storage the syncer needs.
type ObjectStore interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]*storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// SyncResult lists what a sync run did.
type SyncResult struct {
	Downloaded []string
	Existing   []string
	Removed    []string
}

// Syncer pulls statement PDFs from object storage into a batch's input
// directory. Objects are keyed like the local tree: <company>/<account>/<year>/<file>.pdf.
type Syncer struct {
	store  ObjectStore
	layout layout.Layout
	logger *slog.Logger
}

func NewSyncer(store ObjectStore, l layout.Layout, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, layout: l, logger: logger}
}

// Sync downloads every PDF under the batch prefix that is not already on
// disk. With move set, each downloaded or already present object is deleted
// from the store afterwards.
func (s *Syncer) Sync(ctx context.Context, b Batch, move bool) (SyncResult, error) {
	dir := s.layout.InputDir(b.Company, b.Account, b.Year)
	prefix, err := s.layout.ObjectKey(dir)
	if err != nil {
		return SyncResult{}, err
	}
	prefix += "/"

	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	var res SyncResult
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		// Only files directly in the year directory are inputs.
		if strings.Contains(rel, "/") || !strings.EqualFold(path.Ext(rel), ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		dst := filepath.Join(dir, rel)
		if layout.Exists(dst) {
			res.Existing = append(res.Existing, rel)
		} else {
			if err := s.download(ctx, obj.Key, dst); err != nil {
				return res, err
			}
			res.Downloaded = append(res.Downloaded, rel)
			s.logger.Info("statement downloaded", slog.String("key", obj.Key), slog.Int64("size", obj.Size))
		}

		if move {
			if err := s.store.Delete(ctx, obj.Key); err != nil {
				return res, fmt.Errorf("failed to delete %s: %w", obj.Key, err)
			}
			res.Removed = append(res.Removed, rel)
		}
	}
	return res, nil
}

func (s *Syncer) download(ctx context.Context, key, dst string) error {
	rc, err := s.store.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return layout.WriteFileAtomic(dst, data)
}
