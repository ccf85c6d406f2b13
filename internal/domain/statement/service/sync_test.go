package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

func TestSyncer_DownloadsNewPDFs(t *testing.T) {
	ctx := context.Background()
	l := layout.New(t.TempDir())
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	prefix := "Acme/" + testAccount + "/2024/"
	for key, body := range map[string]string{
		prefix + "20240131-statements-1234-.pdf": "%PDF-jan",
		prefix + "20240229-statements-1234-.pdf": "%PDF-feb",
		prefix + "notes.txt":                     "ignore",
		prefix + "processed/old.pdf":             "ignore",
		"Acme/999999999999/2024/other.pdf":       "ignore",
	} {
		_, err := store.Upload(ctx, key, "application/pdf", strings.NewReader(body))
		require.NoError(t, err)
	}

	b := Batch{Company: "Acme", Account: testAccount, Year: "2024"}
	in := l.InputDir(b.Company, b.Account, b.Year)
	require.NoError(t, layout.WriteFileAtomic(filepath.Join(in, "20240229-statements-1234-.pdf"), []byte("local")))

	s := NewSyncer(store, l, discard())
	res, err := s.Sync(ctx, b, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"20240131-statements-1234-.pdf"}, res.Downloaded)
	assert.Equal(t, []string{"20240229-statements-1234-.pdf"}, res.Existing)
	assert.Empty(t, res.Removed)

	got, err := os.ReadFile(filepath.Join(in, "20240131-statements-1234-.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-jan", string(got))

	kept, err := os.ReadFile(filepath.Join(in, "20240229-statements-1234-.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(kept), "existing files are not overwritten")
}

func TestSyncer_MoveDeletesRemote(t *testing.T) {
	ctx := context.Background()
	l := layout.New(t.TempDir())
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "Acme/" + testAccount + "/2024/" + testPDF
	_, err = store.Upload(ctx, key, "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	b := Batch{Company: "Acme", Account: testAccount, Year: "2024"}
	res, err := NewSyncer(store, l, discard()).Sync(ctx, b, true)
	require.NoError(t, err)
	assert.Equal(t, []string{testPDF}, res.Removed)

	_, err = store.GetInfo(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, layout.Exists(filepath.Join(l.InputDir(b.Company, b.Account, b.Year), testPDF)))
}
