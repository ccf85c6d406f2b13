package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/identity"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
)

type mockChecker struct {
	exists       bool
	existsByDate bool
	err          error
	calls        []string
}

func (m *mockChecker) StatementExists(ctx context.Context, filename string) (bool, error) {
	m.calls = append(m.calls, "filename:"+filename)
	return m.exists, m.err
}

func (m *mockChecker) StatementExistsForDate(ctx context.Context, id int64, date time.Time) (bool, error) {
	m.calls = append(m.calls, "date:"+date.Format("2006-01-02"))
	return m.existsByDate, m.err
}

func newDoc() Document {
	return Document{
		Filename: "20240315-statements-1234-foo.pdf",
		Identity: identity.Identity{Suffix: "1234", Month: "03", Year: "2024"},
		Company:  "Acme",
		Account:  "000123451234",
		Year:     "2024",
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheck_DatabaseShortCircuits(t *testing.T) {
	l := layout.New(t.TempDir())
	// An artifact exists too, but the database answer wins.
	require.NoError(t, layout.WriteFileAtomic(l.StagingPath("1234032024.json"), []byte("{}")))

	repo := &mockChecker{exists: true}
	got, err := New(repo, l, discard()).Check(context.Background(), newDoc())
	require.NoError(t, err)

	assert.True(t, got.DatabaseComplete)
	assert.False(t, got.JSONComplete)
	assert.Empty(t, got.ArtifactPath)
	assert.Equal(t, []string{"filename:20240315-statements-1234-foo.pdf"}, repo.calls)
}

func TestCheck_StagingArtifact(t *testing.T) {
	l := layout.New(t.TempDir())
	staged := l.StagingPath("1234032024.json")
	require.NoError(t, layout.WriteFileAtomic(staged, []byte("{}")))

	got, err := New(&mockChecker{}, l, discard()).Check(context.Background(), newDoc())
	require.NoError(t, err)

	assert.False(t, got.DatabaseComplete)
	assert.True(t, got.JSONComplete)
	assert.Equal(t, staged, got.ArtifactPath)
	assert.Equal(t, LocationStaging, got.ArtifactLocation)
}

func TestCheck_OrganizedArtifact(t *testing.T) {
	l := layout.New(t.TempDir())
	organized := l.OrganizedPath("Acme", "000123451234", "2024", "1234032024.json")
	require.NoError(t, layout.WriteFileAtomic(organized, []byte("{}")))

	got, err := New(&mockChecker{}, l, discard()).Check(context.Background(), newDoc())
	require.NoError(t, err)
	assert.True(t, got.JSONComplete)
	assert.Equal(t, organized, got.ArtifactPath)
	assert.Equal(t, LocationOrganized, got.ArtifactLocation)
}

func TestCheck_NothingDone(t *testing.T) {
	l := layout.New(t.TempDir())
	// Artifact for a different month must not count.
	require.NoError(t, layout.WriteFileAtomic(filepath.Join(l.StagingDir(), "1234042024.json"), []byte("{}")))

	got, err := New(&mockChecker{}, l, discard()).Check(context.Background(), newDoc())
	require.NoError(t, err)
	assert.Equal(t, Completion{}, got)
}

func TestCheck_DatabaseError(t *testing.T) {
	repo := &mockChecker{err: errors.New("connection refused")}
	_, err := New(repo, layout.New(t.TempDir()), discard()).Check(context.Background(), newDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStoredForDate(t *testing.T) {
	repo := &mockChecker{existsByDate: true}
	stored, err := New(repo, layout.New(t.TempDir()), discard()).
		StoredForDate(context.Background(), 3, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, []string{"date:2024-03-31"}, repo.calls)
}
