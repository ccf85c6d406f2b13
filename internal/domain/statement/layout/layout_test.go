package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Paths(t *testing.T) {
	l := New("/srv/FinancialStatements")

	assert.Equal(t, "/srv/FinancialStatements/json/1234032024.json", l.StagingPath("1234032024.json"))
	assert.Equal(t, "/srv/FinancialStatements/Acme LLC/000123451234/2024", l.InputDir("Acme LLC", "000123451234", "2024"))
	assert.Equal(t, "/srv/FinancialStatements/Acme LLC/000123451234/2024/json/1234032024.json",
		l.OrganizedPath("Acme LLC", "000123451234", "2024", "1234032024.json"))
	assert.Equal(t, "/srv/FinancialStatements/Acme LLC/000123451234/2024/processed", l.ProcessedDir("Acme LLC", "000123451234", "2024"))

	key, err := l.ObjectKey(l.OrganizedPath("Acme", "1", "2024", "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "Acme/1/2024/json/a.json", key)

	_, err = l.ObjectKey("/etc/passwd")
	assert.Error(t, err)
}

func TestListPDFs_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", "c.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "processed.pdf"), 0o755))

	files, err := ListPDFs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.pdf"),
	}, files)
}

func TestListJSON_MissingDir(t *testing.T) {
	files, err := ListJSON(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "json", "1234032024.json")
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestMove(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "json", "a.json")
	dst := filepath.Join(root, "Acme", "1", "2024", "json", "a.json")
	require.NoError(t, WriteFileAtomic(src, []byte("{}")))

	require.NoError(t, Move(src, dst))
	assert.False(t, Exists(src))
	assert.True(t, Exists(dst))
}

func TestMove_DoesNotOverwrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.json")
	dst := filepath.Join(root, "dst.json")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	err := Move(src, dst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))
	assert.True(t, Exists(src))

	got, _ := os.ReadFile(dst)
	assert.Equal(t, "old", string(got))
}

func TestAccountDirs(t *testing.T) {
	l := New(t.TempDir())
	for _, dir := range []string{
		l.InputDir("Acme", "000123451234", "2024"),
		l.InputDir("Acme", "000987650001", "2023"),
		l.InputDir("Beta Co", "000555550002", "2024"),
		l.StagingDir(),
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(l.Root, "README"), nil, 0o644))

	dirs, err := l.AccountDirs("2024")
	require.NoError(t, err)
	assert.Equal(t, []AccountDir{
		{Company: "Acme", Account: "000123451234"},
		{Company: "Beta Co", Account: "000555550002"},
	}, dirs)
}
