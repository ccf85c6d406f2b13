// Package layout derives the on-disk locations used by the pipeline:
//
//	<root>/json/<artifact>                                 staging
//	<root>/<company>/<account>/<year>/*.pdf                input
//	<root>/<company>/<account>/<year>/json/<artifact>      organized
//	<root>/<company>/<account>/<year>/processed/*.pdf      archived sources
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout resolves paths under one root directory.
type Layout struct {
	Root string
}

func New(root string) Layout {
	return Layout{Root: root}
}

// StagingDir holds artifacts that are not yet persisted.
func (l Layout) StagingDir() string {
	return filepath.Join(l.Root, "json")
}

// StagingPath is the staging location of an artifact.
func (l Layout) StagingPath(artifact string) string {
	return filepath.Join(l.StagingDir(), artifact)
}

// InputDir holds the source PDFs of one account and year.
func (l Layout) InputDir(company, account, year string) string {
	return filepath.Join(l.Root, company, account, year)
}

// OrganizedDir holds persisted artifacts of one account and year.
func (l Layout) OrganizedDir(company, account, year string) string {
	return filepath.Join(l.InputDir(company, account, year), "json")
}

// OrganizedPath is the final location of an artifact.
func (l Layout) OrganizedPath(company, account, year, artifact string) string {
	return filepath.Join(l.OrganizedDir(company, account, year), artifact)
}

// ProcessedDir holds archived source PDFs.
func (l Layout) ProcessedDir(company, account, year string) string {
	return filepath.Join(l.InputDir(company, account, year), "processed")
}

// ObjectKey is the object-storage key mirroring a path under Root.
func (l Layout) ObjectKey(path string) (string, error) {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, l.Root)
	}
	return filepath.ToSlash(rel), nil
}

// ListPDFs returns the PDFs directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	return listByExt(dir, ".pdf")
}

// ListJSON returns the JSON files directly inside dir, sorted by name. A
// missing dir yields no files.
func ListJSON(dir string) ([]string, error) {
	files, err := listByExt(dir, ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

func listByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Move renames src to dst, creating dst's directory. An existing dst is
// never overwritten.
func Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, os.ErrExist)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), err)
	}
	return nil
}

// AccountDir is one <company>/<account> directory under Root.
type AccountDir struct {
	Company string
	Account string
}

// AccountDirs returns every company/account pair that has an input
// directory for year, sorted. The staging directory is not a company.
func (l Layout) AccountDirs(year string) ([]AccountDir, error) {
	companies, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, err
	}

	var out []AccountDir
	for _, c := range companies {
		if !c.IsDir() || c.Name() == "json" || strings.HasPrefix(c.Name(), ".") {
			continue
		}
		accounts, err := os.ReadDir(filepath.Join(l.Root, c.Name()))
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if !a.IsDir() {
				continue
			}
			info, err := os.Stat(l.InputDir(c.Name(), a.Name(), year))
			if err == nil && info.IsDir() {
				out = append(out, AccountDir{Company: c.Name(), Account: a.Name()})
			}
		}
	}
	return out, nil
}
