package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(ctx context.Context, path string) (string, error) {
	f.calls++
	return f.text, f.err
}

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error
	name   string
	args   []string
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	return s.stdout, s.stderr, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_PrimaryWins(t *testing.T) {
	primary := &fakeExtractor{name: "primary", text: "BEGINNING BALANCE 1,000.00"}
	fallback := &fakeExtractor{name: "fallback", text: "unused"}

	text, err := NewChain(discardLogger(), primary, fallback).Extract(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "BEGINNING BALANCE 1,000.00", text)
	assert.Equal(t, 0, fallback.calls)
}

func TestChain_FallsBackOnErrorOrEmptyText(t *testing.T) {
	tests := []struct {
		name    string
		primary *fakeExtractor
	}{
		{"primary error", &fakeExtractor{name: "primary", err: errors.New("bad xref")}},
		{"primary blank", &fakeExtractor{name: "primary", text: "  \n\f "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeExtractor{name: "fallback", text: "ENDING BALANCE"}
			text, err := NewChain(discardLogger(), tt.primary, fallback).Extract(context.Background(), "a.pdf")
			require.NoError(t, err)
			assert.Equal(t, "ENDING BALANCE", text)
			assert.Equal(t, 1, fallback.calls)
		})
	}
}

func TestChain_AllFail(t *testing.T) {
	primary := &fakeExtractor{name: "primary", err: errors.New("encrypted")}
	fallback := &fakeExtractor{name: "fallback", text: ""}

	_, err := NewChain(discardLogger(), primary, fallback).Extract(context.Background(), "a.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoText)
	assert.Contains(t, err.Error(), "encrypted")
}

func TestChain_Name(t *testing.T) {
	c := NewChain(discardLogger(), &fakeExtractor{name: "a"}, &fakeExtractor{name: "b"})
	assert.Equal(t, "a+b", c.Name())
}

func TestPdftotext_Args(t *testing.T) {
	runner := &stubRunner{stdout: []byte("page one\fpage two")}
	p := NewPdftotext("", runner)

	text, err := p.Extract(context.Background(), "/tmp/s.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page one\fpage two", text)
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "/tmp/s.pdf", "-"}, runner.args)
}

func TestPdftotext_Error(t *testing.T) {
	runner := &stubRunner{stderr: []byte("Syntax Error: Couldn't find trailer dictionary"), err: errors.New("exit status 1")}

	_, err := NewPdftotext("/usr/bin/pdftotext", runner).Extract(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailer dictionary")
}

func TestPDFReader_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, err := NewPDFReader().Extract(context.Background(), path)
	assert.Error(t, err)
}
