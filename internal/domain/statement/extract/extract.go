// Package extract turns statement PDFs into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoText is returned when no extractor recovered any text.
var ErrNoText = errors.New("no text extracted from document")

// Extractor returns the best-effort text of the PDF at path.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// Chain tries each extractor in order and returns the first non-empty text.
type Chain struct {
	extractors []Extractor
	logger     *slog.Logger
}

// NewChain builds a Chain. The first extractor is the primary one.
func NewChain(logger *slog.Logger, extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors, logger: logger}
}

// Default is the in-process PDF reader followed by pdftotext.
func Default(logger *slog.Logger, pdftotextPath string) *Chain {
	return NewChain(logger, NewPDFReader(), NewPdftotext(pdftotextPath, nil))
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.extractors))
	for _, e := range c.extractors {
		names = append(names, e.Name())
	}
	return strings.Join(names, "+")
}

// Extract returns ErrNoText, joined with every extractor error, when all
// extractors come back empty.
func (c *Chain) Extract(ctx context.Context, path string) (string, error) {
	var errs []error
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := e.Extract(ctx, path)
		if err != nil {
			c.logger.Warn("text extractor failed",
				slog.String("extractor", e.Name()),
				slog.String("path", path),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			c.logger.Debug("text extractor returned no text",
				slog.String("extractor", e.Name()),
				slog.String("path", path),
			)
			continue
		}
		return text, nil
	}
	return "", errors.Join(append([]error{ErrNoText}, errs...)...)
}
