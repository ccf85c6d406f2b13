package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader extracts text in-process. When the document-level plain text
// call fails it walks pages one by one and keeps whatever pages decode.
type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (p *PDFReader) Name() string { return "pdf-reader" }

func (p *PDFReader) Extract(ctx context.Context, path string) (text string, err error) {
	// The pdf package panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	if plain, perr := r.GetPlainText(); perr == nil {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, plain); err == nil && strings.TrimSpace(buf.String()) != "" {
			return buf.String(), nil
		}
	}

	return pageText(ctx, r)
}

func pageText(ctx context.Context, r *pdf.Reader) (string, error) {
	var b strings.Builder
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
