package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	slog.Debug("exec finished",
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds(),
		"stdout_bytes", out.Len(),
		"error", err,
	)
	return out.Bytes(), errb.Bytes(), err
}

// Pdftotext shells out to poppler's pdftotext.
type Pdftotext struct {
	bin    string
	runner Runner
}

// NewPdftotext builds the fallback extractor. A nil runner executes the
// real binary.
func NewPdftotext(bin string, runner Runner) *Pdftotext {
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = execRunner{}
	}
	return &Pdftotext{bin: bin, runner: runner}
}

func (p *Pdftotext) Name() string { return "pdftotext" }

func (p *Pdftotext) Extract(ctx context.Context, path string) (string, error) {
	out, errb, err := p.runner.Run(ctx, p.bin, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}
