package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
)

// Batch names one input directory: <root>/<company>/<account>/<year>.
type Batch struct {
	Company string
	Account string
	Year    string
	// FirstOnly processes only the first file, for trial runs.
	FirstOnly bool
}

func (b Batch) String() string {
	return filepath.Join(b.Company, b.Account, b.Year)
}

// Suffix is the last four characters of the account number.
func (b Batch) Suffix() string {
	if len(b.Account) <= 4 {
		return b.Account
	}
	return b.Account[len(b.Account)-4:]
}

// ProcessDirectory runs every PDF of the batch through the full pipeline,
// in name order. The error is only set when the directory cannot be read.
func (p *Pipeline) ProcessDirectory(ctx context.Context, b Batch) ([]statement.Outcome, error) {
	files, err := p.inputFiles(b)
	if err != nil {
		return nil, err
	}
	return p.runBatch(ctx, "complete-process", b, files, func(ctx context.Context, path string) statement.Result {
		return p.ProcessDocument(ctx, b, path)
	}), nil
}

// CreateJSON stages validated artifacts for every PDF of the batch without
// touching the database.
func (p *Pipeline) CreateJSON(ctx context.Context, b Batch) ([]statement.Outcome, error) {
	files, err := p.inputFiles(b)
	if err != nil {
		return nil, err
	}
	return p.runBatch(ctx, "create-json", b, files, func(ctx context.Context, path string) statement.Result {
		return p.ExtractDocument(ctx, b, path)
	}), nil
}

// ProcessJSON persists and archives the batch's artifacts found at staging
// and in the organized directory.
func (p *Pipeline) ProcessJSON(ctx context.Context, b Batch) ([]statement.Outcome, error) {
	files, err := p.artifactFiles(b)
	if err != nil {
		return nil, err
	}
	return p.runBatch(ctx, "process-json", b, files, func(ctx context.Context, path string) statement.Result {
		return p.ProcessArtifact(ctx, path)
	}), nil
}

// ProcessArtifact persists one already-validated artifact and archives it.
func (p *Pipeline) ProcessArtifact(ctx context.Context, path string) statement.Result {
	ctx, span := p.tracer.Start(ctx, "statement.process_artifact")
	defer span.End()

	r := &run{res: statement.Result{Filename: filepath.Base(path), Stage: statement.StageDiscovered}}
	if res, ok := p.loadArtifact(r, path, ""); !ok {
		return res
	}

	stored, err := p.repo.StatementExists(ctx, r.data.Filename)
	if err != nil {
		return r.fail(statement.StageJSONPersisted, statement.KindPersistenceFailure, "idempotency check failed", err)
	}
	if stored {
		return r.skip("statement already stored for " + r.data.Filename)
	}
	return p.persistAndArchive(ctx, r)
}

func (p *Pipeline) inputFiles(b Batch) ([]string, error) {
	dir := p.layout.InputDir(b.Company, b.Account, b.Year)
	files, err := layout.ListPDFs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}
	if b.FirstOnly && len(files) > 1 {
		files = files[:1]
	}
	return files, nil
}

func (p *Pipeline) artifactFiles(b Batch) ([]string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(b.Suffix()) + `(0[1-9]|1[0-2])` + regexp.QuoteMeta(b.Year) + `\.json$`)

	var out []string
	for _, dir := range []string{p.layout.StagingDir(), p.layout.OrganizedDir(b.Company, b.Account, b.Year)} {
		files, err := layout.ListJSON(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact directory %s: %w", dir, err)
		}
		for _, f := range files {
			if pattern.MatchString(filepath.Base(f)) {
				out = append(out, f)
			}
		}
	}
	if b.FirstOnly && len(out) > 1 {
		out = out[:1]
	}
	return out, nil
}

// runBatch processes files one at a time. A failed document never stops
// the rest; a cancelled context stops before the next document.
func (p *Pipeline) runBatch(
	ctx context.Context,
	op string,
	b Batch,
	files []string,
	fn func(context.Context, string) statement.Result,
) []statement.Outcome {
	runID := uuid.New().String()
	logger := p.logger.With(
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("batch", b.String()),
	)
	logger.Info("batch started", slog.Int("documents", len(files)))

	outcomes := make([]statement.Outcome, 0, len(files))
	for _, path := range files {
		if ctx.Err() != nil {
			logger.Warn("batch interrupted", slog.Any("error", ctx.Err()))
			break
		}

		res := fn(ctx, path)
		o := res.Outcome()
		p.metrics.ObserveDocument(o)
		outcomes = append(outcomes, o)

		attrs := []any{
			slog.String("filename", o.Filename),
			slog.String("status", string(o.Status)),
			slog.String("stage", string(o.Stage)),
		}
		switch o.Status {
		case statement.StatusError:
			logger.Error("document failed", append(attrs, slog.String("kind", string(o.Kind)), slog.String("message", o.Message))...)
		case statement.StatusSkipped:
			logger.Info("document skipped", append(attrs, slog.String("reason", o.Message))...)
		default:
			logger.Info("document processed", attrs...)
		}
	}

	s := Summarize(outcomes)
	logger.Info("batch finished",
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("warnings", s.Warnings),
	)
	return outcomes
}

// Summary counts batch outcomes by status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Warnings  int
}

func Summarize(outcomes []statement.Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case statement.StatusSuccess:
			s.Succeeded++
			if o.Kind == statement.KindArchivalWarning {
				s.Warnings++
			}
		case statement.StatusError:
			s.Failed++
		case statement.StatusSkipped:
			s.Skipped++
			if o.Kind == statement.KindArchivalWarning {
				s.Warnings++
			}
		}
	}
	return s
}
