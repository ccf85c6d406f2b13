// Package service drives statement documents through the ingestion pipeline:
// text extraction, model completion, validation, persistence and archival.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/completion"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/identity"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/repository"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/schema"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/tracker"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/statement-ingest/pipeline"

// TextExtractor turns a PDF into text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Completer returns the raw model response for a document.
type Completer interface {
	Complete(ctx context.Context, filename, text string) (completion.Response, error)
}

// ArtifactUploader mirrors archived artifacts to object storage.
type ArtifactUploader interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (*storage.ObjectInfo, error)
}

// Options toggles optional archival behaviour.
type Options struct {
	// ArchiveSourcePDFs moves a persisted document's PDF into processed/.
	ArchiveSourcePDFs bool
	// UploadArtifacts copies each archived artifact to object storage.
	UploadArtifacts bool
	// AccountCacheTTL bounds how long resolved accounts are reused.
	AccountCacheTTL time.Duration
}

// Pipeline is the per-document state machine plus the batch runners built
// on it.
type Pipeline struct {
	extractor  TextExtractor
	completer  Completer
	validator  *schema.Validator
	repo       repository.StatementRepository
	tracker    *tracker.Tracker
	accounts   *AccountResolver
	identities *identity.Extractor
	layout     layout.Layout
	uploader   ArtifactUploader
	metrics    *Metrics
	tracer     trace.Tracer
	opts       Options
	logger     *slog.Logger
}

// NewPipeline wires the pipeline. Storage and metrics are optional and set
// with WithUploader and WithMetrics.
func NewPipeline(
	repo repository.StatementRepository,
	extractor TextExtractor,
	completer Completer,
	validator *schema.Validator,
	l layout.Layout,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		completer:  completer,
		validator:  validator,
		repo:       repo,
		tracker:    tracker.New(repo, l, logger),
		accounts:   NewAccountResolver(repo, opts.AccountCacheTTL, logger),
		identities: identity.Default(),
		layout:     l,
		tracer:     otel.Tracer(tracerName),
		opts:       opts,
		logger:     logger,
	}
}

// WithUploader sets the object storage used for artifact uploads.
func (p *Pipeline) WithUploader(u ArtifactUploader) *Pipeline {
	p.uploader = u
	return p
}

// WithMetrics sets the Prometheus collectors.
func (p *Pipeline) WithMetrics(m *Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithIdentityExtractor replaces the default filename patterns.
func (p *Pipeline) WithIdentityExtractor(e *identity.Extractor) *Pipeline {
	p.identities = e
	return p
}

// Accounts exposes the account resolver for listing.
func (p *Pipeline) Accounts() *AccountResolver {
	return p.accounts
}

// Layout returns the filesystem layout the pipeline works in.
func (p *Pipeline) Layout() layout.Layout {
	return p.layout
}

// run carries a document between stages.
type run struct {
	res      statement.Result
	doc      tracker.Document
	pdfPath  string
	artifact string
	raw      json.RawMessage
	data     statement.StatementData
	account  *statement.AccountReference
	jsonOnly bool
}

// fail records the stage being attempted; res.Stage keeps the last one
// completed.
func (r *run) fail(stage statement.Stage, kind statement.ErrorKind, msg string, err error) statement.Result {
	r.res.Err = statement.Fail(stage, kind, msg, err)
	return r.res
}

func (r *run) skip(reason string) statement.Result {
	r.res.Skipped = true
	r.res.Reason = reason
	return r.res
}

func (r *run) warn(kind statement.ErrorKind, msg string) {
	r.res.Warnings = append(r.res.Warnings, statement.Warning{Kind: kind, Message: msg})
}

// ProcessDocument drives one PDF through every stage. The returned Result
// is either Ok, Skipped, or carries the StageError of the failed stage.
func (p *Pipeline) ProcessDocument(ctx context.Context, b Batch, pdfPath string) statement.Result {
	return p.process(ctx, b, pdfPath, false)
}

// ExtractDocument stops after the artifact is validated and staged.
func (p *Pipeline) ExtractDocument(ctx context.Context, b Batch, pdfPath string) statement.Result {
	return p.process(ctx, b, pdfPath, true)
}

func (p *Pipeline) process(ctx context.Context, b Batch, pdfPath string, jsonOnly bool) statement.Result {
	filename := filepath.Base(pdfPath)
	ctx, span := p.tracer.Start(ctx, "statement.process", trace.WithAttributes(
		attribute.String("statement.filename", filename),
		attribute.Bool("statement.json_only", jsonOnly),
	))
	defer span.End()

	r := &run{
		res:      statement.Result{Filename: filename, Stage: statement.StageDiscovered},
		pdfPath:  pdfPath,
		jsonOnly: jsonOnly,
	}
	res := p.drive(ctx, b, r)

	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
		span.SetAttributes(attribute.String("statement.error_kind", string(res.Err.Kind)))
	}
	span.SetAttributes(attribute.String("statement.stage", string(res.Stage)))
	return res
}

func (p *Pipeline) drive(ctx context.Context, b Batch, r *run) statement.Result {
	id, err := p.identities.Extract(r.res.Filename)
	if err != nil {
		return r.fail(statement.StageDiscovered, statement.KindIdentityFailure, "cannot derive statement identity", err)
	}
	r.doc = tracker.Document{
		Filename: r.res.Filename,
		Identity: id,
		Company:  b.Company,
		Account:  b.Account,
		Year:     b.Year,
	}

	done, err := p.tracker.Check(ctx, r.doc)
	if err != nil {
		return r.fail(statement.StageDiscovered, statement.KindPersistenceFailure, "idempotency check failed", err)
	}
	if done.DatabaseComplete {
		return r.skip("statement already stored")
	}

	if done.JSONComplete {
		if r.jsonOnly {
			r.res.Stage = statement.StageJSONValidated
			return r.skip("artifact already extracted at " + done.ArtifactPath)
		}
		p.logger.Info("resuming from existing artifact",
			slog.String("filename", r.res.Filename),
			slog.String("artifact", done.ArtifactPath),
		)
		if res, ok := p.loadArtifact(r, done.ArtifactPath, r.res.Filename); !ok {
			return res
		}
	} else {
		if res, ok := p.fromSource(ctx, r); !ok {
			return res
		}
	}

	if r.jsonOnly {
		data := r.data
		r.res.Statement = &data
		return r.res
	}
	return p.persistAndArchive(ctx, r)
}

// fromSource runs extraction, completion and validation, and stages the
// resulting artifact.
func (p *Pipeline) fromSource(ctx context.Context, r *run) (statement.Result, bool) {
	var text string
	err := p.stage(ctx, statement.StageTextExtracted, func(ctx context.Context) error {
		var err error
		text, err = p.extractor.Extract(ctx, r.pdfPath)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("no text")
		}
		return err
	})
	if err != nil {
		return r.fail(statement.StageTextExtracted, statement.KindExtractionFailure, "no text", err), false
	}
	r.res.Stage = statement.StageTextExtracted

	var resp completion.Response
	err = p.stage(ctx, statement.StageModelCompleted, func(ctx context.Context) error {
		var err error
		resp, err = p.completer.Complete(ctx, r.res.Filename, text)
		return err
	})
	if err != nil {
		return r.fail(statement.StageModelCompleted, statement.KindCompletionFailure, "model completion failed", err), false
	}
	r.res.Stage = statement.StageModelCompleted
	if resp.UsedFallback {
		p.logger.Info("fallback model used", slog.String("filename", r.res.Filename), slog.String("model", resp.Model))
	}

	payload, err := completion.ParsePayload(resp.Text)
	if err != nil {
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "unparseable model response", err), false
	}
	if payload.Failed() {
		return r.fail(statement.StageJSONValidated, kindForModelError(payload.Error), "model could not parse statement", payload.Error), false
	}

	payload.Data["filename"] = r.res.Filename
	if res, ok := p.validate(r, payload.Data); !ok {
		return res, false
	}

	r.artifact = p.layout.StagingPath(r.doc.Identity.ArtifactName())
	if err := p.writeArtifact(r.artifact, r.data); err != nil {
		return r.fail(statement.StageJSONValidated, statement.KindPersistenceFailure, "cannot stage artifact", err), false
	}
	p.logger.Info("artifact staged",
		slog.String("filename", r.res.Filename),
		slog.String("artifact", r.artifact),
	)
	return r.res, true
}

// validate normalizes then validates raw, filling r.data and r.raw.
func (p *Pipeline) validate(r *run, raw map[string]any) (statement.Result, bool) {
	start := time.Now()
	defer func() { p.metrics.ObserveStage(statement.StageJSONValidated, time.Since(start)) }()

	if err := schema.Normalize(raw); err != nil {
		if errors.Is(err, schema.ErrStatementDateMissing) {
			return r.fail(statement.StageJSONValidated, statement.KindDateMissing, "statement date missing", err), false
		}
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "cannot normalize payload", err), false
	}

	data, err := p.validator.Validate(raw)
	if err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "schema validation failed", ve), false
		}
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "validation could not run", err), false
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "cannot encode payload", err), false
	}

	r.data = data
	r.raw = encoded
	r.res.Stage = statement.StageJSONValidated
	return r.res, true
}

// writeArtifact stages the validated statement in its canonical form.
func (p *Pipeline) writeArtifact(path string, data statement.StatementData) error {
	out, err := schema.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	return layout.WriteFileAtomic(path, out)
}

// loadArtifact reads and validates a previously staged artifact. filename
// overrides the artifact's own filename field when set.
func (p *Pipeline) loadArtifact(r *run, path, filename string) (statement.Result, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return r.fail(statement.StageJSONValidated, statement.KindPersistenceFailure, "cannot read artifact", err), false
	}
	doc, err := schema.DecodeJSON(b)
	if err != nil {
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "artifact is not valid JSON", err), false
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return r.fail(statement.StageJSONValidated, statement.KindMalformedResponse, "artifact is not a JSON object", nil), false
	}

	if filename != "" {
		raw["filename"] = filename
	} else if s, _ := raw["filename"].(string); strings.TrimSpace(s) == "" {
		raw["filename"] = filepath.Base(path)
	}

	r.artifact = path
	return p.validate(r, raw)
}

// persistAndArchive resolves the account, writes the statement and moves
// the artifact to its organized location.
func (p *Pipeline) persistAndArchive(ctx context.Context, r *run) statement.Result {
	account, err := p.accounts.Resolve(ctx, r.data.AccountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			msg := "account not found: " + r.data.AccountNumber
			if s := p.accounts.Suggest(ctx, r.data.AccountNumber); len(s) > 0 {
				msg += " (did you mean " + strings.Join(s, ", ") + "?)"
			}
			return r.fail(statement.StageJSONPersisted, statement.KindAccountNotFound, msg, err)
		}
		return r.fail(statement.StageJSONPersisted, statement.KindPersistenceFailure, "account lookup failed", err)
	}
	r.account = account

	stored, err := p.tracker.StoredForDate(ctx, account.ID, r.data.StatementDate)
	if err != nil {
		return r.fail(statement.StageJSONPersisted, statement.KindPersistenceFailure, "idempotency check failed", err)
	}
	if stored {
		p.archive(ctx, r)
		return r.skip(fmt.Sprintf("statement for %s dated %s already stored",
			account.AccountNumber, r.data.StatementDate.Format(statement.DateLayout)))
	}

	rec := statement.NewRecord(account, r.data, r.raw)
	err = p.stage(ctx, statement.StageJSONPersisted, func(ctx context.Context) error {
		_, err := p.repo.SaveStatement(ctx, rec)
		return err
	})
	if err != nil {
		return r.fail(statement.StageJSONPersisted, statement.KindPersistenceFailure, "cannot store statement", err)
	}
	r.res.Stage = statement.StageJSONPersisted
	p.logger.Info("statement stored",
		slog.String("filename", r.res.Filename),
		slog.Int64("statement_id", rec.ID),
		slog.Int("deposits", len(rec.Deposits)),
		slog.Int("withdrawals", len(rec.Withdrawals)),
	)

	p.archive(ctx, r)
	r.res.Stage = statement.StageArtifactArchived
	data := r.data
	r.res.Statement = &data
	return r.res
}

// archive moves the artifact (and optionally the PDF) into the organized
// tree. Failures become warnings.
func (p *Pipeline) archive(ctx context.Context, r *run) {
	if r.artifact == "" || r.account == nil {
		return
	}
	year := r.data.StatementDate.Format("2006")
	dst := p.layout.OrganizedPath(r.account.CompanyName, r.account.AccountNumber, year, filepath.Base(r.artifact))

	if r.artifact != dst {
		if err := layout.Move(r.artifact, dst); err != nil {
			msg := fmt.Sprintf("could not move artifact: %v; it remains at %s", err, r.artifact)
			p.logger.Warn("artifact archival failed",
				slog.String("filename", r.res.Filename),
				slog.String("artifact", r.artifact),
				slog.Any("error", err),
			)
			r.warn(statement.KindArchivalWarning, msg)
			return
		}
		r.artifact = dst
	}

	if p.opts.ArchiveSourcePDFs && r.pdfPath != "" && layout.Exists(r.pdfPath) {
		pdfDst := filepath.Join(p.layout.ProcessedDir(r.account.CompanyName, r.account.AccountNumber, year), filepath.Base(r.pdfPath))
		if err := layout.Move(r.pdfPath, pdfDst); err != nil {
			p.logger.Warn("source archival failed", slog.String("filename", r.res.Filename), slog.Any("error", err))
			r.warn(statement.KindArchivalWarning, fmt.Sprintf("could not archive source PDF: %v", err))
		}
	}

	if p.opts.UploadArtifacts && p.uploader != nil {
		if err := p.upload(ctx, r.artifact); err != nil {
			p.logger.Warn("artifact upload failed", slog.String("filename", r.res.Filename), slog.Any("error", err))
			r.warn(statement.KindArchivalWarning, fmt.Sprintf("could not upload artifact: %v", err))
		}
	}
}

func (p *Pipeline) upload(ctx context.Context, path string) error {
	key, err := p.layout.ObjectKey(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = p.uploader.Upload(ctx, key, "application/json", f)
	return err
}

// stage runs fn in a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, s statement.Stage, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "statement.stage."+string(s))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStage(s, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func kindForModelError(e *completion.ModelError) statement.ErrorKind {
	if e == nil {
		return statement.KindMalformedResponse
	}
	switch e.Code {
	case "INVALID_ACCOUNT":
		return statement.KindAccountNotFound
	case "MISSING_STATEMENT_DATE", "MISSING_PERIOD_DATES":
		return statement.KindDateMissing
	default:
		return statement.KindMalformedResponse
	}
}
