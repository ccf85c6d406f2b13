// Package tracker reports which pipeline stages are already complete for a
// statement document.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/identity"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
)

// ExistenceChecker is the part of the repository the tracker needs.
type ExistenceChecker interface {
	StatementExists(ctx context.Context, filename string) (bool, error)
	StatementExistsForDate(ctx context.Context, accountReferenceID int64, statementDate time.Time) (bool, error)
}

// Document is one source file within a company/account/year batch.
type Document struct {
	Filename string
	Identity identity.Identity
	Company  string
	Account  string
	Year     string
}

// Location says where a JSON artifact was found.
type Location string

const (
	LocationNone      Location = ""
	LocationStaging   Location = "staging"
	LocationOrganized Location = "organized"
)

// Completion is the set of stages already done for a document.
type Completion struct {
	DatabaseComplete bool
	JSONComplete     bool
	ArtifactPath     string
	ArtifactLocation Location
}

// Tracker checks the database first and the filesystem second.
type Tracker struct {
	repo   ExistenceChecker
	layout layout.Layout
	logger *slog.Logger
}

func New(repo ExistenceChecker, l layout.Layout, logger *slog.Logger) *Tracker {
	return &Tracker{repo: repo, layout: l, logger: logger}
}

// Check returns as soon as the database reports the statement stored; the
// filesystem is only scanned when it does not.
func (t *Tracker) Check(ctx context.Context, doc Document) (Completion, error) {
	stored, err := t.repo.StatementExists(ctx, doc.Filename)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to check database stage: %w", err)
	}
	if stored {
		t.logger.Debug("database stage complete", slog.String("filename", doc.Filename))
		return Completion{DatabaseComplete: true}, nil
	}

	path, loc := t.FindArtifact(doc)
	return Completion{
		JSONComplete:     loc != LocationNone,
		ArtifactPath:     path,
		ArtifactLocation: loc,
	}, nil
}

// FindArtifact looks for the document's artifact at staging, then at its
// organized location.
func (t *Tracker) FindArtifact(doc Document) (string, Location) {
	name := doc.Identity.ArtifactName()

	if p := t.layout.StagingPath(name); layout.Exists(p) {
		return p, LocationStaging
	}
	if doc.Company != "" {
		if p := t.layout.OrganizedPath(doc.Company, doc.Account, doc.Year, name); layout.Exists(p) {
			return p, LocationOrganized
		}
	}
	return "", LocationNone
}

// StoredForDate is the database-stage key check, run just before insertion.
func (t *Tracker) StoredForDate(ctx context.Context, accountReferenceID int64, statementDate time.Time) (bool, error) {
	stored, err := t.repo.StatementExistsForDate(ctx, accountReferenceID, statementDate)
	if err != nil {
		return false, fmt.Errorf("failed to check statement date: %w", err)
	}
	return stored, nil
}
