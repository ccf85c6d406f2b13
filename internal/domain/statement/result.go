package statement

import (
	"errors"
	"fmt"
)

// Stage is a state in the per-document pipeline.
type Stage string

const (
	StageDiscovered       Stage = "discovered"
	StageTextExtracted    Stage = "text_extracted"
	StageModelCompleted   Stage = "model_completed"
	StageJSONValidated    Stage = "json_validated"
	StageJSONPersisted    Stage = "json_persisted"
	StageArtifactArchived Stage = "artifact_archived"
	StageFailed           Stage = "failed"
)

// ErrorKind classifies a per-document failure.
type ErrorKind string

const (
	KindIdentityFailure    ErrorKind = "IdentityFailure"
	KindExtractionFailure  ErrorKind = "ExtractionFailure"
	KindCompletionFailure  ErrorKind = "CompletionFailure"
	KindMalformedResponse  ErrorKind = "MalformedResponse"
	KindAccountNotFound    ErrorKind = "AccountNotFound"
	KindDateMissing        ErrorKind = "DateMissing"
	KindPersistenceFailure ErrorKind = "PersistenceFailure"
	KindArchivalWarning    ErrorKind = "ArchivalWarning"
)

// StageError is a fatal per-document failure. Stage is the stage that was
// being attempted when the document failed.
type StageError struct {
	Stage   Stage
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail builds a StageError.
func Fail(stage Stage, kind ErrorKind, message string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Err: err}
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a StageError.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Warning is a non-fatal problem reported alongside a successful document.
type Warning struct {
	Kind    ErrorKind
	Message string
}

// Status is the operator-facing outcome of one document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Outcome is the per-document record returned from a batch run.
type Outcome struct {
	Filename string
	Status   Status
	Message  string
	Stage    Stage
	Kind     ErrorKind
}

// Result is the tagged per-document result: either Statement is set (Ok) or
// Err is set (Err). Skipped documents carry neither.
type Result struct {
	Filename  string
	Stage     Stage
	Statement *StatementData
	Err       *StageError
	Skipped   bool
	Reason    string
	Warnings  []Warning
}

// Ok reports whether the document reached a successful terminal stage.
func (r Result) Ok() bool {
	return r.Err == nil && !r.Skipped
}

// Outcome flattens the result into the record reported to the operator.
// Warnings are appended to the message of skipped and successful results.
func (r Result) Outcome() Outcome {
	if r.Err != nil {
		return Outcome{
			Filename: r.Filename,
			Status:   StatusError,
			Message:  r.Err.Error(),
			Stage:    r.Err.Stage,
			Kind:     r.Err.Kind,
		}
	}

	o := Outcome{
		Filename: r.Filename,
		Status:   StatusSuccess,
		Message:  "processed successfully",
		Stage:    r.Stage,
	}
	if r.Skipped {
		o.Status = StatusSkipped
		o.Message = r.Reason
	}
	for _, w := range r.Warnings {
		o.Message += "; warning: " + w.Message
		o.Kind = w.Kind
	}
	return o
}
