// Package notify e-mails batch run summaries through Resend.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

// EmailSender is the part of the Resend client used here.
type EmailSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Notifier sends run summaries. A Notifier without a sender is a no-op.
type Notifier struct {
	emails EmailSender
	from   string
	to     []string
	logger *slog.Logger
}

// New creates a Notifier backed by Resend. An empty apiKey disables it.
func New(apiKey, from string, to []string, logger *slog.Logger) *Notifier {
	var sender EmailSender
	if apiKey != "" {
		sender = resend.NewClient(apiKey).Emails
	}
	return NewWithSender(sender, from, to, logger)
}

func NewWithSender(sender EmailSender, from string, to []string, logger *slog.Logger) *Notifier {
	return &Notifier{emails: sender, from: from, to: to, logger: logger}
}

// Enabled reports whether summaries will actually be sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.emails != nil && n.from != "" && len(n.to) > 0
}

// Summary is one batch's report.
type Summary struct {
	Operation string
	Batch     string
	Outcomes  []statement.Outcome
}

func (s Summary) count(status statement.Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// notable reports whether any outcome is more than a plain skip.
func (s Summary) notable() bool {
	for _, o := range s.Outcomes {
		if o.Status != statement.StatusSkipped || o.Kind != "" {
			return true
		}
	}
	return false
}

// Subject is the e-mail subject line.
func (s Summary) Subject() string {
	failed := s.count(statement.StatusError)
	if failed > 0 {
		return fmt.Sprintf("[statements] %s %s: %d failed", s.Operation, s.Batch, failed)
	}
	return fmt.Sprintf("[statements] %s %s: %d processed", s.Operation, s.Batch, s.count(statement.StatusSuccess))
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>{{.Operation}} {{.Batch}}</h2>
  <p>{{.Succeeded}} succeeded, {{.Failed}} failed, {{.Skipped}} skipped.</p>
  <table cellpadding="4" cellspacing="0" border="1">
    <tr><th>File</th><th>Status</th><th>Stage</th><th>Message</th></tr>
    {{range .Outcomes}}<tr><td>{{.Filename}}</td><td>{{.Status}}</td><td>{{.Stage}}</td><td>{{.Message}}</td></tr>
    {{end}}
  </table>
</body>
</html>
`))

// HTML renders the summary body.
func (s Summary) HTML() (string, error) {
	var buf bytes.Buffer
	err := summaryTemplate.Execute(&buf, struct {
		Summary
		Succeeded, Failed, Skipped int
	}{
		Summary:   s,
		Succeeded: s.count(statement.StatusSuccess),
		Failed:    s.count(statement.StatusError),
		Skipped:   s.count(statement.StatusSkipped),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return buf.String(), nil
}

// SendSummary e-mails the summary. Runs where nothing happened are not
// reported.
func (n *Notifier) SendSummary(ctx context.Context, s Summary) error {
	if !n.Enabled() {
		if n != nil {
			n.logger.Debug("notifier not configured, skipping summary e-mail")
		}
		return nil
	}
	if !s.notable() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := s.HTML()
	if err != nil {
		return err
	}

	resp, err := n.emails.Send(&resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: s.Subject(),
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send summary: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return errors.New("failed to send summary: empty response")
	}

	n.logger.Info("summary e-mail sent",
		slog.String("id", resp.Id),
		slog.Int("recipients", len(n.to)),
	)
	return nil
}
