// Package report exports organized statement artifacts as CSV or XLSX.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/schema"
	"github.com/FACorreiaa/statement-ingest/pkg/money"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Row is one line item. The csv tags are the exported column headers.
type Row struct {
	StatementDate string `csv:"Statement Date"`
	Account       string `csv:"Account"`
	Type          string `csv:"Type"`
	Date          string `csv:"Date"`
	Description   string `csv:"Description"`
	Amount        string `csv:"Amount"`
	TaxCategory   string `csv:"Tax Category"`
	Filename      string `csv:"Source File"`
}

// Rows flattens statements into line items ordered by transaction date,
// deposits before withdrawals on the same day.
func Rows(statements []statement.StatementData) []Row {
	type keyed struct {
		row  Row
		date time.Time
		kind int
	}
	var items []keyed
	for _, s := range statements {
		sd := s.StatementDate.Format(statement.DateLayout)
		for _, d := range s.Deposits {
			items = append(items, keyed{
				date: d.Date,
				row: Row{
					StatementDate: sd,
					Account:       s.AccountNumber,
					Type:          "deposit",
					Date:          d.Date.Format(statement.DateLayout),
					Description:   d.Description,
					Amount:        d.Amount.StringFixed(2),
					Filename:      s.Filename,
				},
			})
		}
		for _, w := range s.Withdrawals {
			items = append(items, keyed{
				date: w.Date,
				kind: 1,
				row: Row{
					StatementDate: sd,
					Account:       s.AccountNumber,
					Type:          "withdrawal",
					Date:          w.Date.Format(statement.DateLayout),
					Description:   w.Description,
					Amount:        w.Amount.StringFixed(2),
					TaxCategory:   string(w.TaxCategory),
					Filename:      s.Filename,
				},
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].date.Equal(items[j].date) {
			return items[i].date.Before(items[j].date)
		}
		return items[i].kind < items[j].kind
	})

	rows := make([]Row, len(items))
	for i, it := range items {
		rows[i] = it.row
	}
	return rows
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with a Transactions sheet and a Statements
// sheet carrying per-statement totals and reconciliation.
func WriteXLSX(w io.Writer, statements []statement.StatementData) error {
	f := excelize.NewFile()
	defer f.Close()

	const txSheet = "Transactions"
	if err := f.SetSheetName("Sheet1", txSheet); err != nil {
		return err
	}
	headers := []any{"Statement Date", "Account", "Type", "Date", "Description", "Amount", "Tax Category", "Source File"}
	if err := f.SetSheetRow(txSheet, "A1", &headers); err != nil {
		return err
	}
	for i, r := range Rows(statements) {
		amount, _ := decimal.NewFromString(r.Amount)
		values := []any{r.StatementDate, r.Account, r.Type, r.Date, r.Description, amount.InexactFloat64(), r.TaxCategory, r.Filename}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(txSheet, cell, &values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(txSheet, "A", "D", 14)
	_ = f.SetColWidth(txSheet, "E", "E", 48)
	_ = f.SetColWidth(txSheet, "F", "F", 14)
	_ = f.SetColWidth(txSheet, "G", "H", 28)

	const stSheet = "Statements"
	if _, err := f.NewSheet(stSheet); err != nil {
		return err
	}
	stHeaders := []any{"Statement Date", "Account", "Beginning", "Deposits", "Withdrawals", "Fees", "Ending", "Difference", "Balanced", "Source File"}
	if err := f.SetSheetRow(stSheet, "A1", &stHeaders); err != nil {
		return err
	}
	for i, s := range statements {
		rec, err := Reconcile(s)
		if err != nil {
			return err
		}
		values := []any{
			s.StatementDate.Format(statement.DateLayout),
			s.AccountNumber,
			rec.Beginning.Display(),
			rec.Deposits.Display(),
			rec.Withdrawals.Display(),
			rec.Fees.Display(),
			rec.Reported.Display(),
			rec.Difference.Display(),
			rec.Balanced(),
			s.Filename,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(stSheet, cell, &values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(stSheet, "A", "I", 14)
	_ = f.SetColWidth(stSheet, "J", "J", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// Reconcile checks a statement's balances against its line items.
func Reconcile(s statement.StatementData) (money.Reconciliation, error) {
	deposits := make([]decimal.Decimal, len(s.Deposits))
	for i, d := range s.Deposits {
		deposits[i] = d.Amount
	}
	withdrawals := make([]decimal.Decimal, len(s.Withdrawals))
	for i, w := range s.Withdrawals {
		withdrawals[i] = w.Amount
	}
	return money.Reconcile(s.BeginningBalance, s.EndingBalance, s.TotalFees, deposits, withdrawals)
}

// Exporter reads a batch's organized artifacts and writes them out.
type Exporter struct {
	layout    layout.Layout
	validator *schema.Validator
	logger    *slog.Logger
}

func NewExporter(l layout.Layout, validator *schema.Validator, logger *slog.Logger) *Exporter {
	return &Exporter{layout: l, validator: validator, logger: logger}
}

// Load validates every organized artifact of one account and year, ordered
// by statement date. Invalid artifacts are skipped with a warning.
func (e *Exporter) Load(ctx context.Context, company, account, year string) ([]statement.StatementData, error) {
	dir := e.layout.OrganizedDir(company, account, year)
	files, err := layout.ListJSON(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	var out []statement.StatementData
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.load(path)
		if err != nil {
			e.logger.Warn("skipping invalid artifact",
				slog.String("artifact", filepath.Base(path)),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, data)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StatementDate.Before(out[j].StatementDate) })
	return out, nil
}

func (e *Exporter) load(path string) (statement.StatementData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return statement.StatementData{}, err
	}
	doc, err := schema.DecodeJSON(b)
	if err != nil {
		return statement.StatementData{}, err
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return statement.StatementData{}, errors.New("artifact is not a JSON object")
	}
	if err := schema.Normalize(raw); err != nil {
		return statement.StatementData{}, err
	}
	return e.validator.Validate(raw)
}

// Export loads the batch and writes it to w in the given format. It returns
// the number of statements written.
func (e *Exporter) Export(ctx context.Context, company, account, year string, format Format, w io.Writer) (int, error) {
	statements, err := e.Load(ctx, company, account, year)
	if err != nil {
		return 0, err
	}

	switch format {
	case FormatCSV:
		err = WriteCSV(w, Rows(statements))
	case FormatXLSX:
		err = WriteXLSX(w, statements)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return 0, err
	}

	e.logger.Info("export written",
		slog.String("format", string(format)),
		slog.Int("statements", len(statements)),
	)
	return len(statements), nil
}
