package schema

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

// ErrStatementDateMissing is returned by Normalize when the payload carries
// no statement_date to take the year from.
var ErrStatementDateMissing = errors.New("statement_date is missing")

var (
	partialDate = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12]\d|3[01])$`)
	yearSuffix  = regexp.MustCompile(`/(\d{4})$`)
)

var moneyCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// StatementYear returns the four-digit year of raw's statement_date. The
// second result is false when statement_date is present but carries no year.
func StatementYear(raw map[string]any) (string, bool, error) {
	s, _ := raw["statement_date"].(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, ErrStatementDateMissing
	}
	m := yearSuffix.FindStringSubmatch(s)
	if m == nil {
		return "", false, nil
	}
	return m[1], true, nil
}

// Normalize prepares a raw payload for validation, in place:
//   - MM/DD transaction dates get the statement year appended;
//   - currency-formatted balances and amounts become exact numbers;
//   - a missing total_fees becomes 0.
//
// It must run exactly once and before Validate.
func Normalize(raw map[string]any) error {
	year, ok, err := StatementYear(raw)
	if err != nil {
		return err
	}
	if ok {
		BackfillYear(raw, year)
	}

	for _, key := range []string{"beginning_balance", "ending_balance", "total_fees"} {
		if v, present := raw[key]; present {
			raw[key] = coerceMoney(v)
		}
	}
	if v, present := raw["total_fees"]; !present || v == nil {
		raw["total_fees"] = json.Number("0")
	}

	for _, key := range []string{"deposits", "withdrawals"} {
		items, _ := raw[key].([]any)
		for _, it := range items {
			if item, ok := it.(map[string]any); ok {
				if v, present := item["amount"]; present {
					item["amount"] = coerceMoney(v)
				}
			}
		}
	}
	return nil
}

// BackfillYear appends year to every deposit and withdrawal date written as
// MM/DD. Dates that already carry a year are left alone.
func BackfillYear(raw map[string]any, year string) {
	for _, key := range []string{"deposits", "withdrawals"} {
		items, _ := raw[key].([]any)
		for _, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			date, _ := item["date"].(string)
			date = strings.TrimSpace(date)
			if partialDate.MatchString(date) {
				item["date"] = date + "/" + year
			}
		}
	}
}

func coerceMoney(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	cleaned := moneyCleaner.Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return v
	}
	return json.Number(formatDecimal(d))
}

// formatDecimal keeps the scale of d so 12.50 stays 12.50.
func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// Encode renders data back into the raw payload shape accepted by Validate.
func Encode(data statement.StatementData) map[string]any {
	deposits := make([]any, 0, len(data.Deposits))
	for _, d := range data.Deposits {
		deposits = append(deposits, map[string]any{
			"date":        d.Date.Format(statement.DateLayout),
			"description": d.Description,
			"amount":      json.Number(formatDecimal(d.Amount)),
		})
	}

	withdrawals := make([]any, 0, len(data.Withdrawals))
	for _, w := range data.Withdrawals {
		withdrawals = append(withdrawals, map[string]any{
			"date":         w.Date.Format(statement.DateLayout),
			"description":  w.Description,
			"amount":       json.Number(formatDecimal(w.Amount)),
			"tax_category": string(w.TaxCategory),
		})
	}

	return map[string]any{
		"account_number":    data.AccountNumber,
		"statement_date":    data.StatementDate.Format(statement.DateLayout),
		"period_start":      data.PeriodStart.Format(statement.DateLayout),
		"period_end":        data.PeriodEnd.Format(statement.DateLayout),
		"beginning_balance": json.Number(formatDecimal(data.BeginningBalance)),
		"ending_balance":    json.Number(formatDecimal(data.EndingBalance)),
		"total_fees":        json.Number(formatDecimal(data.TotalFees)),
		"filename":          data.Filename,
		"important_notes":   data.ImportantNotes,
		"deposits":          deposits,
		"withdrawals":       withdrawals,
	}
}

// Marshal renders data as the indented JSON artifact written to disk.
func Marshal(data statement.StatementData) ([]byte, error) {
	return json.MarshalIndent(Encode(data), "", "  ")
}
