package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

func validPayload() map[string]any {
	return map[string]any{
		"account_number":    "000123451234",
		"statement_date":    "03/31/2024",
		"period_start":      "03/01/2024",
		"period_end":        "03/31/2024",
		"beginning_balance": json.Number("1000.00"),
		"ending_balance":    json.Number("1187.45"),
		"total_fees":        json.Number("0.00"),
		"filename":          "20240331-statements-1234-acme.pdf",
		"important_notes":   "",
		"deposits": []any{
			map[string]any{"date": "03/04/2024", "description": "ACH CREDIT STRIPE TRANSFER", "amount": json.Number("250.00")},
		},
		"withdrawals": []any{
			map[string]any{"date": "03/10/2024", "description": "Electric Co. #4411", "amount": json.Number("62.55"), "tax_category": "Utility Payment"},
		},
	}
}

func assertSameStatement(t *testing.T, want, got statement.StatementData) {
	t.Helper()
	assert.Equal(t, want.AccountNumber, got.AccountNumber)
	assert.True(t, want.StatementDate.Equal(got.StatementDate))
	assert.True(t, want.PeriodStart.Equal(got.PeriodStart))
	assert.True(t, want.PeriodEnd.Equal(got.PeriodEnd))
	assert.True(t, want.BeginningBalance.Equal(got.BeginningBalance), "beginning balance %s != %s", want.BeginningBalance, got.BeginningBalance)
	assert.True(t, want.EndingBalance.Equal(got.EndingBalance))
	assert.True(t, want.TotalFees.Equal(got.TotalFees))
	assert.Equal(t, want.Filename, got.Filename)
	assert.Equal(t, want.ImportantNotes, got.ImportantNotes)

	require.Len(t, got.Deposits, len(want.Deposits))
	for i := range want.Deposits {
		assert.True(t, want.Deposits[i].Date.Equal(got.Deposits[i].Date))
		assert.Equal(t, want.Deposits[i].Description, got.Deposits[i].Description)
		assert.True(t, want.Deposits[i].Amount.Equal(got.Deposits[i].Amount))
	}
	require.Len(t, got.Withdrawals, len(want.Withdrawals))
	for i := range want.Withdrawals {
		assert.True(t, want.Withdrawals[i].Date.Equal(got.Withdrawals[i].Date))
		assert.Equal(t, want.Withdrawals[i].Description, got.Withdrawals[i].Description)
		assert.True(t, want.Withdrawals[i].Amount.Equal(got.Withdrawals[i].Amount))
		assert.Equal(t, want.Withdrawals[i].TaxCategory, got.Withdrawals[i].TaxCategory)
	}
}

func asValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	return ve
}

// ============================================================================
// Valid payloads
// ============================================================================

func TestValidate_ValidPayload(t *testing.T) {
	v := MustNewValidator()

	data, err := v.Validate(validPayload())
	require.NoError(t, err)

	assert.Equal(t, "000123451234", data.AccountNumber)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), data.StatementDate)
	assert.Equal(t, "1187.45", data.EndingBalance.StringFixed(2))
	require.Len(t, data.Deposits, 1)
	require.Len(t, data.Withdrawals, 1)
	assert.Equal(t, statement.TaxCategoryUtilityPayment, data.Withdrawals[0].TaxCategory)
	assert.True(t, decimal.RequireFromString("62.55").Equal(data.Withdrawals[0].Amount))
}

func TestValidate_DecimalsAreExact(t *testing.T) {
	v := MustNewValidator()
	raw := validPayload()
	raw["beginning_balance"] = json.Number("0.1")
	raw["ending_balance"] = json.Number("123456789012345.67")
	raw["total_fees"] = "0.2"

	data, err := v.Validate(raw)
	require.NoError(t, err)

	assert.True(t, data.BeginningBalance.Add(data.TotalFees).Equal(decimal.RequireFromString("0.3")))
	assert.Equal(t, "123456789012345.67", data.EndingBalance.String())
}

func TestValidate_RoundTrip(t *testing.T) {
	v := MustNewValidator()
	faker := gofakeit.New(20240331)

	for i := 0; i < 25; i++ {
		start := time.Date(2020+faker.Number(0, 5), time.Month(faker.Number(1, 12)), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)

		want := statement.StatementData{
			AccountNumber:    faker.Numerify("##########"),
			StatementDate:    end,
			PeriodStart:      start,
			PeriodEnd:        end,
			BeginningBalance: decimal.NewFromFloat(faker.Price(-500, 50000)).Round(2),
			EndingBalance:    decimal.NewFromFloat(faker.Price(-500, 50000)).Round(2),
			TotalFees:        decimal.NewFromFloat(faker.Price(0, 40)).Round(2),
			Filename:         end.Format("20060102") + "-statements-" + faker.Numerify("####") + "-x.pdf",
			ImportantNotes:   strings.ToUpper(faker.LetterN(12)),
		}
		for j := 0; j < faker.Number(0, 4); j++ {
			want.Deposits = append(want.Deposits, statement.Deposit{
				Date:        start.AddDate(0, 0, j),
				Description: "DEPOSIT " + strings.ToUpper(faker.LetterN(8)),
				Amount:      decimal.NewFromFloat(faker.Price(1, 5000)).Round(2),
			})
		}
		for j := 0; j < faker.Number(0, 4); j++ {
			want.Withdrawals = append(want.Withdrawals, statement.Withdrawal{
				Date:        start.AddDate(0, 0, j),
				Description: "PAYMENT " + strings.ToUpper(faker.LetterN(8)),
				Amount:      decimal.NewFromFloat(faker.Price(1, 5000)).Round(2),
				TaxCategory: statement.TaxCategories[faker.Number(0, len(statement.TaxCategories)-1)],
			})
		}

		got, err := v.Validate(Encode(want))
		require.NoError(t, err, "iteration %d", i)
		assertSameStatement(t, want, got)
	}
}

// ============================================================================
// Rule violations
// ============================================================================

func TestValidate_UnknownTaxCategory(t *testing.T) {
	v := MustNewValidator()
	raw := validPayload()
	raw["withdrawals"].([]any)[0].(map[string]any)["tax_category"] = "Unknown"

	_, err := v.Validate(raw)
	ve := asValidationError(t, err)

	assert.True(t, ve.HasField("tax_category"))
	violations := ve.AtPath("withdrawals[0].tax_category")
	require.Len(t, violations, 1)
	assert.Equal(t, "enum", violations[0].Rule)
}

func TestValidate_Amounts(t *testing.T) {
	tests := []struct {
		name   string
		amount any
		valid  bool
	}{
		{"zero", json.Number("0"), false},
		{"negative", json.Number("-5.00"), false},
		{"positive", json.Number("12.50"), true},
		{"smallest cent", json.Number("0.01"), true},
		{"not a number", "twelve", false},
	}

	for _, tt := range tests {
		for _, collection := range []string{"deposits", "withdrawals"} {
			t.Run(tt.name+"/"+collection, func(t *testing.T) {
				v := MustNewValidator()
				raw := validPayload()
				raw[collection].([]any)[0].(map[string]any)["amount"] = tt.amount

				data, err := v.Validate(raw)
				if tt.valid {
					require.NoError(t, err)
					if collection == "deposits" {
						assert.Equal(t, string(tt.amount.(json.Number)), data.Deposits[0].Amount.StringFixed(2))
					}
					return
				}

				ve := asValidationError(t, err)
				assert.True(t, ve.HasField("amount"))
				assert.NotEmpty(t, ve.AtPath(collection+"[0].amount"))
			})
		}
	}
}

func TestValidate_AtMostTwoDecimalPlaces(t *testing.T) {
	v := MustNewValidator()
	raw := validPayload()
	raw["beginning_balance"] = json.Number("1000.005")
	raw["ending_balance"] = json.Number("1187.450")
	raw["deposits"].([]any)[0].(map[string]any)["amount"] = json.Number("0.004")

	_, err := v.Validate(raw)
	ve := asValidationError(t, err)

	begin := ve.AtPath("beginning_balance")
	require.Len(t, begin, 1)
	assert.Equal(t, "multipleOf", begin[0].Rule)

	deposit := ve.AtPath("deposits[0].amount")
	require.Len(t, deposit, 1)
	assert.Equal(t, "multipleOf", deposit[0].Rule)

	assert.Empty(t, ve.AtPath("ending_balance"), "trailing zeros are not extra precision")
}

func TestValidate_Description(t *testing.T) {
	tests := []struct {
		name        string
		description string
		valid       bool
	}{
		{"punctuation set", "POS 4411 (AMZN) Mktp: US*2K3, ref#9/12 [x]_y.", true},
		{"ampersand", "Smith & Sons", false},
		{"accented", "Café Central", false},
		{"emoji", "Coffee ☕", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := MustNewValidator()
			raw := validPayload()
			raw["deposits"].([]any)[0].(map[string]any)["description"] = tt.description

			_, err := v.Validate(raw)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			ve := asValidationError(t, err)
			assert.True(t, ve.HasField("description"))
		})
	}
}

func TestValidate_Dates(t *testing.T) {
	tests := []struct {
		name  string
		value string
		rule  string
	}{
		{"iso format", "2024-03-31", "pattern"},
		{"missing year", "03/31", "pattern"},
		{"not a calendar date", "02/30/2024", "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := MustNewValidator()
			raw := validPayload()
			raw["period_end"] = tt.value

			_, err := v.Validate(raw)
			ve := asValidationError(t, err)
			violations := ve.AtPath("period_end")
			require.Len(t, violations, 1)
			assert.Equal(t, tt.rule, violations[0].Rule)
		})
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	v := MustNewValidator()
	raw := validPayload()
	raw["account_number"] = ""
	raw["period_start"] = "March 1"
	raw["beginning_balance"] = "lots"
	delete(raw, "ending_balance")
	deposit := raw["deposits"].([]any)[0].(map[string]any)
	deposit["amount"] = json.Number("0")
	withdrawal := raw["withdrawals"].([]any)[0].(map[string]any)
	withdrawal["tax_category"] = "Groceries"
	withdrawal["description"] = "Tienda ñ"

	_, err := v.Validate(raw)
	ve := asValidationError(t, err)

	for _, path := range []string{
		"account_number",
		"period_start",
		"beginning_balance",
		"ending_balance",
		"deposits[0].amount",
		"withdrawals[0].tax_category",
		"withdrawals[0].description",
	} {
		assert.NotEmpty(t, ve.AtPath(path), "expected a violation at %s; got %s", path, ve.Error())
	}
}

func TestValidate_NonObjectLineItem(t *testing.T) {
	v := MustNewValidator()
	raw := validPayload()
	raw["deposits"] = []any{"not an object"}

	_, err := v.Validate(raw)
	ve := asValidationError(t, err)
	assert.NotEmpty(t, ve.AtPath("deposits[0]"))
}

// ============================================================================
// Normalization
// ============================================================================

func TestNormalize_BackfillsYear(t *testing.T) {
	raw := validPayload()
	raw["deposits"].([]any)[0].(map[string]any)["date"] = "03/15"
	raw["withdrawals"].([]any)[0].(map[string]any)["date"] = "03/20/2024"

	require.NoError(t, Normalize(raw))

	assert.Equal(t, "03/15/2024", raw["deposits"].([]any)[0].(map[string]any)["date"])
	assert.Equal(t, "03/20/2024", raw["withdrawals"].([]any)[0].(map[string]any)["date"])

	_, err := MustNewValidator().Validate(raw)
	require.NoError(t, err)
}

func TestNormalize_BackfillIsAppliedOnce(t *testing.T) {
	raw := validPayload()
	raw["deposits"].([]any)[0].(map[string]any)["date"] = "12/02"

	require.NoError(t, Normalize(raw))
	require.NoError(t, Normalize(raw))

	assert.Equal(t, "12/02/2024", raw["deposits"].([]any)[0].(map[string]any)["date"])
}

func TestNormalize_MissingStatementDate(t *testing.T) {
	raw := validPayload()
	delete(raw, "statement_date")

	err := Normalize(raw)
	assert.ErrorIs(t, err, ErrStatementDateMissing)
}

func TestNormalize_CoercesMoneyStrings(t *testing.T) {
	raw := validPayload()
	raw["ending_balance"] = "$1,234.50"
	delete(raw, "total_fees")
	raw["withdrawals"].([]any)[0].(map[string]any)["amount"] = " 12.50 "

	require.NoError(t, Normalize(raw))

	assert.Equal(t, json.Number("1234.50"), raw["ending_balance"])
	assert.Equal(t, json.Number("0"), raw["total_fees"])
	assert.Equal(t, json.Number("12.50"), raw["withdrawals"].([]any)[0].(map[string]any)["amount"])

	data, err := MustNewValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "1234.50", data.EndingBalance.StringFixed(2))
}

func TestStatementYear(t *testing.T) {
	year, ok, err := StatementYear(map[string]any{"statement_date": "03/31/2024"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024", year)

	_, ok, err = StatementYear(map[string]any{"statement_date": "March 2024"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPointerToPath(t *testing.T) {
	assert.Equal(t, "", pointerToPath(""))
	assert.Equal(t, "account_number", pointerToPath("/account_number"))
	assert.Equal(t, "withdrawals[0].tax_category", pointerToPath("/withdrawals/0/tax_category"))
	assert.Equal(t, "tax_category", fieldOf("withdrawals[3].tax_category"))
	assert.Equal(t, "deposits", fieldOf("deposits[0]"))
}
