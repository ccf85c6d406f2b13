// Package statement holds the domain types shared by the ingestion pipeline:
// the validated statement shape, persisted records, pipeline stages and the
// per-document result.
package statement

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the MM/DD/YYYY layout used by statement payloads.
const DateLayout = "01/02/2006"

// TaxCategory classifies a withdrawal.
type TaxCategory string

const (
	TaxCategoryDomesticBusinessExpense     TaxCategory = "Domestic Business Expense"
	TaxCategoryInternationalSubcontractors TaxCategory = "International Subcontractors"
	TaxCategoryTaxPayment                  TaxCategory = "Tax Payment"
	TaxCategoryTransfer                    TaxCategory = "Transfer"
	TaxCategoryLoanPayment                 TaxCategory = "Loan Payment"
	TaxCategoryUtilityPayment              TaxCategory = "Utility Payment"
	TaxCategoryProfessionalServices        TaxCategory = "Professional Services"
)

// TaxCategories lists every accepted withdrawal category in display order.
var TaxCategories = []TaxCategory{
	TaxCategoryDomesticBusinessExpense,
	TaxCategoryInternationalSubcontractors,
	TaxCategoryTaxPayment,
	TaxCategoryTransfer,
	TaxCategoryLoanPayment,
	TaxCategoryUtilityPayment,
	TaxCategoryProfessionalServices,
}

// Valid reports whether c is one of the enumerated categories.
func (c TaxCategory) Valid() bool {
	for _, known := range TaxCategories {
		if c == known {
			return true
		}
	}
	return false
}

// AccountType is the kind of bank account an AccountReference describes.
type AccountType string

const (
	AccountTypeBusiness AccountType = "Business"
	AccountTypeChecking AccountType = "Checking"
	AccountTypeSavings  AccountType = "Savings"
)

// Deposit is a credit line item. Amount is always positive.
type Deposit struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Withdrawal is a debit line item. Amount is always positive; direction is
// carried by the collection it belongs to.
type Withdrawal struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	TaxCategory TaxCategory
}

// StatementData is the validated, fully typed form of a model response.
type StatementData struct {
	AccountNumber    string
	StatementDate    time.Time
	PeriodStart      time.Time
	PeriodEnd        time.Time
	BeginningBalance decimal.Decimal
	EndingBalance    decimal.Decimal
	TotalFees        decimal.Decimal
	Filename         string
	ImportantNotes   string
	Deposits         []Deposit
	Withdrawals      []Withdrawal
}

// AccountReference is a known bank account. The pipeline only reads these.
type AccountReference struct {
	ID            int64
	AccountNumber string
	CompanyName   string
	BankName      string
	AccountType   AccountType
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record is a statement ready to be written to the banking_statements table
// together with its line items.
type Record struct {
	ID                 int64
	AccountReferenceID int64
	StatementDate      time.Time
	PeriodStart        time.Time
	PeriodEnd          time.Time
	BeginningBalance   decimal.Decimal
	EndingBalance      decimal.Decimal
	TotalFees          decimal.Decimal
	Filename           string
	ImportantNotes     string
	RawData            json.RawMessage
	Deposits           []Deposit
	Withdrawals        []Withdrawal
}

// NewRecord binds validated data to a resolved account.
func NewRecord(account *AccountReference, data StatementData, raw json.RawMessage) *Record {
	return &Record{
		AccountReferenceID: account.ID,
		StatementDate:      data.StatementDate,
		PeriodStart:        data.PeriodStart,
		PeriodEnd:          data.PeriodEnd,
		BeginningBalance:   data.BeginningBalance,
		EndingBalance:      data.EndingBalance,
		TotalFees:          data.TotalFees,
		Filename:           data.Filename,
		ImportantNotes:     data.ImportantNotes,
		RawData:            raw,
		Deposits:           data.Deposits,
		Withdrawals:        data.Withdrawals,
	}
}
