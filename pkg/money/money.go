// Package money provides currency-safe arithmetic over integer cents for
// statement totals and reconciliation.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD is the currency statements are reported in.
const USD = "USD"

// Money represents a monetary value with currency.
// It wraps go-money for safe arithmetic and shopspring/decimal for conversion.
type Money struct {
	m *money.Money
}

// New creates a new Money value from cents (minor units) and currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding to
// the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
		currencyCode = USD
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currencyCode)
}

// NewFromString parses amounts like "100.50", "$1,234.56" or "-12".
func NewFromString(amount string, currencyCode string) (*Money, error) {
	amount = strings.TrimSpace(amount)
	amount = strings.NewReplacer(" ", "", "$", "", ",", "").Replace(amount)

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return NewFromDecimal(d, currencyCode), nil
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Sum adds decimal amounts in cents, so the result is exact.
func Sum(currencyCode string, amounts ...decimal.Decimal) *Money {
	var cents int64
	for _, a := range amounts {
		cents += NewFromDecimal(a, currencyCode).Amount()
	}
	return New(cents, currencyCode)
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add adds two Money values. Returns error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Subtract subtracts other from m. Returns error if currencies don't match.
func (m *Money) Subtract(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		if other == nil || other.m == nil {
			return Zero(USD), nil
		}
		return &Money{m: other.m.Negative()}, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Subtract(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Equals returns true if both values are equal
func (m *Money) Equals(other *Money) bool {
	if m == nil || m.m == nil {
		return other.IsZero()
	}
	if other == nil || other.m == nil {
		return m.IsZero()
	}
	eq, _ := m.m.Equals(other.m)
	return eq
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// String returns the amount as a fixed two-place decimal (e.g., "1234.50")
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(2)
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}

// Reconciliation compares a statement's ending balance with the one implied
// by its opening balance, line items and fees.
type Reconciliation struct {
	Beginning   *Money
	Deposits    *Money
	Withdrawals *Money
	Fees        *Money
	Expected    *Money
	Reported    *Money
	Difference  *Money
}

// Balanced reports whether the reported ending balance matches to the cent.
func (r Reconciliation) Balanced() bool {
	return r.Difference.IsZero()
}

// Reconcile computes beginning + deposits - withdrawals - fees and its
// difference from the reported ending balance.
func Reconcile(beginning, ending, fees decimal.Decimal, deposits, withdrawals []decimal.Decimal) (Reconciliation, error) {
	r := Reconciliation{
		Beginning:   NewFromDecimal(beginning, USD),
		Deposits:    Sum(USD, deposits...),
		Withdrawals: Sum(USD, withdrawals...),
		Fees:        NewFromDecimal(fees, USD),
		Reported:    NewFromDecimal(ending, USD),
	}

	expected, err := r.Beginning.Add(r.Deposits)
	if err != nil {
		return r, err
	}
	if expected, err = expected.Subtract(r.Withdrawals); err != nil {
		return r, err
	}
	if expected, err = expected.Subtract(r.Fees); err != nil {
		return r, err
	}
	r.Expected = expected

	if r.Difference, err = r.Reported.Subtract(expected); err != nil {
		return r, err
	}
	return r, nil
}
