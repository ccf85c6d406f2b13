// Package schema validates raw model output against the statement shape and
// converts it into typed statement data.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

//go:embed statement.schema.json
var statementSchema []byte

const schemaURL = "statement.schema.json"

// Violation is one broken rule.
type Violation struct {
	Path    string // dotted instance path, e.g. withdrawals[0].tax_category
	Field   string // last property name in Path
	Rule    string // schema keyword or typed rule (required, decimal, date)
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("(root) [%s] %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("%s [%s] %s", v.Path, v.Rule, v.Message)
}

// ValidationError enumerates every violation found in a payload.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// HasField reports whether any violation names field.
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// AtPath returns the violations recorded for an exact path.
func (e *ValidationError) AtPath(path string) []Violation {
	var out []Violation
	for _, v := range e.Violations {
		if v.Path == path {
			out = append(out, v)
		}
	}
	return out
}

// Validator checks raw payloads. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded statement schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(statementSchema)); err != nil {
		return nil, fmt.Errorf("failed to load statement schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile statement schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustNewValidator panics if the embedded schema does not compile.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks raw in a single pass and returns the typed statement or a
// *ValidationError listing every violation.
func (v *Validator) Validate(raw map[string]any) (statement.StatementData, error) {
	doc, err := canonicalize(raw)
	if err != nil {
		return statement.StatementData{}, &ValidationError{Violations: []Violation{{
			Rule:    "json",
			Message: err.Error(),
		}}}
	}

	c := newCollector()
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return statement.StatementData{}, fmt.Errorf("failed to run schema validation: %w", err)
		}
		collectSchemaViolations(c, ve)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		c.addTyped("", "type", "payload must be an object")
		return statement.StatementData{}, c.err()
	}

	data := decodeStatement(c, obj)
	if err := c.err(); err != nil {
		return statement.StatementData{}, err
	}
	return data, nil
}

// canonicalize round-trips raw through encoding/json so the schema sees only
// JSON types, with numbers kept as exact json.Number text.
func canonicalize(raw map[string]any) (any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("payload is not serializable: %w", err)
	}
	return DecodeJSON(b)
}

// DecodeJSON decodes b keeping numbers as json.Number.
func DecodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type collector struct {
	violations []Violation
	seen       map[string]bool
}

func newCollector() *collector {
	return &collector{seen: make(map[string]bool)}
}

func (c *collector) add(path, rule, message string) {
	c.seen[path] = true
	c.violations = append(c.violations, Violation{
		Path:    path,
		Field:   fieldOf(path),
		Rule:    rule,
		Message: message,
	})
}

// addTyped records a typed-pass violation unless the schema pass already
// flagged the same path.
func (c *collector) addTyped(path, rule, message string) {
	if c.seen[path] {
		return
	}
	c.add(path, rule, message)
}

func (c *collector) err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: c.violations}
}

func collectSchemaViolations(c *collector, ve *jsonschema.ValidationError) {
	if len(ve.Causes) == 0 {
		c.add(pointerToPath(ve.InstanceLocation), keywordOf(ve.KeywordLocation), ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaViolations(c, cause)
	}
}

func keywordOf(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

// pointerToPath turns /withdrawals/0/tax_category into withdrawals[0].tax_category.
func pointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range strings.Split(pointer, "/") {
		seg = strings.NewReplacer("~1", "/", "~0", "~").Replace(seg)
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func fieldOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.Index(path, "["); i >= 0 {
		path = path[:i]
	}
	return path
}

func indexPath(parent string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", parent, i, field)
}

func decodeStatement(c *collector, obj map[string]any) statement.StatementData {
	var data statement.StatementData

	data.AccountNumber = requireString(c, obj, "account_number")

	data.StatementDate = requireDate(c, obj, "statement_date", "statement_date")
	data.PeriodStart = requireDate(c, obj, "period_start", "period_start")
	data.PeriodEnd = requireDate(c, obj, "period_end", "period_end")

	data.BeginningBalance = requireDecimal(c, obj, "beginning_balance", "beginning_balance")
	data.EndingBalance = requireDecimal(c, obj, "ending_balance", "ending_balance")
	data.TotalFees = requireDecimal(c, obj, "total_fees", "total_fees")

	data.Filename = requireString(c, obj, "filename")
	if notes, ok := obj["important_notes"].(string); ok {
		data.ImportantNotes = notes
	}

	for i, item := range lineItems(c, obj, "deposits") {
		if item == nil {
			continue
		}
		data.Deposits = append(data.Deposits, statement.Deposit{
			Date:        requireDate(c, item, "date", indexPath("deposits", i, "date")),
			Description: requireItemString(c, item, "description", indexPath("deposits", i, "description")),
			Amount:      requireAmount(c, item, indexPath("deposits", i, "amount")),
		})
	}

	for i, item := range lineItems(c, obj, "withdrawals") {
		if item == nil {
			continue
		}
		category := statement.TaxCategory(requireItemString(c, item, "tax_category", indexPath("withdrawals", i, "tax_category")))
		if category != "" && !category.Valid() {
			c.addTyped(indexPath("withdrawals", i, "tax_category"), "enum", fmt.Sprintf("unknown tax category %q", category))
		}
		data.Withdrawals = append(data.Withdrawals, statement.Withdrawal{
			Date:        requireDate(c, item, "date", indexPath("withdrawals", i, "date")),
			Description: requireItemString(c, item, "description", indexPath("withdrawals", i, "description")),
			Amount:      requireAmount(c, item, indexPath("withdrawals", i, "amount")),
			TaxCategory: category,
		})
	}

	return data
}

func requireString(c *collector, obj map[string]any, key string) string {
	return requireItemString(c, obj, key, key)
}

func requireItemString(c *collector, obj map[string]any, key, path string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		c.addTyped(path, "required", fmt.Sprintf("%s is required", key))
		return ""
	}
	s, ok := v.(string)
	if !ok {
		c.addTyped(path, "type", fmt.Sprintf("%s must be a string", key))
		return ""
	}
	if strings.TrimSpace(s) == "" && key != "filename" {
		c.addTyped(path, "required", fmt.Sprintf("%s must not be empty", key))
	}
	return s
}

func requireDate(c *collector, obj map[string]any, key, path string) time.Time {
	s := requireItemString(c, obj, key, path)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(statement.DateLayout, s)
	if err != nil {
		c.addTyped(path, "date", fmt.Sprintf("%q is not a MM/DD/YYYY calendar date", s))
		return time.Time{}
	}
	return t
}

func requireDecimal(c *collector, obj map[string]any, key, path string) decimal.Decimal {
	v, ok := obj[key]
	if !ok || v == nil {
		c.addTyped(path, "required", fmt.Sprintf("%s is required", key))
		return decimal.Zero
	}
	d, err := toDecimal(v)
	if err != nil {
		c.addTyped(path, "decimal", fmt.Sprintf("%s: %v", key, err))
		return decimal.Zero
	}
	// Stored as NUMERIC(14, 2); anything finer would be rounded by Postgres.
	if !d.Equal(d.Round(2)) {
		c.addTyped(path, "multipleOf", fmt.Sprintf("%s must have at most 2 decimal places but found %s", key, d.String()))
	}
	return d
}

func requireAmount(c *collector, obj map[string]any, path string) decimal.Decimal {
	d := requireDecimal(c, obj, "amount", path)
	if !d.IsPositive() {
		c.addTyped(path, "exclusiveMinimum", fmt.Sprintf("amount must be > 0 but found %s", d.String()))
	}
	return d
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}
}

func lineItems(c *collector, obj map[string]any, key string) []map[string]any {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		c.addTyped(key, "type", fmt.Sprintf("%s must be an array", key))
		return nil
	}
	items := make([]map[string]any, 0, len(list))
	for i, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			c.addTyped(fmt.Sprintf("%s[%d]", key, i), "type", "line item must be an object")
		}
		items = append(items, item)
	}
	return items
}
