// Package identity derives the (suffix, month, year) identity of a statement
// from its source filename.
package identity

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrNoPatternMatched is returned when a filename matches none of the
// configured patterns. There is no fallback identity.
var ErrNoPatternMatched = errors.New("filename does not match any accepted statement pattern")

// Identity is the JSON-stage idempotency key of a statement document.
type Identity struct {
	Suffix string
	Month  string
	Year   string
	Source string
}

// ArtifactName is the filename of the JSON artifact for this identity.
func (id Identity) ArtifactName() string {
	return id.Suffix + id.Month + id.Year + ".json"
}

// Pattern is one accepted filename shape. The regexp must expose named
// groups "year", "month" and "suffix".
type Pattern struct {
	Name string
	Expr *regexp.Regexp
}

// DefaultPatterns are the accepted filename shapes, tried in order.
var DefaultPatterns = []Pattern{
	{
		Name: "date-statements-suffix",
		Expr: regexp.MustCompile(`(?:^|\D)(?P<year>\d{4})(?P<month>\d{2})\d{2}-statements-(?P<suffix>\d{4})-`),
	},
	{
		Name: "dashed-date-statements-suffix",
		Expr: regexp.MustCompile(`(?:^|\D)(?P<year>\d{4})-(?P<month>\d{2})-\d{2}-statements-(?P<suffix>\d{4})-`),
	},
}

// Extractor applies an explicit list of patterns.
type Extractor struct {
	patterns []Pattern
}

// NewExtractor builds an Extractor. With no patterns it uses DefaultPatterns.
func NewExtractor(patterns ...Pattern) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		for _, group := range []string{"year", "month", "suffix"} {
			if p.Expr.SubexpIndex(group) < 0 {
				return nil, fmt.Errorf("pattern %q is missing group %q", p.Name, group)
			}
		}
	}
	return &Extractor{patterns: patterns}, nil
}

// Default returns an Extractor over DefaultPatterns.
func Default() *Extractor {
	return &Extractor{patterns: DefaultPatterns}
}

// Extract derives the identity of filename. Only the base name is matched.
func (e *Extractor) Extract(filename string) (Identity, error) {
	base := filepath.Base(filename)

	for _, p := range e.patterns {
		m := p.Expr.FindStringSubmatch(base)
		if m == nil {
			continue
		}

		id := Identity{
			Year:   m[p.Expr.SubexpIndex("year")],
			Month:  m[p.Expr.SubexpIndex("month")],
			Suffix: m[p.Expr.SubexpIndex("suffix")],
			Source: base,
		}
		if month, _ := strconv.Atoi(id.Month); month < 1 || month > 12 {
			return Identity{}, fmt.Errorf("%s: month %q out of range: %w", base, id.Month, ErrNoPatternMatched)
		}
		return id, nil
	}

	return Identity{}, fmt.Errorf("%s: %w", base, ErrNoPatternMatched)
}

// Extract uses DefaultPatterns.
func Extract(filename string) (Identity, error) {
	return Default().Extract(filename)
}
