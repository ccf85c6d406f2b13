package identity

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Identity
	}{
		{
			name:     "compact date",
			filename: "20240315-statements-1234-foo.pdf",
			want:     Identity{Suffix: "1234", Month: "03", Year: "2024", Source: "20240315-statements-1234-foo.pdf"},
		},
		{
			name:     "full path is reduced to base name",
			filename: "/data/Acme/00001234/2024/20241130-statements-1234-acme.pdf",
			want:     Identity{Suffix: "1234", Month: "11", Year: "2024", Source: "20241130-statements-1234-acme.pdf"},
		},
		{
			name:     "dashed date",
			filename: "2023-01-31-statements-9876-checking.pdf",
			want:     Identity{Suffix: "9876", Month: "01", Year: "2023", Source: "2023-01-31-statements-9876-checking.pdf"},
		},
		{
			name:     "prefixed by bank name",
			filename: "chase_20220228-statements-4321-.pdf",
			want:     Identity{Suffix: "4321", Month: "02", Year: "2022", Source: "chase_20220228-statements-4321-.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_FailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"no pattern", "march-statement.pdf"},
		{"short suffix", "20240315-statements-123-foo.pdf"},
		{"missing trailing dash", "20240315-statements-1234.pdf"},
		{"month out of range", "20241315-statements-1234-foo.pdf"},
		{"digits glued to date", "920240315-statements-1234-foo.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.filename)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoPatternMatched))
			assert.Equal(t, Identity{}, got)
		})
	}
}

func TestIdentity_ArtifactName(t *testing.T) {
	id := Identity{Suffix: "1234", Month: "03", Year: "2024"}
	assert.Equal(t, "1234032024.json", id.ArtifactName())
}

func TestNewExtractor_RejectsPatternWithoutGroups(t *testing.T) {
	_, err := NewExtractor(Pattern{Name: "bad", Expr: regexp.MustCompile(`(\d{4})-statements-(\d{4})-`)})
	require.Error(t, err)
}

func TestNewExtractor_CustomPattern(t *testing.T) {
	e, err := NewExtractor(Pattern{
		Name: "suffix-first",
		Expr: regexp.MustCompile(`^acct(?P<suffix>\d{4})_(?P<year>\d{4})(?P<month>\d{2})`),
	})
	require.NoError(t, err)

	got, err := e.Extract("acct5555_202406.pdf")
	require.NoError(t, err)
	assert.Equal(t, "5555", got.Suffix)
	assert.Equal(t, "06", got.Month)
	assert.Equal(t, "2024", got.Year)

	_, err = e.Extract("20240315-statements-1234-foo.pdf")
	assert.ErrorIs(t, err, ErrNoPatternMatched)
}

func TestDefault_MatchesDefaultPatterns(t *testing.T) {
	_, err := NewExtractor(DefaultPatterns...)
	require.NoError(t, err, "default patterns must expose every group")

	id, err := Default().Extract("2024-03-31-statements-1234-acme.pdf")
	require.NoError(t, err)
	assert.Equal(t, "1234032024.json", id.ArtifactName())
}
