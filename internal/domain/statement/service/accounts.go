package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

const (
	defaultAccountTTL = 10 * time.Minute
	maxSuggestions    = 3
	maxSuggestionDist = 2
)

// AccountLookup is the part of the repository the resolver needs.
type AccountLookup interface {
	FetchAccountReference(ctx context.Context, accountNumber string) (*statement.AccountReference, error)
	ListAccountReferences(ctx context.Context) ([]statement.AccountReference, error)
}

// AccountResolver caches account reference lookups for the life of a run
// and suggests near matches for unknown account numbers.
type AccountResolver struct {
	repo   AccountLookup
	cache  *cache.Cache
	logger *slog.Logger
}

func NewAccountResolver(repo AccountLookup, ttl time.Duration, logger *slog.Logger) *AccountResolver {
	if ttl <= 0 {
		ttl = defaultAccountTTL
	}
	return &AccountResolver{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Resolve returns the account reference for accountNumber, or
// repository.ErrAccountNotFound. Misses are not cached.
func (a *AccountResolver) Resolve(ctx context.Context, accountNumber string) (*statement.AccountReference, error) {
	if v, ok := a.cache.Get(accountNumber); ok {
		return v.(*statement.AccountReference), nil
	}

	ref, err := a.repo.FetchAccountReference(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	a.cache.Set(accountNumber, ref, cache.DefaultExpiration)
	return ref, nil
}

// List returns all configured account references.
func (a *AccountResolver) List(ctx context.Context) ([]statement.AccountReference, error) {
	return a.repo.ListAccountReferences(ctx)
}

// Suggest returns up to three known account numbers close to accountNumber:
// those sharing its last four digits, or within a small edit distance.
func (a *AccountResolver) Suggest(ctx context.Context, accountNumber string) []string {
	refs, err := a.repo.ListAccountReferences(ctx)
	if err != nil {
		a.logger.Debug("cannot list accounts for suggestions", slog.Any("error", err))
		return nil
	}

	type candidate struct {
		number string
		dist   int
	}
	var candidates []candidate
	for _, ref := range refs {
		d := fuzzy.LevenshteinDistance(accountNumber, ref.AccountNumber)
		if d <= maxSuggestionDist || sameSuffix(accountNumber, ref.AccountNumber) {
			candidates = append(candidates, candidate{number: ref.AccountNumber, dist: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	var out []string
	for i, c := range candidates {
		if i == maxSuggestions {
			break
		}
		out = append(out, c.number)
	}
	return out
}

func sameSuffix(a, b string) bool {
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return a[len(a)-4:] == b[len(b)-4:]
}
