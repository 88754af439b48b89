package fineli

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
)

// CachedSearcher memoizes successful searches of another Searcher.
// Failed searches are not cached.
type CachedSearcher struct {
	next  Searcher
	cache *expirable.LRU[string, []models.FoodRecord]
}

// NewCachedSearcher wraps next with an LRU of size entries that expire
// after ttl.
func NewCachedSearcher(next Searcher, size int, ttl time.Duration) *CachedSearcher {
	if size <= 0 {
		size = 512
	}
	return &CachedSearcher{
		next:  next,
		cache: expirable.NewLRU[string, []models.FoodRecord](size, nil, ttl),
	}
}

// Search implements Searcher. Callers get their own copies of cached records.
func (s *CachedSearcher) Search(ctx context.Context, text, lang string) ([]models.FoodRecord, error) {
	key := lang + "|" + textnorm.Fold(text)
	if hit, ok := s.cache.Get(key); ok {
		return cloneAll(hit), nil
	}
	res, err := s.next.Search(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, cloneAll(res))
	return res, nil
}

func cloneAll(foods []models.FoodRecord) []models.FoodRecord {
	if foods == nil {
		return nil
	}
	out := make([]models.FoodRecord, len(foods))
	for i, f := range foods {
		out[i] = f.Clone()
	}
	return out
}
