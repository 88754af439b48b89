// Package ranking filters and orders food search hits by how well their
// names match the user's query.
package ranking

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
)

// Score weights.
const (
	scoreExactName       = 100
	scoreBaseExact       = 55
	scoreBasePrefix      = 45
	scoreBaseSubstring   = 30
	scorePrefixPlain     = 50
	scorePrefixQualified = 60
	scoreWordSubstring   = 20
	scoreSubstring       = 15
	scorePerWord         = 8
	scorePlainFood       = 10
	maxLengthBonus       = 15
	descriptorCap        = 1
)

// Defaults for Options.
const (
	DefaultLimit    = 10
	DefaultMinScore = 10
)

// Options tune filtering.
type Options struct {
	Limit    int     // maximum results kept
	MinScore float64 // results at or below are dropped
	Language string  // which localized name to score
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinScore == 0 {
		o.MinScore = DefaultMinScore
	}
	if o.Language == "" {
		o.Language = "fi"
	}
	return o
}

// Ranker is the contract shared by the deterministic ranker and any
// external one: candidates and a query in, an ordered subset out.
type Ranker interface {
	Rank(ctx context.Context, candidates []models.FoodRecord, query string) ([]models.FoodRecord, error)
}

// Deterministic adapts Rank to the Ranker interface.
type Deterministic struct {
	Options Options
}

// Rank implements Ranker.
func (d Deterministic) Rank(_ context.Context, candidates []models.FoodRecord, query string) ([]models.FoodRecord, error) {
	return Rank(candidates, query, d.Options), nil
}

// descriptorMarker matches folded words that introduce a secondary
// descriptor ("contains X", "with X flavour") rather than the food's identity.
var descriptorMarker = regexp.MustCompile(`\b(sisaltaa|contains|containing|with|med|innehaller|flavou?r|smak|maku\w*|maustettu|kuorrute\w*|tayte\w*|kastike\w*)\b`)

type scored struct {
	food  models.FoodRecord
	score float64
}

// Score computes the additive relevance of one food name for query.
// The query must already be folded.
func Score(food models.FoodRecord, foldedQuery, lang string) float64 {
	raw := food.Name(lang)
	name := textnorm.Fold(raw)
	if name == "" || foldedQuery == "" {
		return 0
	}
	base := textnorm.FoldedBase(raw)
	qualified := strings.Contains(raw, ",")

	var score float64
	if name == foldedQuery {
		score += scoreExactName
	}

	if qualified {
		switch {
		case base == foldedQuery:
			score += scoreBaseExact
		case strings.HasPrefix(base, foldedQuery):
			score += scoreBasePrefix
		case strings.Contains(base, foldedQuery):
			score += scoreBaseSubstring
		}
	}

	if strings.HasPrefix(name, foldedQuery) {
		if qualified {
			score += scorePrefixQualified
		} else {
			score += scorePrefixPlain
		}
	} else if strings.Contains(name, foldedQuery) {
		if strings.Contains(" "+name, " "+foldedQuery) {
			score += scoreWordSubstring
		} else {
			score += scoreSubstring
		}
	}

	words := strings.Fields(foldedQuery)
	if len(words) > 1 {
		for _, w := range words {
			if strings.Contains(name, w) {
				score += scorePerWord
			}
		}
	}

	if food.Type == models.FoodTypeFood {
		score += scorePlainFood
	}

	if bonus := maxLengthBonus - utf8.RuneCountInString(name)/4; bonus > 0 {
		score += float64(bonus)
	}

	if onlyInDescriptor(raw, base, foldedQuery) && score > descriptorCap {
		score = descriptorCap
	}
	return score
}

// onlyInDescriptor reports whether the query is found only in a qualifier
// introduced by a descriptor word, not in the base name.
func onlyInDescriptor(raw, foldedBase, foldedQuery string) bool {
	if strings.Contains(foldedBase, foldedQuery) {
		return false
	}
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		folded := textnorm.Fold(raw)
		loc := descriptorMarker.FindStringIndex(folded)
		if loc == nil {
			return false
		}
		return !strings.Contains(folded[:loc[0]], foldedQuery) &&
			strings.Contains(folded[loc[0]:], foldedQuery)
	}
	for _, p := range parts[1:] {
		fp := textnorm.Fold(p)
		if strings.Contains(fp, foldedQuery) && descriptorMarker.MatchString(fp) {
			return true
		}
	}
	return false
}

// Rank filters and orders results by relevance to query. Ties keep input
// order. When every result falls at or below the minimum score, the single
// best one is kept so a non-empty input never ranks to nothing.
func Rank(results []models.FoodRecord, query string, opts Options) []models.FoodRecord {
	if len(results) == 0 {
		return nil
	}
	opts = opts.withDefaults()
	q := textnorm.Fold(query)

	all := make([]scored, len(results))
	for i, r := range results {
		all[i] = scored{food: r, score: Score(r, q, opts.Language)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})

	kept := make([]models.FoodRecord, 0, len(all))
	for _, s := range all {
		if s.score <= opts.MinScore {
			continue
		}
		kept = append(kept, s.food)
		if len(kept) == opts.Limit {
			break
		}
	}
	if len(kept) == 0 {
		kept = append(kept, all[0].food)
	}
	return kept
}
