package dialog

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcp-meal-dialog/internal/bounded"
	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/ranking"
	"mcp-meal-dialog/internal/resolver"
)

// searchOutcome is the raw and ranked result of one item's search.
type searchOutcome struct {
	results []models.FoodRecord
	ranked  []models.FoodRecord
}

// searchAll searches every item concurrently. Failures come back as empty
// outcomes, which the resolver turns into NO_MATCH.
func (e *Engine) searchAll(ctx context.Context, items []models.ParsedItem, lang string) []searchOutcome {
	out := make([]searchOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			out[i] = e.search(gctx, item, lang)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// search runs the provider and then ranks. The external ranker is only
// asked when there is a choice to make and no gram amount would
// auto-resolve the item anyway.
func (e *Engine) search(ctx context.Context, item models.ParsedItem, lang string) searchOutcome {
	query := strings.TrimSpace(item.RawText)
	results, err := bounded.Call(ctx, e.config.SearchTimeout, func(ctx context.Context) ([]models.FoodRecord, error) {
		return e.searcher.Search(ctx, query, lang)
	})
	if err != nil {
		e.logger.Warn("food search failed",
			zap.String("item_id", item.ID),
			zap.String("query", query),
			zap.Error(err))
		return searchOutcome{}
	}

	ranked := ranking.Rank(results, query, ranking.Options{
		Limit:    e.config.ResultLimit,
		MinScore: e.config.MinScore,
		Language: lang,
	})

	if _, known := resolver.KnownGrams(item); e.ranker != nil && len(results) > 1 && !known {
		ext, err := bounded.Call(ctx, e.config.RankTimeout, func(ctx context.Context) ([]models.FoodRecord, error) {
			return e.ranker.Rank(ctx, results, query)
		})
		switch {
		case err != nil:
			e.logger.Warn("external ranker failed, using deterministic ranking",
				zap.String("query", query), zap.Error(err))
		default:
			if kept := subsetOf(ext, results); len(kept) > 0 {
				ranked = kept
			}
		}
	}

	e.logger.Debug("item searched",
		zap.String("item_id", item.ID),
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Int("ranked", len(ranked)))
	return searchOutcome{results: results, ranked: ranked}
}

// subsetOf keeps the records of ranked that came from results, in ranked
// order and without duplicates, so an external ranker cannot invent foods.
func subsetOf(ranked, results []models.FoodRecord) []models.FoodRecord {
	byID := make(map[int]models.FoodRecord, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	seen := make(map[int]bool, len(ranked))
	var out []models.FoodRecord
	for _, r := range ranked {
		orig, ok := byID[r.ID]
		if !ok || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, orig)
	}
	return out
}

func (e *Engine) rephrase(ctx context.Context, message string, st models.ConversationState, in models.Intent) string {
	rc := ResponseContext{
		Language:      st.Language,
		MealType:      st.MealType,
		Intent:        in.Type,
		ResolvedFoods: resolvedNames(st),
		IsComplete:    st.IsComplete,
	}
	out, err := bounded.Call(ctx, e.config.RespondTimeout, func(ctx context.Context) (string, error) {
		return e.responder.Respond(ctx, message, rc)
	})
	if err != nil {
		e.logger.Warn("responder failed, using deterministic message", zap.Error(err))
		return message
	}
	if strings.TrimSpace(out) == "" {
		return message
	}
	return out
}
