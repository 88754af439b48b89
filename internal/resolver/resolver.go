// Package resolver holds the per-item state machine:
//
//	PARSED ──search──▶ NO_MATCH | DISAMBIGUATING | PORTIONING | RESOLVED
//	DISAMBIGUATING ──select──▶ PORTIONING | RESOLVED
//	PORTIONING ──quantity──▶ RESOLVED
//
// Every transition takes an item by value and returns a new one.
package resolver

import (
	"errors"
	"fmt"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/nutrients"
	"mcp-meal-dialog/internal/units"
)

// DefaultMaxNoMatchRetries is how many failed re-searches a NO_MATCH item
// gets before it is dropped.
const DefaultMaxNoMatchRetries = 2

var (
	// ErrInvalidSelection is returned for a disambiguation index outside 1..N.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrWrongState is returned when a transition does not apply to the item's state.
	ErrWrongState = errors.New("transition not valid in current state")
)

// New creates a PARSED item.
func New(id, rawText string, amount *models.Amount) models.ParsedItem {
	item := models.ParsedItem{ID: id, RawText: rawText, State: models.StateParsed}
	if amount != nil {
		a := *amount
		item.InferredAmount = &a
	}
	return item
}

// KnownGrams reports the item's inferred amount in grams when it was given
// in a mass unit.
func KnownGrams(item models.ParsedItem) (float64, bool) {
	a := item.InferredAmount
	if a == nil || a.Value <= 0 || !units.IsMass(a.Unit) {
		return 0, false
	}
	conv, err := units.Convert(a.Value, a.Unit, models.FoodRecord{}, "")
	if err != nil {
		return 0, false
	}
	return conv.Grams, true
}

func clearResolution(item models.ParsedItem) models.ParsedItem {
	item.Candidates = nil
	item.SelectedFood = nil
	item.PortionGrams = 0
	item.PortionUnitCode = ""
	item.PortionUnitLabel = ""
	item.PortionAmount = 0
	item.ResolvedSeq = 0
	return item
}

// ApplySearch moves an item out of PARSED given raw results and their ranked
// subset. With no results the item becomes NO_MATCH and keeps its retry
// count. With a known gram amount the top-ranked candidate is taken without
// asking, regardless of how many candidates there are.
func ApplySearch(item models.ParsedItem, results, ranked []models.FoodRecord, lang string) models.ParsedItem {
	item = clearResolution(item)
	if len(results) == 0 {
		item.State = models.StateNoMatch
		return item
	}

	candidates := ranked
	if len(candidates) == 0 {
		candidates = results
	}
	item.Candidates = make([]models.FoodRecord, len(candidates))
	for i, c := range candidates {
		item.Candidates[i] = c.Clone()
	}
	item.RetryCount = 0

	if grams, ok := KnownGrams(item); ok {
		top := item.Candidates[0].Clone()
		item.SelectedFood = &top
		conv, _ := units.Convert(item.InferredAmount.Value, item.InferredAmount.Unit, top, lang)
		return resolve(item, conv, item.InferredAmount.Value, grams)
	}

	if len(item.Candidates) == 1 {
		top := item.Candidates[0].Clone()
		item.SelectedFood = &top
		item.State = models.StatePortioning
		return applyInferred(item, lang)
	}

	item.State = models.StateDisambiguating
	return item
}

// applyInferred resolves a PORTIONING item immediately when its inferred
// non-gram amount converts against the selected food.
func applyInferred(item models.ParsedItem, lang string) models.ParsedItem {
	a := item.InferredAmount
	if a == nil || item.SelectedFood == nil {
		return item
	}
	conv, err := units.Convert(a.Value, a.Unit, *item.SelectedFood, lang)
	if err != nil {
		return item
	}
	return resolve(item, conv, a.Value, conv.Grams)
}

func resolve(item models.ParsedItem, conv units.Conversion, amount, grams float64) models.ParsedItem {
	item.State = models.StateResolved
	item.PortionGrams = grams
	item.PortionUnitCode = conv.UnitCode
	item.PortionUnitLabel = conv.UnitLabel
	item.PortionAmount = amount
	item.RetryCount = 0
	return item
}

// Select picks candidate index (1-based) of a DISAMBIGUATING item. An
// index outside 1..N returns the item unchanged with ErrInvalidSelection.
func Select(item models.ParsedItem, index int, lang string) (models.ParsedItem, error) {
	if item.State != models.StateDisambiguating {
		return item, fmt.Errorf("select on %s: %w", item.State, ErrWrongState)
	}
	if index < 1 || index > len(item.Candidates) {
		return item, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidSelection, index, len(item.Candidates))
	}
	item = item.Clone()
	chosen := item.Candidates[index-1].Clone()
	item.SelectedFood = &chosen
	item.RetryCount = 0

	if grams, ok := KnownGrams(item); ok {
		conv, _ := units.Convert(item.InferredAmount.Value, item.InferredAmount.Unit, chosen, lang)
		return resolve(item, conv, item.InferredAmount.Value, grams), nil
	}
	item.State = models.StatePortioning
	return applyInferred(item, lang), nil
}

// Revert sends an item back to PARSED with new text so it can be searched
// again. The inferred amount and retry count survive.
func Revert(item models.ParsedItem, newText string) models.ParsedItem {
	item = clearResolution(item.Clone())
	if newText != "" {
		item.RawText = newText
	}
	item.State = models.StateParsed
	return item
}

// ApplyQuantity converts q against the selected food and resolves the item.
// It is valid in PORTIONING and, for in-place portion updates, RESOLVED.
func ApplyQuantity(item models.ParsedItem, q models.Quantity, lang string) (models.ParsedItem, error) {
	if item.SelectedFood == nil || (item.State != models.StatePortioning && item.State != models.StateResolved) {
		return item, fmt.Errorf("quantity on %s: %w", item.State, ErrWrongState)
	}
	conv, err := units.Convert(q.Amount, q.Unit, *item.SelectedFood, lang)
	if err != nil {
		return item, err
	}
	return resolve(item.Clone(), conv, q.Amount, conv.Grams), nil
}

// RetryPortion records an unparseable portion answer.
func RetryPortion(item models.ParsedItem) models.ParsedItem {
	item = item.Clone()
	item.RetryCount++
	return item
}

// Research re-searches a NO_MATCH item under newText. When the search is
// empty again the retry count grows and removed reports whether it reached
// maxRetries.
func Research(item models.ParsedItem, newText string, results, ranked []models.FoodRecord, maxRetries int, lang string) (next models.ParsedItem, removed bool) {
	next = Revert(item, newText)
	if len(results) == 0 {
		next.State = models.StateNoMatch
		next.RetryCount++
		return next, next.RetryCount >= maxRetries
	}
	return ApplySearch(next, results, ranked, lang), false
}

// ToResolved builds the output record of a RESOLVED item.
func ToResolved(item models.ParsedItem, lang string) models.ResolvedItem {
	out := models.ResolvedItem{
		ItemID:           item.ID,
		PortionGrams:     item.PortionGrams,
		PortionUnitCode:  item.PortionUnitCode,
		PortionUnitLabel: item.PortionUnitLabel,
		PortionAmount:    item.PortionAmount,
	}
	if f := item.SelectedFood; f != nil {
		c := f.Clone()
		out.FineliFoodID = c.ID
		out.Name = c.Name(lang)
		out.Names = c.Names
		out.NutrientsPer100g = c.NutrientsPer100g
		out.ComputedNutrients = nutrients.Scale(c.NutrientsPer100g, item.PortionGrams)
	}
	return out
}
