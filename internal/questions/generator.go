// Package questions renders item state into prompts and quick-reply
// options. Every function is pure: the same item and retry count always
// give the same message and PendingQuestion.
package questions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
	"mcp-meal-dialog/internal/units"
)

// Prompt is a rendered question.
type Prompt struct {
	Message  string
	Question models.PendingQuestion
}

// sizeCodes are offered as portion options in this order when present.
var sizeCodes = []string{
	units.CodePieceSmall,
	units.CodePieceMedium,
	units.CodePieceLarge,
	units.CodePortionSmall,
	units.CodePortionMed,
	units.CodePortionLarge,
	units.CodePiece,
}

// QuestionID is deterministic so a regenerated question equals the cached one.
func QuestionID(itemID string, typ models.QuestionType, retry int) string {
	return fmt.Sprintf("q-%s-%s-%d", itemID, typ, retry)
}

// ForItem renders the question an item in a waiting state needs. It
// returns false for PARSED and RESOLVED items.
func ForItem(item models.ParsedItem, lang string) (Prompt, bool) {
	switch item.State {
	case models.StateDisambiguating:
		return Disambiguation(item, lang), true
	case models.StatePortioning:
		return Portion(item, lang), true
	case models.StateNoMatch:
		return NoMatch(item, lang), true
	}
	return Prompt{}, false
}

// Disambiguation lists the candidates as 1..N.
func Disambiguation(item models.ParsedItem, lang string) Prompt {
	t := For(lang)
	params := map[string]string{
		"query": item.RawText,
		"count": strconv.Itoa(len(item.Candidates)),
	}

	var b strings.Builder
	b.WriteString(Format(t.DisambiguationIntro, params))
	options := make([]models.QuestionOption, len(item.Candidates))
	for i, c := range item.Candidates {
		key := strconv.Itoa(i + 1)
		name := c.Name(lang)
		fmt.Fprintf(&b, "\n%s. %s", key, name)
		options[i] = models.QuestionOption{Key: key, Label: name, Value: key}
	}
	b.WriteString("\n")
	b.WriteString(Format(t.DisambiguationFooter, params))

	return Prompt{
		Message: b.String(),
		Question: models.PendingQuestion{
			ID:             QuestionID(item.ID, models.QuestionDisambiguation, item.RetryCount),
			ItemID:         item.ID,
			Type:           models.QuestionDisambiguation,
			TemplateParams: params,
			Options:        options,
			RetryCount:     item.RetryCount,
		},
	}
}

// Portion offers the food's named sizes with their gram equivalents, else
// volume-or-grams when it has a deciliter unit, else grams only.
func Portion(item models.ParsedItem, lang string) Prompt {
	t := For(lang)
	name := item.DisplayName(lang)
	params := map[string]string{"name": name}

	var b strings.Builder
	if item.RetryCount > 0 {
		b.WriteString(t.PortionRetry)
		b.WriteString(" ")
	}
	b.WriteString(Format(t.PortionAsk, params))

	var options []models.QuestionOption
	var food models.FoodRecord
	if item.SelectedFood != nil {
		food = *item.SelectedFood
	}

	for _, code := range sizeCodes {
		u, ok := food.Unit(code)
		if !ok || u.Mass <= 0 {
			continue
		}
		options = append(options, models.QuestionOption{
			Key:   strconv.Itoa(len(options) + 1),
			Label: fmt.Sprintf("%s (%s g)", u.Label(lang), FormatGrams(u.Mass)),
			Value: "1 " + u.Code,
		})
	}

	switch {
	case len(options) > 0:
		params["mode"] = "sizes"
		b.WriteString("\n")
		b.WriteString(t.PortionChoose)
		for _, o := range options {
			fmt.Fprintf(&b, "\n%s. %s", o.Key, o.Label)
		}
		options = append(options, models.QuestionOption{Key: "g", Label: t.PortionOtherGrams, Value: ""})
	default:
		if dl, ok := food.Unit(units.CodeDeciliter); ok && dl.Mass > 0 {
			params["mode"] = "volume"
			b.WriteString(" ")
			b.WriteString(t.PortionVolume)
			options = []models.QuestionOption{
				{Key: "dl", Label: fmt.Sprintf("1 dl (%s g)", FormatGrams(dl.Mass)), Value: "1 dl"},
				{Key: "g", Label: t.PortionOtherGrams, Value: ""},
			}
		} else {
			params["mode"] = "grams"
			b.WriteString(" ")
			b.WriteString(t.PortionGrams)
		}
	}

	return Prompt{
		Message: b.String(),
		Question: models.PendingQuestion{
			ID:             QuestionID(item.ID, models.QuestionPortion, item.RetryCount),
			ItemID:         item.ID,
			Type:           models.QuestionPortion,
			TemplateParams: params,
			Options:        options,
			RetryCount:     item.RetryCount,
		},
	}
}

// NoMatch asks for another name or a skip. The wording changes once the
// item has been retried.
func NoMatch(item models.ParsedItem, lang string) Prompt {
	t := For(lang)
	params := map[string]string{"query": item.RawText}
	tmpl := t.NoMatch
	if item.RetryCount > 0 {
		tmpl = t.NoMatchRetry
	}
	return Prompt{
		Message: Format(tmpl, params),
		Question: models.PendingQuestion{
			ID:             QuestionID(item.ID, models.QuestionNoMatchRetry, item.RetryCount),
			ItemID:         item.ID,
			Type:           models.QuestionNoMatchRetry,
			TemplateParams: params,
			Options:        []models.QuestionOption{{Key: "skip", Label: t.NoMatchSkipLabel, Value: strings.ToLower(t.NoMatchSkipLabel)}},
			RetryCount:     item.RetryCount,
		},
	}
}

// Companion asks whether companion was eaten with primary. It is not
// scoped to an item, so ItemID is empty.
func Companion(primary, companion, lang string) Prompt {
	t := For(lang)
	params := map[string]string{
		"primary":   textnorm.BaseName(primary),
		"companion": companion,
	}
	return Prompt{
		Message: Format(t.Companion, params),
		Question: models.PendingQuestion{
			ID:             "q-companion-" + strings.ReplaceAll(textnorm.Fold(companion), " ", "-"),
			ItemID:         "",
			Type:           models.QuestionCompanion,
			TemplateParams: params,
			Options: []models.QuestionOption{
				{Key: "yes", Label: t.Yes, Value: strings.ToLower(t.Yes)},
				{Key: "no", Label: t.No, Value: strings.ToLower(t.No)},
			},
		},
	}
}

// Regenerate rebuilds the text of a cached question from state.
func Regenerate(state models.ConversationState) (Prompt, bool) {
	q := state.PendingQuestion
	if q == nil {
		return Prompt{}, false
	}
	if q.Type == models.QuestionCompanion {
		return Companion(q.TemplateParams["primary"], q.TemplateParams["companion"], state.Language), true
	}
	idx := state.Item(q.ItemID)
	if idx < 0 {
		return Prompt{}, false
	}
	return ForItem(state.Items[idx], state.Language)
}

// Confirmation is the inline acknowledgement of a resolved item.
func Confirmation(item models.ParsedItem, lang string) string {
	return Format(For(lang).Confirmed, map[string]string{
		"name":  item.DisplayName(lang),
		"grams": FormatGrams(item.PortionGrams),
	})
}

// PortionUpdate acknowledges an in-place portion change.
func PortionUpdate(item models.ParsedItem, lang string) string {
	return Format(For(lang).PortionUpdated, map[string]string{
		"name":  item.DisplayName(lang),
		"grams": FormatGrams(item.PortionGrams),
	})
}

// QueueNotice tells the user newly added items wait behind the active one.
func QueueNotice(names []string, lang string) string {
	return Format(For(lang).Queued, map[string]string{"names": strings.Join(names, ", ")})
}

// InvalidChoice is the error for an out-of-range selection.
func InvalidChoice(count int, lang string) string {
	return Format(For(lang).InvalidChoice, map[string]string{"count": strconv.Itoa(count)})
}

// Text fills one of the simple templates, picked by the accessor.
func Text(lang string, pick func(*Texts) string, params map[string]string) string {
	return Format(pick(For(lang)), params)
}

// FormatGrams prints grams with at most one decimal.
func FormatGrams(g float64) string {
	return strconv.FormatFloat(math.Round(g*10)/10, 'f', -1, 64)
}
