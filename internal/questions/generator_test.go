package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/units"
)

func candidate(id int, name string, us ...models.FoodUnit) models.FoodRecord {
	return models.FoodRecord{ID: id, Names: models.LocalizedText{"fi": name, "en": name + " (en)"}, Units: us}
}

func TestDisambiguation(t *testing.T) {
	item := models.ParsedItem{
		ID:      "item-1",
		RawText: "kaurapuuro",
		State:   models.StateDisambiguating,
		Candidates: []models.FoodRecord{
			candidate(1, "Kaurapuuro, vesi"),
			candidate(2, "Kaurapuuro, maito"),
		},
	}
	p := Disambiguation(item, "fi")

	assert.Equal(t, "Löysin useita vaihtoehtoja haulle \"kaurapuuro\":\n1. Kaurapuuro, vesi\n2. Kaurapuuro, maito\nVastaa numerolla 1–2.", p.Message)
	assert.Equal(t, models.QuestionDisambiguation, p.Question.Type)
	assert.Equal(t, "item-1", p.Question.ItemID)
	require.Len(t, p.Question.Options, 2)
	assert.Equal(t, models.QuestionOption{Key: "2", Label: "Kaurapuuro, maito", Value: "2"}, p.Question.Options[1])

	again := Disambiguation(item, "fi")
	assert.Equal(t, p, again, "generation is deterministic")
}

func TestPortion_Sizes(t *testing.T) {
	apple := candidate(3, "Omena",
		models.FoodUnit{Code: units.CodePieceSmall, Labels: models.LocalizedText{"fi": "pieni kpl"}, Mass: 100},
		models.FoodUnit{Code: units.CodePieceLarge, Labels: models.LocalizedText{"fi": "iso kpl"}, Mass: 200},
	)
	item := models.ParsedItem{ID: "item-2", RawText: "omena", State: models.StatePortioning, Candidates: []models.FoodRecord{apple}, SelectedFood: &apple}

	p := Portion(item, "fi")
	assert.Contains(t, p.Message, "Kuinka paljon söit: Omena?")
	assert.Contains(t, p.Message, "1. pieni kpl (100 g)")
	assert.Contains(t, p.Message, "2. iso kpl (200 g)")
	require.Len(t, p.Question.Options, 3)
	assert.Equal(t, "1 KPL_S", p.Question.Options[0].Value)
	assert.Equal(t, "g", p.Question.Options[2].Key)
	assert.Equal(t, "sizes", p.Question.TemplateParams["mode"])
	assert.NotContains(t, p.Message, "En ymmärtänyt")

	item.RetryCount = 1
	retry := Portion(item, "fi")
	assert.Contains(t, retry.Message, "En ymmärtänyt määrää.")
	assert.NotEqual(t, p.Question.ID, retry.Question.ID)
	assert.Equal(t, 1, retry.Question.RetryCount)
}

func TestPortion_VolumeAndGrams(t *testing.T) {
	milk := candidate(4, "Maito", models.FoodUnit{Code: units.CodeDeciliter, Mass: 103})
	item := models.ParsedItem{ID: "item-3", State: models.StatePortioning, SelectedFood: &milk}
	p := Portion(item, "en")
	assert.Equal(t, "volume", p.Question.TemplateParams["mode"])
	assert.Contains(t, p.Message, "decilitres")
	assert.Equal(t, "1 dl (103 g)", p.Question.Options[0].Label)

	plain := candidate(5, "Suola")
	item.SelectedFood = &plain
	p = Portion(item, "en")
	assert.Equal(t, "grams", p.Question.TemplateParams["mode"])
	assert.Empty(t, p.Question.Options)
	assert.Contains(t, p.Message, "How much Suola (en) did you have?")
}

func TestNoMatch_RetryWording(t *testing.T) {
	item := models.ParsedItem{ID: "item-4", RawText: "xyzzy", State: models.StateNoMatch}
	first := NoMatch(item, "fi")
	item.RetryCount = 1
	second := NoMatch(item, "fi")

	assert.Contains(t, first.Message, "En löytänyt ruokaa \"xyzzy\"")
	assert.Contains(t, second.Message, "Vieläkään ei löytynyt")
	assert.Equal(t, "ohita", first.Question.Options[0].Value)
}

func TestCompanion(t *testing.T) {
	p := Companion("Kaurapuuro, vesi", "maito", "fi")
	assert.Equal(t, "Oliko ruoan Kaurapuuro kanssa myös maito? (kyllä/ei)", p.Message)
	assert.Empty(t, p.Question.ItemID)
	assert.Equal(t, "q-companion-maito", p.Question.ID)
	assert.Len(t, p.Question.Options, 2)
}

func TestRegenerate(t *testing.T) {
	state := models.NewConversationState("s", "m", "en")
	item := models.ParsedItem{ID: "item-1", RawText: "xyzzy", State: models.StateNoMatch}
	state.Items = append(state.Items, item)
	q := NoMatch(item, "en")
	state.PendingQuestion = &q.Question

	got, ok := Regenerate(state)
	require.True(t, ok)
	assert.Equal(t, q, got)

	state.PendingQuestion.ItemID = "gone"
	_, ok = Regenerate(state)
	assert.False(t, ok)
}

func TestTextsFallback(t *testing.T) {
	assert.Same(t, For("fi"), For("de"))
	assert.Same(t, For("en"), For("en-GB"))
	assert.Same(t, For("sv"), For("SV"))
}

func TestConfirmationAndFormatGrams(t *testing.T) {
	food := candidate(1, "Kana")
	item := models.ParsedItem{SelectedFood: &food, PortionGrams: 120}
	assert.Equal(t, "✓ Kana, 120 g", Confirmation(item, "fi"))
	assert.Equal(t, "12.5", FormatGrams(12.46))
	assert.Equal(t, "Removed: Kana.", Text("en", func(t *Texts) string { return t.Removed }, map[string]string{"name": "Kana"}))
}
