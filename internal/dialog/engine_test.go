package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mcp-meal-dialog/internal/companion"
	"mcp-meal-dialog/internal/fineli"
	"mcp-meal-dialog/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func food(id int, fi, en string, units ...models.FoodUnit) models.FoodRecord {
	return models.FoodRecord{
		ID:               id,
		Names:            models.LocalizedText{"fi": fi, "en": en},
		Type:             models.FoodTypeFood,
		Units:            units,
		NutrientsPer100g: map[string]float64{"energyKcal": 100, "protein": 5},
	}
}

var (
	porridgeWater = food(1, "Kaurapuuro, vesi", "Oatmeal porridge, water",
		models.FoodUnit{Code: "DL", Mass: 103}, models.FoodUnit{Code: "PORTM", Labels: models.LocalizedText{"fi": "keskikokoinen annos"}, Mass: 300})
	porridgeMilk = food(2, "Kaurapuuro, maito", "Oatmeal porridge, milk",
		models.FoodUnit{Code: "DL", Mass: 105})
	chicken = food(3, "Kana, broileri, paistettu", "Chicken, fried")
	salmon  = food(4, "Kala, lohi", "Fish, salmon")
	milk    = food(5, "Maito, rasvaton", "Milk, skimmed", models.FoodUnit{Code: "DL", Mass: 103})
	banana  = food(6, "Banaani", "Banana", models.FoodUnit{Code: "KPL_M", Mass: 120})
	coffee  = food(7, "Kahvi", "Coffee", models.FoodUnit{Code: "DL", Mass: 100})
	apple   = food(8, "Omena", "Apple", models.FoodUnit{Code: "KPL_M", Mass: 150})
)

func catalog(foods ...models.FoodRecord) *fineli.Catalog {
	return fineli.NewCatalog(foods)
}

func defaultCatalog() *fineli.Catalog {
	return catalog(porridgeWater, porridgeMilk, chicken, salmon, milk, banana, coffee, apple)
}

func newState() models.ConversationState {
	return models.NewConversationState("s-1", "m-1", "fi")
}

// newEngine disables companion questions so scenarios end on their own.
func newEngine(s FoodSearcher, opts ...Option) *Engine {
	return New(s, append([]Option{WithCompanions(companion.New(nil))}, opts...)...)
}

type conversation struct {
	t   *testing.T
	e   *Engine
	st  models.ConversationState
	res TurnResult
}

func (c *conversation) say(text string) TurnResult {
	c.t.Helper()
	c.res = c.e.ProcessMessage(context.Background(), c.st, text)
	c.st = c.res.State
	return c.res
}

func TestEngine_DisambiguatePortionDone(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}

	res := c.say("kaurapuuro")
	assert.Equal(t, models.IntentAddItems, res.Intent.Type)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionDisambiguation, res.Question.Type)
	assert.Len(t, res.Question.Options, 2)
	assert.Contains(t, res.Message, `Löysin useita vaihtoehtoja haulle "kaurapuuro"`)
	assert.Equal(t, []string{"item-1"}, res.State.UnresolvedQueue)
	assert.Equal(t, "item-1", res.State.ActiveItemID)
	assert.Empty(t, res.ResolvedItems)

	res = c.say("1")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
	assert.Equal(t, models.StatePortioning, res.State.Items[0].State)
	assert.Equal(t, "Kaurapuuro, vesi", res.State.Items[0].SelectedFood.Name("fi"))

	res = c.say("200g")
	assert.Nil(t, res.Question)
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 200.0, res.ResolvedItems[0].PortionGrams)
	assert.Equal(t, 1, res.ResolvedItems[0].FineliFoodID)
	assert.Equal(t, 200.0, res.ResolvedItems[0].ComputedNutrients["energyKcal"])
	assert.Contains(t, res.Message, "✓ Kaurapuuro, vesi, 200 g")
	assert.Contains(t, res.Message, "Söitkö jotain muuta?")
	assert.Empty(t, res.State.UnresolvedQueue)
	assert.Empty(t, res.State.ActiveItemID)
	assert.False(t, res.State.IsComplete)

	res = c.say("valmis")
	assert.Equal(t, models.IntentDone, res.Intent.Type)
	assert.True(t, res.State.IsComplete)
	assert.Nil(t, res.Question)
	assert.Equal(t, "Ateria kirjattu (1 ruokaa). Kiitos!", res.Message)
}

func TestEngine_KnownGramsThenRemove(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}

	res := c.say("120g kanaa")
	assert.Nil(t, res.Question)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, models.StateResolved, res.State.Items[0].State)
	assert.Equal(t, 120.0, res.State.Items[0].PortionGrams)
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, "Kana, broileri, paistettu", res.ResolvedItems[0].Name)

	res = c.say("poista kanaa")
	assert.Equal(t, models.IntentRemoval, res.Intent.Type)
	assert.Empty(t, res.State.Items)
	assert.Contains(t, res.Message, "Kana, broileri, paistettu")
	assert.Equal(t, []string{"item-1"}, res.RemovedItemIDs)
	assert.Empty(t, res.ResolvedItems)
}

func TestEngine_InvalidSelection(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	first := c.say("kaurapuuro")
	require.NotNil(t, first.State.PendingQuestion)

	for _, reply := range []string{"5", "0", "1000", "-1"} {
		res := c.say(reply)
		assert.Contains(t, res.Message, "Virheellinen valinta. Valitse numero 1–2.", reply)
		assert.Contains(t, res.Message, "Löysin useita vaihtoehtoja", "the question is asked again")
		require.Len(t, res.State.Items, 1)
		assert.Equal(t, first.State.Items[0], res.State.Items[0], "item unchanged after %q", reply)
		require.NotNil(t, res.State.PendingQuestion)
		assert.Equal(t, first.State.PendingQuestion.ID, res.State.PendingQuestion.ID)
		assert.Empty(t, res.RemovedItemIDs)
	}
}

func TestEngine_RejectCandidates(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("kaurapuuro")

	res := c.say("ei mikään näistä")
	assert.Contains(t, res.Message, `jätin pois: "kaurapuuro"`)
	assert.Empty(t, res.State.Items)
	assert.Equal(t, []string{"item-1"}, res.RemovedItemIDs)
	assert.Nil(t, res.Question)
}

func TestEngine_ClarificationResearches(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("kaurapuuro")

	res := c.say("banaani")
	assert.Equal(t, models.IntentAnswer, res.Intent.Type)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, "banaani", res.State.Items[0].RawText)
	assert.Equal(t, models.StatePortioning, res.State.Items[0].State)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
}

func TestEngine_NoMatchRetriesThenDrops(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}

	res := c.say("xyzzy")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionNoMatchRetry, res.Question.Type)
	assert.Equal(t, models.StateNoMatch, res.State.Items[0].State)

	res = c.say("qwerty")
	require.NotNil(t, res.State.PendingQuestion)
	assert.Equal(t, 1, res.State.PendingQuestion.RetryCount)
	assert.Contains(t, res.Message, `Vieläkään ei löytynyt "qwerty"`)

	res = c.say("asdf")
	assert.Empty(t, res.State.Items)
	assert.Contains(t, res.Message, `Ohitetaan "asdf".`)
	assert.Equal(t, []string{"item-1"}, res.RemovedItemIDs)
	assert.Nil(t, res.Question)
}

func TestEngine_NoMatchResolvesOnClarification(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("200 g xyzzy")

	res := c.say("kanaa")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 200.0, res.ResolvedItems[0].PortionGrams, "the inferred amount survives the re-search")
	assert.Nil(t, res.Question)
}

func TestEngine_SkipNoMatch(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("xyzzy")
	res := c.say("ohita")
	assert.Empty(t, res.State.Items)
	assert.Contains(t, res.Message, `Ohitetaan "xyzzy".`)
}

func TestEngine_Correction(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("120g kanaa")

	res := c.say("ei vaan 150g kalaa")
	assert.Equal(t, models.IntentCorrection, res.Intent.Type)
	require.Len(t, res.State.Items, 1)
	item := res.State.Items[0]
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, models.StateResolved, item.State)
	assert.Equal(t, "Kala, lohi", item.SelectedFood.Name("fi"))
	assert.Equal(t, 150.0, item.PortionGrams)
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 4, res.ResolvedItems[0].FineliFoodID)
	assert.Empty(t, res.RemovedItemIDs, "a re-resolved item keeps its entry")
	assert.Contains(t, res.Message, `Korjataan: "kalaa".`)
}

func TestEngine_CorrectionKeepsGrams(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("120g kanaa")

	res := c.say("tarkoitin kaurapuuro")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, "Kaurapuuro, vesi", res.ResolvedItems[0].Name)
	assert.Equal(t, 120.0, res.ResolvedItems[0].PortionGrams)
	assert.Nil(t, res.Question)
}

func TestEngine_CorrectionReopensResolvedItem(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("2 dl maitoa")

	res := c.say("tarkoitin kaurapuuro")
	assert.Equal(t, []string{"item-1"}, res.RemovedItemIDs)
	assert.Equal(t, models.StateDisambiguating, res.State.Items[0].State)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionDisambiguation, res.Question.Type)

	res = c.say("2")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, "Kaurapuuro, maito", res.ResolvedItems[0].Name)
	assert.Equal(t, 210.0, res.ResolvedItems[0].PortionGrams, "the inferred 2 dl applies to the new food")
}

func TestEngine_UpdatePortion(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("120g kanaa")

	res := c.say("muuta 200g")
	assert.Equal(t, models.IntentCorrection, res.Intent.Type)
	assert.Equal(t, 200.0, res.State.Items[0].PortionGrams)
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 200.0, res.ResolvedItems[0].PortionGrams)
	assert.Contains(t, res.Message, "✓ Päivitetty: Kana, broileri, paistettu, 200 g")

	res = c.say("muuta 3 viipaletta")
	assert.Contains(t, res.Message, "En tunnistanut yksikköä.")
	assert.Equal(t, 200.0, res.State.Items[0].PortionGrams)
}

func TestEngine_UpdatePortionNothingToUpdate(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	res := c.say("muuta 200g")
	assert.Contains(t, res.Message, "Ei muokattavaa annosta.")
}

func TestEngine_RemoveLatest(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("120g kanaa")
	res := c.say("2 dl maitoa")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 206.0, res.ResolvedItems[0].PortionGrams, "an inferred volume resolves without asking")

	res = c.say("poista viimeisin")
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, "item-1", res.State.Items[0].ID)
	assert.Contains(t, res.Message, "Poistettu: Maito, rasvaton.")
}

func TestEngine_RemoveNotFound(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("120g kanaa")
	res := c.say("poista pizza")
	assert.Contains(t, res.Message, `En löytänyt poistettavaa: "pizza".`)
	assert.Len(t, res.State.Items, 1)
}

func TestEngine_QueueNotice(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	res := c.say("banaani")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)

	res = c.say("kahvi ja omena")
	assert.Equal(t, models.IntentAddItems, res.Intent.Type)
	assert.Contains(t, res.Message, "Lisäsin jonoon: kahvi, omena.")
	assert.Contains(t, res.Message, "Kuinka paljon söit: Banaani?", "the pending question is asked again")
	assert.Equal(t, []string{"item-1", "item-2", "item-3"}, res.State.UnresolvedQueue)
	assert.Equal(t, "item-1", res.State.ActiveItemID)

	res = c.say("1")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 120.0, res.ResolvedItems[0].PortionGrams, "option key 1 picks the medium piece")
	assert.Equal(t, "item-2", res.State.ActiveItemID)
	assert.Contains(t, res.Message, "Kuinka paljon söit: Kahvi?")
}

func TestEngine_AmountWithFoodDuringPortion(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("banaani")

	res := c.say("2 kaurapuuroa")
	assert.Equal(t, models.IntentAddItems, res.Intent.Type)
	assert.Contains(t, res.Message, "Lisäsin jonoon: kaurapuuroa.")
	assert.Contains(t, res.Message, "Kuinka paljon söit: Banaani?")
	assert.Equal(t, []string{"item-1", "item-2"}, res.State.UnresolvedQueue)
	require.NotNil(t, res.State.PendingQuestion)
	assert.Equal(t, "item-1", res.State.PendingQuestion.ItemID)
	assert.Zero(t, res.State.PendingQuestion.RetryCount)

	res = c.say("200 g kanaa")
	assert.Equal(t, models.IntentAddItems, res.Intent.Type)
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, "Kana, broileri, paistettu", res.ResolvedItems[0].Name)
	assert.Equal(t, 200.0, res.ResolvedItems[0].PortionGrams)
	require.NotNil(t, res.State.PendingQuestion)
	assert.Equal(t, "item-1", res.State.PendingQuestion.ItemID)
	assert.Zero(t, res.State.PendingQuestion.RetryCount)
}

func TestEngine_PortionRetry(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("banaani")
	res := c.say("paljon g")
	require.NotNil(t, res.State.PendingQuestion)
	assert.Equal(t, 1, res.State.PendingQuestion.RetryCount)
	assert.Contains(t, res.Message, "En ymmärtänyt määrää.")
}

func TestEngine_DoneWithPending(t *testing.T) {
	c := &conversation{t: t, e: newEngine(defaultCatalog()), st: newState()}
	c.say("kaurapuuro")
	res := c.say("valmis")
	assert.Equal(t, models.IntentDone, res.Intent.Type)
	assert.True(t, res.State.IsComplete)
	assert.Contains(t, res.Message, "Kesken on vielä: kaurapuuro.")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionDisambiguation, res.Question.Type)
}

func TestEngine_CompanionFlow(t *testing.T) {
	e := New(catalog(porridgeWater, milk))
	c := &conversation{t: t, e: e, st: newState()}

	c.say("kaurapuuroa 300g")
	res := c.say("valmis")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionCompanion, res.Question.Type)
	assert.Equal(t, "Oliko ruoan Kaurapuuro kanssa myös maito? (kyllä/ei)", res.Message)
	assert.Equal(t, []string{"maito"}, res.State.CompanionChecks)

	res = c.say("kyllä")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
	assert.Equal(t, "Maito, rasvaton", res.State.Items[1].SelectedFood.Name("fi"))

	res = c.say("2 dl")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, 206.0, res.ResolvedItems[0].PortionGrams)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionCompanion, res.Question.Type)
	assert.Contains(t, res.Message, "myös voi?")

	res = c.say("ei")
	assert.Nil(t, res.Question)
	assert.Contains(t, res.Message, "Selvä.")
	assert.Contains(t, res.Message, "Ateria kirjattu (2 ruokaa). Kiitos!")
	assert.Equal(t, []string{"maito", "voi"}, res.State.CompanionChecks)
}

func TestEngine_CompanionDroppedByNewItems(t *testing.T) {
	c := &conversation{t: t, e: New(catalog(porridgeWater, milk, banana)), st: newState()}
	c.say("kaurapuuroa 300g")
	c.say("valmis")

	res := c.say("banaani")
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
	assert.Equal(t, []string{"maito"}, res.State.CompanionChecks, "the companion stays recorded as asked")
}

func TestEngine_AnswerWithoutQuestion(t *testing.T) {
	e := newEngine(defaultCatalog())
	res := e.ProcessIntent(context.Background(), newState(), models.Intent{
		Type:   models.IntentAnswer,
		Answer: &models.Answer{Kind: models.AnswerSelection, Index: 1},
	})
	assert.Equal(t, "Minulla ei ole avointa kysymystä. Mitä söit?", res.Message)
}

func TestEngine_Unclear(t *testing.T) {
	e := newEngine(defaultCatalog())
	res := e.ProcessMessage(context.Background(), newState(), "   ")
	assert.Equal(t, models.IntentUnclear, res.Intent.Type)
	assert.Contains(t, res.Message, "Mitä söit?")
}

func TestEngine_English(t *testing.T) {
	e := newEngine(defaultCatalog())
	res := e.ProcessMessage(context.Background(), models.NewConversationState("s", "m", "en"), "120 g chicken")
	require.Len(t, res.ResolvedItems, 1)
	assert.Equal(t, "Chicken, fried", res.ResolvedItems[0].Name)
	assert.Contains(t, res.Message, "✓ Chicken, fried, 120 g")
	assert.Contains(t, res.Message, "Anything else?")
}

func TestEngine_DefaultLanguage(t *testing.T) {
	e := newEngine(defaultCatalog(), WithConfig(Config{Language: "sv"}))
	res := e.ProcessMessage(context.Background(), models.ConversationState{}, "")
	assert.Equal(t, "sv", res.State.Language)
	assert.NotNil(t, res.State.Items)
	assert.NotNil(t, res.State.CompanionChecks)
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	e := newEngine(defaultCatalog())
	st := e.ProcessMessage(context.Background(), newState(), "kaurapuuro").State
	snapshot := st.Clone()

	_ = e.ProcessMessage(context.Background(), st, "1")
	_ = e.ProcessMessage(context.Background(), st, "poista kaurapuuro")
	if diff := cmp.Diff(snapshot, st); diff != "" {
		t.Errorf("state mutated (-want +got):\n%s", diff)
	}
}

func TestEngine_ReconcilesBrokenState(t *testing.T) {
	item := models.ParsedItem{ID: "item-1", RawText: "kana", State: models.StateResolved, SelectedFood: &chicken, PortionGrams: 100}
	st := newState()
	st.Items = []models.ParsedItem{item}
	st.UnresolvedQueue = []string{"item-1", "ghost", "ghost"}
	st.ActiveItemID = "ghost"
	st.PendingQuestion = &models.PendingQuestion{ID: "q", ItemID: "ghost", Type: models.QuestionPortion}
	st.Seq = 1

	res := newEngine(defaultCatalog()).ProcessIntent(context.Background(), st, models.Intent{Type: models.IntentUnclear})
	assert.Empty(t, res.State.UnresolvedQueue)
	assert.Empty(t, res.State.ActiveItemID)
	assert.Nil(t, res.State.PendingQuestion)
	assert.Contains(t, res.Message, "Mitä söit?")
}

func TestEngine_StaleQuestionDoesNotCaptureText(t *testing.T) {
	st := newState()
	st.PendingQuestion = &models.PendingQuestion{ID: "q", ItemID: "ghost", Type: models.QuestionDisambiguation}

	res := newEngine(defaultCatalog()).ProcessMessage(context.Background(), st, "banaani")
	assert.Equal(t, models.IntentAddItems, res.Intent.Type)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, "banaani", res.State.Items[0].RawText)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
	assert.NotNil(t, st.PendingQuestion, "the caller's state is not modified")
}

func TestEngine_ReconcileQueuesOrphans(t *testing.T) {
	st := newState()
	it := models.ParsedItem{ID: "item-1", RawText: "banaani", State: models.StatePortioning, SelectedFood: &banana}
	st.Items = []models.ParsedItem{it}
	st.Seq = 1

	res := newEngine(defaultCatalog()).ProcessIntent(context.Background(), st, models.Intent{Type: models.IntentUnclear})
	assert.Equal(t, []string{"item-1"}, res.State.UnresolvedQueue)
	assert.Equal(t, "item-1", res.State.ActiveItemID)
	require.NotNil(t, res.Question)
	assert.Equal(t, models.QuestionPortion, res.Question.Type)
}

// roundTrip passes the state through JSON the way a caller would store it.
func roundTrip(t *testing.T, st models.ConversationState) models.ConversationState {
	t.Helper()
	data, err := json.Marshal(st)
	require.NoError(t, err)
	var out models.ConversationState
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestEngine_SerializedStateIsEquivalent(t *testing.T) {
	e := New(defaultCatalog())
	messages := []string{"kaurapuuro ja 2 dl maitoa", "1", "200g", "muuta 250g", "poista maitoa", "valmis", "ei"}

	live, stored := newState(), newState()
	for _, msg := range messages {
		a := e.ProcessMessage(context.Background(), live, msg)
		b := e.ProcessMessage(context.Background(), roundTrip(t, stored), msg)
		if diff := cmp.Diff(a, b, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("turn %q differs after serialization (-live +stored):\n%s", msg, diff)
		}
		live, stored = a.State, b.State
	}
	assert.True(t, live.IsComplete)
}

// barrierSearcher blocks every call until n calls are in flight.
type barrierSearcher struct {
	n       int
	mu      sync.Mutex
	arrived int
	ready   chan struct{}
	next    FoodSearcher
}

func (b *barrierSearcher) Search(ctx context.Context, text, lang string) ([]models.FoodRecord, error) {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.ready)
	}
	b.mu.Unlock()
	select {
	case <-b.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.next.Search(ctx, text, lang)
}

func TestEngine_SearchesItemsConcurrently(t *testing.T) {
	s := &barrierSearcher{n: 2, ready: make(chan struct{}), next: defaultCatalog()}
	e := newEngine(s, WithConfig(Config{SearchTimeout: 2 * time.Second}))

	res := e.ProcessMessage(context.Background(), newState(), "120g kanaa ja 2 dl maitoa")
	require.Len(t, res.ResolvedItems, 2, "both searches must be in flight at once")
	assert.Equal(t, "item-1", res.ResolvedItems[0].ItemID)
	assert.Equal(t, "item-2", res.ResolvedItems[1].ItemID)
}

type blockingSearcher struct{}

func (blockingSearcher) Search(ctx context.Context, _, _ string) ([]models.FoodRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, string) ([]models.FoodRecord, error) {
	return nil, errors.New("fineli unavailable")
}

func TestEngine_SearchFailureIsNoMatch(t *testing.T) {
	for name, s := range map[string]FoodSearcher{
		"timeout": blockingSearcher{},
		"error":   failingSearcher{},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(s, WithConfig(Config{SearchTimeout: 20 * time.Millisecond}))
			res := e.ProcessMessage(context.Background(), newState(), "kaurapuuro")
			require.NotNil(t, res.Question)
			assert.Equal(t, models.QuestionNoMatchRetry, res.Question.Type)
			assert.Equal(t, models.StateNoMatch, res.State.Items[0].State)
		})
	}
}

type fakeRanker struct {
	calls atomic.Int32
	err   error
	block bool
}

func (r *fakeRanker) Rank(ctx context.Context, results []models.FoodRecord, _ string) ([]models.FoodRecord, error) {
	r.calls.Add(1)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	out := []models.FoodRecord{{ID: 999, Names: models.LocalizedText{"fi": "keksitty"}}}
	for i := len(results) - 1; i >= 0; i-- {
		out = append(out, results[i])
	}
	return out, nil
}

func TestEngine_ExternalRanker(t *testing.T) {
	r := &fakeRanker{}
	e := newEngine(defaultCatalog(), WithRanker(r))

	res := e.ProcessMessage(context.Background(), newState(), "kaurapuuro")
	assert.Equal(t, int32(1), r.calls.Load())
	require.Len(t, res.State.Items[0].Candidates, 2, "unknown foods from the ranker are dropped")
	assert.Equal(t, 2, res.State.Items[0].Candidates[0].ID)

	_ = e.ProcessMessage(context.Background(), newState(), "200g kaurapuuro")
	assert.Equal(t, int32(1), r.calls.Load(), "not consulted when grams resolve the item")

	_ = e.ProcessMessage(context.Background(), newState(), "banaani")
	assert.Equal(t, int32(1), r.calls.Load(), "not consulted for a single result")
}

func TestEngine_ExternalRankerFallback(t *testing.T) {
	for name, r := range map[string]*fakeRanker{
		"error":   {err: errors.New("rank failed")},
		"timeout": {block: true},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(defaultCatalog(), WithRanker(r), WithConfig(Config{RankTimeout: 20 * time.Millisecond}))
			res := e.ProcessMessage(context.Background(), newState(), "kaurapuuro")
			require.Len(t, res.State.Items[0].Candidates, 2)
			assert.Equal(t, 1, res.State.Items[0].Candidates[0].ID)
		})
	}
}

type fakeResponder struct {
	calls atomic.Int32
	err   error
	last  ResponseContext
}

func (r *fakeResponder) Respond(_ context.Context, message string, rc ResponseContext) (string, error) {
	r.calls.Add(1)
	r.last = rc
	if r.err != nil {
		return "", r.err
	}
	return "R: " + message, nil
}

func TestEngine_Responder(t *testing.T) {
	r := &fakeResponder{}
	e := newEngine(defaultCatalog(), WithResponder(r))

	res := e.ProcessMessage(context.Background(), newState(), "120g kanaa")
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Contains(t, res.Message, "R: ✓ Kana, broileri, paistettu, 120 g")
	assert.Equal(t, []string{"Kana, broileri, paistettu"}, r.last.ResolvedFoods)
	assert.Equal(t, models.IntentAddItems, r.last.Intent)

	res = e.ProcessMessage(context.Background(), newState(), "kaurapuuro")
	assert.Equal(t, int32(1), r.calls.Load(), "never consulted while a question is pending")
	assert.NotContains(t, res.Message, "R: ")
}

func TestEngine_ResponderFailureKeepsMessage(t *testing.T) {
	e := newEngine(defaultCatalog(), WithResponder(&fakeResponder{err: errors.New("llm down")}))
	res := e.ProcessMessage(context.Background(), newState(), "120g kanaa")
	assert.Contains(t, res.Message, "✓ Kana, broileri, paistettu, 120 g")
}

func TestTimeOfDay(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, "morning", TimeOfDay(at(7)))
	assert.Equal(t, "midday", TimeOfDay(at(12)))
	assert.Equal(t, "afternoon", TimeOfDay(at(15)))
	assert.Equal(t, "evening", TimeOfDay(at(19)))
	assert.Equal(t, "night", TimeOfDay(at(2)))
}
