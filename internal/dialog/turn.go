package dialog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/questions"
	"mcp-meal-dialog/internal/resolver"
	"mcp-meal-dialog/internal/textnorm"
)

// turn is the working set of one ProcessMessage/ProcessIntent call.
type turn struct {
	e    *Engine
	ctx  context.Context
	st   models.ConversationState
	lang string

	msgs     []string
	resolved []models.ResolvedItem
	removed  []string
	asked    bool // the pending question's text is already in msgs
	prompted bool // a generic prompt was emitted
}

func (t *turn) say(msg string) {
	if msg != "" {
		t.msgs = append(t.msgs, msg)
	}
}

func (t *turn) text(pick func(*questions.Texts) string, params map[string]string) string {
	return questions.Text(t.lang, pick, params)
}

func (t *turn) dispatch(in models.Intent) {
	switch in.Type {
	case models.IntentAddItems:
		t.addItems(in.Items)
	case models.IntentAnswer:
		t.answer(in.Answer)
	case models.IntentCorrection:
		t.correct(in.Correction)
	case models.IntentRemoval:
		t.remove(in.Removal)
	case models.IntentDone:
		t.done()
	default:
		t.unclear()
	}
}

func (t *turn) addItems(mentions []models.ItemMention) {
	if len(mentions) == 0 {
		t.unclear()
		return
	}
	hadActive := t.st.ActiveItemID != ""

	items := make([]models.ParsedItem, 0, len(mentions))
	for _, m := range mentions {
		var amount *models.Amount
		if m.Amount != nil {
			amount = &models.Amount{Value: *m.Amount, Unit: m.Unit}
		}
		items = append(items, resolver.New(t.st.NextItemID(), m.Text, amount))
	}

	outcomes := t.e.searchAll(t.ctx, items, t.lang)

	var queued []string
	for i, item := range items {
		item = resolver.ApplySearch(item, outcomes[i].results, outcomes[i].ranked, t.lang)
		t.st.Items = append(t.st.Items, item)
		if item.State == models.StateResolved {
			t.markResolved(len(t.st.Items)-1, false)
			continue
		}
		t.st.UnresolvedQueue = append(t.st.UnresolvedQueue, item.ID)
		queued = append(queued, item.RawText)
	}
	if hadActive && len(queued) > 0 {
		t.say(questions.QueueNotice(queued, t.lang))
	}
}

func (t *turn) answer(a *models.Answer) {
	q := t.st.PendingQuestion
	if q == nil {
		t.say(t.text(func(x *questions.Texts) string { return x.NoPendingQuestion }, nil))
		t.prompted = true
		return
	}
	if a == nil {
		t.unclear()
		return
	}
	if q.Type == models.QuestionCompanion {
		t.answerCompanion(q, a)
		return
	}

	idx := t.st.Item(q.ItemID)
	if idx < 0 || t.st.ActiveItemID != q.ItemID {
		t.st.PendingQuestion = nil
		t.unclear()
		return
	}
	item := t.st.Items[idx]

	switch q.Type {
	case models.QuestionDisambiguation:
		t.answerDisambiguation(idx, item, a)
	case models.QuestionPortion:
		t.answerPortion(idx, item, a)
	case models.QuestionNoMatchRetry:
		t.answerNoMatch(idx, item, a)
	default:
		t.unclear()
	}
}

func (t *turn) answerDisambiguation(idx int, item models.ParsedItem, a *models.Answer) {
	switch a.Kind {
	case models.AnswerSelection:
		next, err := resolver.Select(item, a.Index, t.lang)
		if errors.Is(err, resolver.ErrInvalidSelection) {
			t.say(questions.InvalidChoice(len(item.Candidates), t.lang))
			return
		}
		if err != nil {
			t.unclear()
			return
		}
		t.replace(idx, next)
	case models.AnswerReject:
		t.say(t.text(func(x *questions.Texts) string { return x.Rejected }, map[string]string{"name": item.RawText}))
		t.drop(item.ID)
	case models.AnswerClarification:
		t.research(idx, resolver.Revert(item, a.Text))
	default:
		t.unclear()
	}
}

func (t *turn) answerPortion(idx int, item models.ParsedItem, a *models.Answer) {
	switch a.Kind {
	case models.AnswerQuantity:
		if a.Quantity == nil {
			t.replace(idx, resolver.RetryPortion(item))
			return
		}
		next, err := resolver.ApplyQuantity(item, *a.Quantity, t.lang)
		if err != nil {
			t.e.logger.Debug("portion answer not convertible",
				zap.String("item_id", item.ID), zap.Error(err))
			t.replace(idx, resolver.RetryPortion(item))
			return
		}
		t.replace(idx, next)
	case models.AnswerReject:
		t.say(t.text(func(x *questions.Texts) string { return x.Skipped }, map[string]string{"name": item.DisplayName(t.lang)}))
		t.drop(item.ID)
	default:
		t.replace(idx, resolver.RetryPortion(item))
	}
}

func (t *turn) answerNoMatch(idx int, item models.ParsedItem, a *models.Answer) {
	switch a.Kind {
	case models.AnswerReject:
		t.say(t.text(func(x *questions.Texts) string { return x.Skipped }, map[string]string{"name": item.RawText}))
		t.drop(item.ID)
	case models.AnswerClarification:
		probe := resolver.Revert(item, a.Text)
		out := t.e.search(t.ctx, probe, t.lang)
		next, removed := resolver.Research(item, a.Text, out.results, out.ranked, t.e.config.MaxNoMatchRetries, t.lang)
		if removed {
			t.say(t.text(func(x *questions.Texts) string { return x.Skipped }, map[string]string{"name": next.RawText}))
			t.drop(item.ID)
			return
		}
		t.replace(idx, next)
	default:
		t.unclear()
	}
}

func (t *turn) answerCompanion(q *models.PendingQuestion, a *models.Answer) {
	if a.Kind != models.AnswerConfirm {
		t.unclear()
		return
	}
	name := q.TemplateParams["companion"]
	t.st.PendingQuestion = nil
	if !a.Confirmed || name == "" {
		t.say(t.text(func(x *questions.Texts) string { return x.CompanionDeclined }, nil))
		return
	}
	t.addItems([]models.ItemMention{{Text: name}})
}

func (t *turn) correct(c *models.Correction) {
	if c == nil {
		t.unclear()
		return
	}
	if c.Kind == models.CorrectionUpdatePortion {
		t.updatePortion(c)
		return
	}

	idx := t.correctionTarget(c.Text)
	if idx < 0 {
		m := models.ItemMention{Text: c.Text}
		if c.Quantity != nil {
			m.Amount, m.Unit = &c.Quantity.Amount, c.Quantity.Unit
		}
		t.addItems([]models.ItemMention{m})
		return
	}

	item := t.st.Items[idx]
	if item.State == models.StateResolved {
		t.removed = append(t.removed, item.ID)
	}
	t.say(t.text(func(x *questions.Texts) string { return x.Reverted }, map[string]string{"name": c.Text}))

	next := resolver.Revert(item, c.Text)
	next.RetryCount = 0
	if c.Quantity != nil {
		next.InferredAmount = &models.Amount{Value: c.Quantity.Amount, Unit: c.Quantity.Unit}
	}
	if q := t.st.PendingQuestion; q != nil && q.ItemID != item.ID {
		// the corrected item takes the floor; the other question is
		// regenerated when its item comes up again
		t.st.PendingQuestion = nil
	}
	t.st.ActiveItemID = item.ID
	t.st.UnresolvedQueue = prepend(t.st.UnresolvedQueue, item.ID)
	t.research(idx, next)

	if t.st.Items[idx].State == models.StateResolved {
		t.removed = without(t.removed, item.ID)
	}
}

// correctionTarget picks the item a text correction refers to: exact raw
// text, then a substring match either way, then the active item, then the
// last item.
func (t *turn) correctionTarget(text string) int {
	folded := textnorm.Fold(text)
	for i, it := range t.st.Items {
		if textnorm.Fold(it.RawText) == folded {
			return i
		}
	}
	for i := len(t.st.Items) - 1; i >= 0; i-- {
		it := t.st.Items[i]
		if textnorm.ContainsEither(it.RawText, text) || textnorm.ContainsEither(textnorm.BaseName(it.DisplayName(t.lang)), text) {
			return i
		}
	}
	if i := t.st.Item(t.st.ActiveItemID); i >= 0 {
		return i
	}
	return len(t.st.Items) - 1
}

func (t *turn) updatePortion(c *models.Correction) {
	if c.Quantity == nil {
		t.unclear()
		return
	}
	idx := t.st.Item(t.st.ActiveItemID)
	if idx < 0 || t.st.Items[idx].SelectedFood == nil {
		idx = t.latestResolved()
	}
	if idx < 0 {
		t.say(t.text(func(x *questions.Texts) string { return x.NothingToUpdate }, nil))
		return
	}

	item := t.st.Items[idx]
	next, err := resolver.ApplyQuantity(item, *c.Quantity, t.lang)
	if err != nil {
		t.say(t.text(func(x *questions.Texts) string { return x.UnknownUnit }, nil))
		return
	}
	wasResolved := item.State == models.StateResolved
	t.st.Items[idx] = next
	if q := t.st.PendingQuestion; q != nil && q.ItemID == item.ID {
		t.st.PendingQuestion = nil
	}
	t.markResolved(idx, wasResolved)
}

func (t *turn) remove(r *models.Removal) {
	if r == nil {
		t.unclear()
		return
	}
	var idx int
	if r.Latest {
		idx = t.latestResolved()
		if idx < 0 {
			idx = len(t.st.Items) - 1
		}
	} else {
		idx = t.removalTarget(r.Text)
	}
	if idx < 0 {
		t.say(t.text(func(x *questions.Texts) string { return x.RemoveNotFound }, map[string]string{"query": r.Text}))
		return
	}
	item := t.st.Items[idx]
	t.say(t.text(func(x *questions.Texts) string { return x.Removed }, map[string]string{"name": item.DisplayName(t.lang)}))
	t.drop(item.ID)
}

// removalTarget matches raw text exactly, then by substring either way on
// the raw text or the display name. Later items win ties.
func (t *turn) removalTarget(text string) int {
	folded := textnorm.Fold(text)
	if folded == "" {
		return -1
	}
	for i := len(t.st.Items) - 1; i >= 0; i-- {
		if textnorm.Fold(t.st.Items[i].RawText) == folded {
			return i
		}
	}
	for i := len(t.st.Items) - 1; i >= 0; i-- {
		it := t.st.Items[i]
		if textnorm.ContainsEither(it.RawText, text) || textnorm.ContainsEither(it.DisplayName(t.lang), text) {
			return i
		}
	}
	return -1
}

func (t *turn) done() {
	t.st.IsComplete = true
	if q := t.st.PendingQuestion; q != nil && q.Type == models.QuestionCompanion {
		t.st.PendingQuestion = nil
	}
	var pending []string
	for _, it := range t.st.Items {
		if it.State != models.StateResolved {
			pending = append(pending, it.DisplayName(t.lang))
		}
	}
	if len(pending) > 0 {
		t.say(t.text(func(x *questions.Texts) string { return x.DoneWithPending }, map[string]string{"names": strings.Join(pending, ", ")}))
	}
}

func (t *turn) unclear() {
	q := t.st.PendingQuestion
	if q == nil {
		t.say(t.text(func(x *questions.Texts) string { return x.Prompt }, nil))
		t.prompted = true
		return
	}
	if q.Type != models.QuestionNoMatchRetry {
		return // finish re-asks the pending question
	}
	idx := t.st.Item(q.ItemID)
	if idx < 0 {
		return
	}
	item := t.st.Items[idx].Clone()
	item.RetryCount++
	if item.RetryCount >= t.e.config.MaxNoMatchRetries {
		t.say(t.text(func(x *questions.Texts) string { return x.Skipped }, map[string]string{"name": item.RawText}))
		t.drop(item.ID)
		return
	}
	t.replace(idx, item)
}

// research searches a reverted item again and files the outcome.
func (t *turn) research(idx int, item models.ParsedItem) {
	t.st.Items[idx] = item
	out := t.e.search(t.ctx, item, t.lang)
	t.replace(idx, resolver.ApplySearch(item, out.results, out.ranked, t.lang))
}

// replace stores a transitioned item. Its cached question is dropped so
// finish regenerates it from the new state.
func (t *turn) replace(idx int, item models.ParsedItem) {
	prev := t.st.Items[idx]
	t.st.Items[idx] = item
	if q := t.st.PendingQuestion; q != nil && q.ItemID == item.ID {
		t.st.PendingQuestion = nil
	}
	if item.State == models.StateResolved && (prev.State != models.StateResolved || prev.PortionGrams != item.PortionGrams) {
		t.markResolved(idx, false)
	}
}

// markResolved stamps the resolve order and emits the output record and
// confirmation for item idx.
func (t *turn) markResolved(idx int, update bool) {
	item := t.st.Items[idx]
	item.ResolvedSeq = t.st.NextSeq()
	t.st.Items[idx] = item

	out := resolver.ToResolved(item, t.lang)
	replaced := false
	for i := range t.resolved {
		if t.resolved[i].ItemID == out.ItemID {
			t.resolved[i] = out
			replaced = true
		}
	}
	if !replaced {
		t.resolved = append(t.resolved, out)
	}

	if update {
		t.say(questions.PortionUpdate(item, t.lang))
	} else {
		t.say(questions.Confirmation(item, t.lang))
	}
}

// drop removes an item and everything pointing at it.
func (t *turn) drop(id string) {
	if t.st.RemoveItem(id) {
		t.removed = append(t.removed, id)
	}
	kept := t.resolved[:0]
	for _, r := range t.resolved {
		if r.ItemID != id {
			kept = append(kept, r)
		}
	}
	t.resolved = kept
}

func (t *turn) latestResolved() int {
	best, bestSeq := -1, 0
	for i, it := range t.st.Items {
		if it.State == models.StateResolved && it.ResolvedSeq > bestSeq {
			best, bestSeq = i, it.ResolvedSeq
		}
	}
	return best
}

// reconcile restores the cross-field invariants: the queue holds exactly
// the unresolved items, the active item is queued, and the pending
// question refers to the active item in a matching state.
func (t *turn) reconcile() {
	st := &t.st
	if st.Items == nil {
		st.Items = []models.ParsedItem{}
	}
	if st.CompanionChecks == nil {
		st.CompanionChecks = []string{}
	}

	unresolved := make(map[string]bool)
	for _, it := range st.Items {
		if it.State != models.StateResolved {
			unresolved[it.ID] = true
		}
	}
	queue := make([]string, 0, len(st.UnresolvedQueue))
	seen := make(map[string]bool)
	for _, id := range st.UnresolvedQueue {
		if unresolved[id] && !seen[id] {
			queue = append(queue, id)
			seen[id] = true
		}
	}
	for _, it := range st.Items {
		if unresolved[it.ID] && !seen[it.ID] {
			queue = append(queue, it.ID)
			seen[it.ID] = true
		}
	}
	st.UnresolvedQueue = queue

	if st.ActiveItemID != "" && !seen[st.ActiveItemID] {
		st.ActiveItemID = ""
	}

	if q := st.PendingQuestion; q != nil {
		switch {
		case q.Type == models.QuestionCompanion:
			if len(queue) > 0 {
				st.PendingQuestion = nil
			}
		case q.ItemID == "" || q.ItemID != st.ActiveItemID:
			st.PendingQuestion = nil
		default:
			if idx := st.Item(q.ItemID); idx < 0 || questionFor(st.Items[idx].State) != q.Type {
				st.PendingQuestion = nil
			}
		}
	}
}

func questionFor(s models.ItemState) models.QuestionType {
	switch s {
	case models.StateDisambiguating:
		return models.QuestionDisambiguation
	case models.StatePortioning:
		return models.QuestionPortion
	case models.StateNoMatch:
		return models.QuestionNoMatchRetry
	}
	return ""
}

// finish reconciles state, asks the next question, and closes the meal
// when nothing is left to ask.
func (t *turn) finish() {
	t.reconcile()
	st := &t.st

	if st.ActiveItemID == "" && len(st.UnresolvedQueue) > 0 {
		st.ActiveItemID = st.UnresolvedQueue[0]
	}

	if st.PendingQuestion == nil && st.ActiveItemID != "" {
		if p, ok := questions.ForItem(st.Items[st.Item(st.ActiveItemID)], t.lang); ok {
			q := p.Question
			st.PendingQuestion = &q
			t.say(p.Message)
			t.asked = true
		}
	}

	if st.PendingQuestion == nil && len(st.UnresolvedQueue) == 0 {
		switch {
		case !st.IsComplete:
			if len(st.Items) > 0 && !t.prompted {
				t.say(t.text(func(x *questions.Texts) string { return x.CompletionPrompt }, nil))
			}
		default:
			t.closeMeal()
		}
	}

	if st.PendingQuestion != nil && !t.asked {
		if p, ok := questions.Regenerate(*st); ok {
			t.say(p.Message)
			t.asked = true
		}
	}
}

// closeMeal asks about one forgotten companion, or announces completion.
func (t *turn) closeMeal() {
	st := &t.st
	if s, ok := t.e.companions.Suggest(resolvedNames(*st), st.CompanionChecks); ok {
		p := questions.Companion(s.PrimaryFood, s.Companion, t.lang)
		q := p.Question
		st.PendingQuestion = &q
		st.CompanionChecks = append(st.CompanionChecks, s.Companion)
		t.say(p.Message)
		t.asked = true
		return
	}
	count := 0
	for _, it := range st.Items {
		if it.State == models.StateResolved {
			count++
		}
	}
	t.say(t.text(func(x *questions.Texts) string { return x.Complete }, map[string]string{"count": strconv.Itoa(count)}))
}

func (t *turn) resolvedItems() []models.ResolvedItem {
	out := make([]models.ResolvedItem, len(t.resolved))
	copy(out, t.resolved)
	return out
}

func prepend(queue []string, id string) []string {
	out := make([]string, 0, len(queue)+1)
	out = append(out, id)
	for _, q := range queue {
		if q != id {
			out = append(out, q)
		}
	}
	return out
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
