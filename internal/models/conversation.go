// internal/models/conversation.go
package models

import "fmt"

// ItemState is the resolution state of a single food mention.
type ItemState string

const (
	StateParsed         ItemState = "PARSED"
	StateDisambiguating ItemState = "DISAMBIGUATING"
	StatePortioning     ItemState = "PORTIONING"
	StateResolved       ItemState = "RESOLVED"
	StateNoMatch        ItemState = "NO_MATCH"
)

// QuestionType identifies what kind of reply a PendingQuestion expects.
type QuestionType string

const (
	QuestionDisambiguation QuestionType = "disambiguation"
	QuestionPortion        QuestionType = "portion"
	QuestionNoMatchRetry   QuestionType = "no_match_retry"
	QuestionCompanion      QuestionType = "companion"
)

// Amount is a quantity extracted from the user's text before searching.
type Amount struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ParsedItem is one food mention moving through the resolution states.
type ParsedItem struct {
	ID               string       `json:"id"`
	RawText          string       `json:"rawText"`
	InferredAmount   *Amount      `json:"inferredAmount,omitempty"`
	State            ItemState    `json:"state"`
	Candidates       []FoodRecord `json:"fineliCandidates,omitempty"`
	SelectedFood     *FoodRecord  `json:"selectedFood,omitempty"`
	PortionGrams     float64      `json:"portionGrams,omitempty"`
	PortionUnitCode  string       `json:"portionUnitCode,omitempty"`
	PortionUnitLabel string       `json:"portionUnitLabel,omitempty"`
	PortionAmount    float64      `json:"portionAmount,omitempty"`
	RetryCount       int          `json:"retryCount,omitempty"`
	ResolvedSeq      int          `json:"resolvedSeq,omitempty"`
}

// DisplayName is the selected food's name, or the raw text before selection.
func (it ParsedItem) DisplayName(lang string) string {
	if it.SelectedFood != nil {
		if n := it.SelectedFood.Name(lang); n != "" {
			return n
		}
	}
	return it.RawText
}

// Clone returns a deep copy.
func (it ParsedItem) Clone() ParsedItem {
	out := it
	if it.InferredAmount != nil {
		a := *it.InferredAmount
		out.InferredAmount = &a
	}
	if it.Candidates != nil {
		out.Candidates = make([]FoodRecord, len(it.Candidates))
		for i, c := range it.Candidates {
			out.Candidates[i] = c.Clone()
		}
	}
	if it.SelectedFood != nil {
		f := it.SelectedFood.Clone()
		out.SelectedFood = &f
	}
	return out
}

// QuestionOption is a quick-reply choice.
type QuestionOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// PendingQuestion is the single outstanding question. It is always
// regenerable from item state and RetryCount.
type PendingQuestion struct {
	ID             string            `json:"id"`
	ItemID         string            `json:"itemId"`
	Type           QuestionType      `json:"type"`
	TemplateParams map[string]string `json:"templateParams,omitempty"`
	Options        []QuestionOption  `json:"options,omitempty"`
	RetryCount     int               `json:"retryCount"`
}

// Clone returns a deep copy.
func (q PendingQuestion) Clone() PendingQuestion {
	out := q
	if q.TemplateParams != nil {
		out.TemplateParams = make(map[string]string, len(q.TemplateParams))
		for k, v := range q.TemplateParams {
			out.TemplateParams[k] = v
		}
	}
	if q.Options != nil {
		out.Options = append([]QuestionOption(nil), q.Options...)
	}
	return out
}

// ConversationState is the complete per-meal dialog state. The caller
// persists it verbatim between turns.
type ConversationState struct {
	SessionID       string           `json:"sessionId"`
	MealID          string           `json:"mealId"`
	MealType        string           `json:"mealType,omitempty"`
	Items           []ParsedItem     `json:"items"`
	UnresolvedQueue []string         `json:"unresolvedQueue"`
	ActiveItemID    string           `json:"activeItemId,omitempty"`
	PendingQuestion *PendingQuestion `json:"pendingQuestion,omitempty"`
	CompanionChecks []string         `json:"companionChecks"`
	IsComplete      bool             `json:"isComplete"`
	Language        string           `json:"language"`
	Seq             int              `json:"seq"`
}

// NewConversationState returns an empty state for a meal.
func NewConversationState(sessionID, mealID, lang string) ConversationState {
	return ConversationState{
		SessionID:       sessionID,
		MealID:          mealID,
		Items:           []ParsedItem{},
		UnresolvedQueue: []string{},
		CompanionChecks: []string{},
		Language:        lang,
	}
}

// Clone returns a deep copy so a turn never mutates the caller's state.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Items = make([]ParsedItem, len(s.Items))
	for i, it := range s.Items {
		out.Items[i] = it.Clone()
	}
	out.UnresolvedQueue = append([]string{}, s.UnresolvedQueue...)
	out.CompanionChecks = append([]string{}, s.CompanionChecks...)
	if s.PendingQuestion != nil {
		q := s.PendingQuestion.Clone()
		out.PendingQuestion = &q
	}
	return out
}

// NextItemID allocates a deterministic item identifier.
func (s *ConversationState) NextItemID() string {
	s.Seq++
	return fmt.Sprintf("item-%d", s.Seq)
}

// NextSeq advances the sequence counter, used for ordering resolutions.
func (s *ConversationState) NextSeq() int {
	s.Seq++
	return s.Seq
}

// Item returns the index of the item with id, or -1.
func (s ConversationState) Item(id string) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// RemoveItem drops the item and every reference to it.
func (s *ConversationState) RemoveItem(id string) bool {
	idx := s.Item(id)
	if idx < 0 {
		return false
	}
	s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
	queue := s.UnresolvedQueue[:0]
	for _, qid := range s.UnresolvedQueue {
		if qid != id {
			queue = append(queue, qid)
		}
	}
	s.UnresolvedQueue = queue
	if s.ActiveItemID == id {
		s.ActiveItemID = ""
	}
	if s.PendingQuestion != nil && s.PendingQuestion.ItemID == id {
		s.PendingQuestion = nil
	}
	return true
}

// HasCompanionCheck reports whether name was already asked about.
func (s ConversationState) HasCompanionCheck(name string) bool {
	for _, c := range s.CompanionChecks {
		if c == name {
			return true
		}
	}
	return false
}
