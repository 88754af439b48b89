// internal/models/intent.go
package models

// IntentType tags a classified user message.
type IntentType string

const (
	IntentAddItems   IntentType = "add_items"
	IntentAnswer     IntentType = "answer"
	IntentCorrection IntentType = "correction"
	IntentRemoval    IntentType = "removal"
	IntentDone       IntentType = "done"
	IntentUnclear    IntentType = "unclear"
)

// ItemMention is one food mention of an add_items intent.
type ItemMention struct {
	Text   string   `json:"text"`
	Amount *float64 `json:"amount,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

// AnswerKind is the shape of an answer to a pending question.
type AnswerKind string

const (
	AnswerSelection     AnswerKind = "selection"     // 1-based candidate index
	AnswerReject        AnswerKind = "reject"        // none of these / skip
	AnswerClarification AnswerKind = "clarification" // free text replacing the food name
	AnswerQuantity      AnswerKind = "quantity"
	AnswerConfirm       AnswerKind = "confirm" // yes/no
)

// Quantity is an amount with an optional unit token. An empty unit means grams.
type Quantity struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit,omitempty"`
}

// Answer is the typed payload of an answer intent. A nil Quantity on a
// quantity answer means the reply looked like a quantity but did not parse.
type Answer struct {
	Kind      AnswerKind `json:"kind"`
	Index     int        `json:"index,omitempty"`
	Text      string     `json:"text,omitempty"`
	Quantity  *Quantity  `json:"quantity,omitempty"`
	Confirmed bool       `json:"confirmed,omitempty"`
}

// CorrectionKind distinguishes in-place portion updates from re-searches.
type CorrectionKind string

const (
	CorrectionUpdatePortion CorrectionKind = "update_portion"
	CorrectionText          CorrectionKind = "correction"
)

// Correction is the payload of a correction intent.
type Correction struct {
	Kind     CorrectionKind `json:"kind"`
	Quantity *Quantity      `json:"quantity,omitempty"`
	Text     string         `json:"text,omitempty"`
}

// Removal is the payload of a removal intent. Latest targets the most
// recently resolved (else most recently added) item.
type Removal struct {
	Text   string `json:"text,omitempty"`
	Latest bool   `json:"latest,omitempty"`
}

// Intent is the classifier output consumed by the orchestrator. The regex
// classifier and any external classifier produce exactly this shape.
type Intent struct {
	Type       IntentType    `json:"type"`
	Items      []ItemMention `json:"items,omitempty"`
	Answer     *Answer       `json:"answer,omitempty"`
	Correction *Correction   `json:"correction,omitempty"`
	Removal    *Removal      `json:"removal,omitempty"`
	Source     string        `json:"source,omitempty"`
}
