package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/intent"
	"mcp-meal-dialog/internal/models"
)

const classifySystem = `You classify messages in a food diary conversation. The user writes in Finnish, Swedish or English.

Reply with one JSON object:
{
  "confidence": number between 0 and 1,
  "intent": {
    "type": "add_items" | "answer" | "correction" | "removal" | "done" | "unclear",
    "items": [{"text": "food name as written", "amount": number, "unit": "g|dl|kpl|..."}],
    "answer": {"kind": "selection|reject|clarification|quantity|confirm", "index": number, "text": string, "quantity": {"amount": number, "unit": string}, "confirmed": bool},
    "correction": {"kind": "update_portion|correction", "text": string, "quantity": {"amount": number, "unit": string}},
    "removal": {"text": string, "latest": bool}
  }
}

Include only the payload field matching the type. Keep food names in the user's language and wording. Omit amount and unit when none was given.`

const rankSystem = `You order food database search results by how well they match what the user meant.
Reply with one JSON object: {"ids": [id, ...]} listing the best matches first. Leave out results that clearly do not match. Use only ids from the list.`

const respondSystem = `You rewrite short food diary assistant messages so they sound natural. Keep every food name, number and unit exactly as given. Keep the same language. Reply with the rewritten message only.`

// IntentClassifier is an intent.External backed by a Completer.
type IntentClassifier struct {
	llm Completer
}

func NewIntentClassifier(c Completer) *IntentClassifier {
	return &IntentClassifier{llm: c}
}

type classification struct {
	Confidence float64       `json:"confidence"`
	Intent     models.Intent `json:"intent"`
}

// Classify implements intent.External.
func (c *IntentClassifier) Classify(ctx context.Context, text string, cc intent.Context) (intent.Result, error) {
	payload, err := json.Marshal(struct {
		Message string         `json:"message"`
		Context intent.Context `json:"context"`
	}{text, cc})
	if err != nil {
		return intent.Result{}, fmt.Errorf("marshal classify prompt: %w", err)
	}

	out, err := c.llm.Complete(ctx, Request{System: classifySystem, Prompt: string(payload), JSON: true, MaxTokens: 500})
	if err != nil {
		return intent.Result{}, err
	}
	raw := extractJSON(out)
	if raw == "" {
		return intent.Result{}, fmt.Errorf("no JSON in classifier reply")
	}
	var cl classification
	if err := json.Unmarshal([]byte(raw), &cl); err != nil {
		return intent.Result{}, fmt.Errorf("decode classifier reply: %w", err)
	}
	return intent.Result{Intent: cl.Intent, Confidence: cl.Confidence}, nil
}

// Ranker is a ranking.Ranker backed by a Completer.
type Ranker struct {
	llm  Completer
	lang string
}

func NewRanker(c Completer, lang string) *Ranker {
	return &Ranker{llm: c, lang: lang}
}

type rankCandidate struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Rank implements ranking.Ranker. Ids the model invents are dropped.
func (r *Ranker) Rank(ctx context.Context, candidates []models.FoodRecord, query string) ([]models.FoodRecord, error) {
	list := make([]rankCandidate, len(candidates))
	byID := make(map[int]models.FoodRecord, len(candidates))
	for i, f := range candidates {
		list[i] = rankCandidate{ID: f.ID, Name: f.Name(r.lang), Type: f.Type}
		byID[f.ID] = f
	}
	payload, err := json.Marshal(struct {
		Query   string          `json:"query"`
		Results []rankCandidate `json:"results"`
	}{query, list})
	if err != nil {
		return nil, fmt.Errorf("marshal rank prompt: %w", err)
	}

	out, err := r.llm.Complete(ctx, Request{System: rankSystem, Prompt: string(payload), JSON: true, MaxTokens: 300})
	if err != nil {
		return nil, err
	}
	raw := extractJSON(out)
	if raw == "" {
		return nil, fmt.Errorf("no JSON in ranker reply")
	}
	var reply struct {
		IDs []int `json:"ids"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("decode ranker reply: %w", err)
	}

	seen := make(map[int]bool, len(reply.IDs))
	var ranked []models.FoodRecord
	for _, id := range reply.IDs {
		f, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ranked = append(ranked, f)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranker kept no known results")
	}
	return ranked, nil
}

// Responder is a dialog.Responder backed by a Completer.
type Responder struct {
	llm Completer
}

func NewResponder(c Completer) *Responder {
	return &Responder{llm: c}
}

// Respond implements dialog.Responder.
func (r *Responder) Respond(ctx context.Context, message string, rc dialog.ResponseContext) (string, error) {
	payload, err := json.Marshal(struct {
		Message string                 `json:"message"`
		Context dialog.ResponseContext `json:"context"`
	}{message, rc})
	if err != nil {
		return "", fmt.Errorf("marshal respond prompt: %w", err)
	}
	out, err := r.llm.Complete(ctx, Request{System: respondSystem, Prompt: string(payload), MaxTokens: 300})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
