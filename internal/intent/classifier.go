// Package intent classifies a raw message against the pending question.
//
// The regex path runs in priority order: answer to the pending question,
// portion update, correction, removal, completion, then item mentions. An
// optional external classifier replaces only the last step, and its result
// is used only at or above the confidence threshold.
package intent

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcp-meal-dialog/internal/bounded"
	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
)

// Intent sources.
const (
	SourceRegex    = "regex"
	SourceExternal = "external"
)

// DefaultThreshold is the minimum external confidence accepted.
const DefaultThreshold = 0.7

// DefaultTimeout bounds one external classification.
const DefaultTimeout = 3 * time.Second

// Context is what an external classifier sees besides the text.
type Context struct {
	Language        string                  `json:"language"`
	MealType        string                  `json:"mealType,omitempty"`
	TimeOfDay       string                  `json:"timeOfDay,omitempty"`
	ResolvedFoods   []string                `json:"resolvedFoods,omitempty"`
	PendingQuestion *models.PendingQuestion `json:"pendingQuestion,omitempty"`
}

// Result is an external classification.
type Result struct {
	Intent     models.Intent
	Confidence float64
}

// External is an optional NLU classifier.
type External interface {
	Classify(ctx context.Context, text string, c Context) (Result, error)
}

// Config holds classifier options.
type Config struct {
	External  External      // optional; nil means regex only
	Threshold float64       // minimum external confidence (default 0.7)
	Timeout   time.Duration // bound on one external call (default 3s)
	Logger    *zap.Logger
}

// Classifier combines the regex path with an optional external one.
type Classifier struct {
	config Config
}

// New applies defaults to cfg.
func New(cfg Config) *Classifier {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Classifier{config: cfg}
}

// Classify returns the intent of text. Structured replies never reach the
// external classifier; its failures and low-confidence answers fall back
// to the regex path.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) models.Intent {
	if in, ok := Structured(text, cc.PendingQuestion); ok {
		return in
	}
	if c.config.External != nil && strings.TrimSpace(text) != "" {
		res, err := bounded.Call(ctx, c.config.Timeout, func(ctx context.Context) (Result, error) {
			return c.config.External.Classify(ctx, text, cc)
		})
		switch {
		case err != nil:
			c.config.Logger.Warn("external classifier failed, using regex",
				zap.Error(err))
		case res.Confidence < c.config.Threshold:
			c.config.Logger.Debug("external classification below threshold",
				zap.String("intent", string(res.Intent.Type)),
				zap.Float64("confidence", res.Confidence))
		case !Valid(res.Intent, cc.PendingQuestion):
			c.config.Logger.Warn("external classifier returned malformed intent",
				zap.String("intent", string(res.Intent.Type)))
		default:
			out := res.Intent
			out.Source = SourceExternal
			return out
		}
	}
	return Fallback(text, cc.PendingQuestion)
}

// Classify runs the regex path alone.
func Classify(text string, pending *models.PendingQuestion) models.Intent {
	if in, ok := Structured(text, pending); ok {
		return in
	}
	return Fallback(text, pending)
}

// Structured tries the trivially structured forms: an answer to the
// pending question, portion update, correction, removal and completion.
func Structured(text string, pending *models.PendingQuestion) (models.Intent, bool) {
	s := clean(text)
	if s == "" {
		return models.Intent{}, false
	}
	if pending != nil {
		if a, ok := parseAnswer(s, pending); ok {
			return models.Intent{Type: models.IntentAnswer, Answer: a, Source: SourceRegex}, true
		}
	}
	if c, ok := parsePortionUpdate(s); ok {
		return models.Intent{Type: models.IntentCorrection, Correction: c, Source: SourceRegex}, true
	}
	if c, ok := parseCorrection(s); ok {
		return models.Intent{Type: models.IntentCorrection, Correction: c, Source: SourceRegex}, true
	}
	if r, ok := parseRemoval(s); ok {
		return models.Intent{Type: models.IntentRemoval, Removal: r, Source: SourceRegex}, true
	}
	if donePhrases[textnorm.Fold(s)] {
		return models.Intent{Type: models.IntentDone, Source: SourceRegex}, true
	}
	// A reply to a portion question that looks like an amount but did
	// not parse is still an answer, so the question is re-asked.
	if pending != nil && pending.Type == models.QuestionPortion && looksLikeQuantity(s) && !mentionsFood(s) {
		return models.Intent{Type: models.IntentAnswer, Answer: &models.Answer{Kind: models.AnswerQuantity}, Source: SourceRegex}, true
	}
	return models.Intent{}, false
}

// Fallback splits text into item mentions. Empty input is an answer with
// no payload while a question is pending, else unclear.
func Fallback(text string, pending *models.PendingQuestion) models.Intent {
	if clean(text) == "" {
		if pending != nil {
			return models.Intent{Type: models.IntentAnswer, Source: SourceRegex}
		}
		return models.Intent{Type: models.IntentUnclear, Source: SourceRegex}
	}
	items := splitMentions(text)
	if len(items) == 0 {
		return models.Intent{Type: models.IntentUnclear, Source: SourceRegex}
	}
	return models.Intent{Type: models.IntentAddItems, Items: items, Source: SourceRegex}
}

// Valid reports whether an intent carries the payload its type needs.
func Valid(in models.Intent, pending *models.PendingQuestion) bool {
	switch in.Type {
	case models.IntentAddItems:
		if len(in.Items) == 0 {
			return false
		}
		for _, it := range in.Items {
			if strings.TrimSpace(it.Text) == "" {
				return false
			}
		}
		return true
	case models.IntentAnswer:
		return pending != nil && in.Answer != nil
	case models.IntentCorrection:
		return in.Correction != nil &&
			(in.Correction.Quantity != nil || strings.TrimSpace(in.Correction.Text) != "")
	case models.IntentRemoval:
		return in.Removal != nil && (in.Removal.Latest || strings.TrimSpace(in.Removal.Text) != "")
	case models.IntentDone, models.IntentUnclear:
		return true
	}
	return false
}

func parseAnswer(s string, q *models.PendingQuestion) (*models.Answer, bool) {
	folded := textnorm.Fold(s)
	switch q.Type {
	case models.QuestionDisambiguation:
		if n, ok := parseSelection(s); ok {
			return &models.Answer{Kind: models.AnswerSelection, Index: n}, true
		}
		// any other integer is a selection too, rejected as out of range
		if signedInteger.MatchString(s) {
			n, err := strconv.Atoi(s)
			if err != nil {
				n = 0
			}
			return &models.Answer{Kind: models.AnswerSelection, Index: n}, true
		}
		if rejectPhrases[folded] || skipPhrases[folded] {
			return &models.Answer{Kind: models.AnswerReject}, true
		}
		if isCommand(s) {
			return nil, false
		}
		return &models.Answer{Kind: models.AnswerClarification, Text: s}, true

	case models.QuestionPortion:
		if v, ok := optionValue(s, q); ok {
			s = v
		}
		if qty, ok := ParseQuantity(s); ok {
			return &models.Answer{Kind: models.AnswerQuantity, Quantity: qty}, true
		}
		return nil, false

	case models.QuestionCompanion:
		switch {
		case yesPhrases[folded]:
			return &models.Answer{Kind: models.AnswerConfirm, Confirmed: true}, true
		case noPhrases[folded]:
			return &models.Answer{Kind: models.AnswerConfirm, Confirmed: false}, true
		}
		return nil, false

	case models.QuestionNoMatchRetry:
		if skipPhrases[folded] || rejectPhrases[folded] {
			return &models.Answer{Kind: models.AnswerReject}, true
		}
		if isCommand(s) {
			return nil, false
		}
		return &models.Answer{Kind: models.AnswerClarification, Text: s}, true
	}
	return nil, false
}

// optionValue maps a quick-reply key ("1", "g") to its value. A key with
// an empty value is not a complete answer.
func optionValue(s string, q *models.PendingQuestion) (string, bool) {
	for _, o := range q.Options {
		if strings.EqualFold(o.Key, s) && o.Value != "" {
			return o.Value, true
		}
	}
	return "", false
}

// isCommand reports whether s is a portion update, correction, removal or
// completion phrase, which take precedence over free-text clarifications.
func isCommand(s string) bool {
	if _, ok := parsePortionUpdate(s); ok {
		return true
	}
	if _, ok := parseCorrection(s); ok {
		return true
	}
	if _, ok := parseRemoval(s); ok {
		return true
	}
	return donePhrases[textnorm.Fold(s)]
}

func parsePortionUpdate(s string) (*models.Correction, bool) {
	m := updatePrefix.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	rest := updateFiller.ReplaceAllString(strings.TrimSpace(m[1]), "")
	qty, ok := ParseQuantity(rest)
	if !ok {
		return nil, false
	}
	return &models.Correction{Kind: models.CorrectionUpdatePortion, Quantity: qty}, true
}

func parseCorrection(s string) (*models.Correction, bool) {
	m := correctionPrefix.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	mention, ok := parseMention(m[1])
	if !ok || strings.TrimSpace(mention.Text) == "" {
		return nil, false
	}
	c := &models.Correction{Kind: models.CorrectionText, Text: mention.Text}
	if mention.Amount != nil {
		c.Quantity = &models.Quantity{Amount: *mention.Amount, Unit: mention.Unit}
	}
	return c, true
}

func parseRemoval(s string) (*models.Removal, bool) {
	target := ""
	if m := removalPattern.FindStringSubmatch(s); m != nil {
		target = strings.TrimSpace(m[1])
	} else if m := removalSuffix.FindStringSubmatch(s); m != nil {
		target = strings.TrimSpace(m[1])
	} else {
		return nil, false
	}
	if target == "" || latestPhrases[textnorm.Fold(target)] {
		return &models.Removal{Latest: true}, true
	}
	return &models.Removal{Text: target}, true
}
