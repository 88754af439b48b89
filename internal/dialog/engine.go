// Package dialog is the turn orchestrator. It classifies a message,
// drives every item in flight through the resolver, and returns the next
// message with the updated state. The engine keeps nothing between turns:
// the caller stores TurnResult.State and passes it back next time.
package dialog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcp-meal-dialog/internal/companion"
	"mcp-meal-dialog/internal/intent"
	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/ranking"
	"mcp-meal-dialog/internal/resolver"
)

// FoodSearcher is the food-composition search provider.
type FoodSearcher interface {
	Search(ctx context.Context, text, lang string) ([]models.FoodRecord, error)
}

// ResponseContext is what a Responder sees besides the message.
type ResponseContext struct {
	Language      string            `json:"language"`
	MealType      string            `json:"mealType,omitempty"`
	Intent        models.IntentType `json:"intent"`
	ResolvedFoods []string          `json:"resolvedFoods,omitempty"`
	IsComplete    bool              `json:"isComplete"`
}

// Responder may rephrase the deterministic message. It is never consulted
// while a question is pending.
type Responder interface {
	Respond(ctx context.Context, message string, rc ResponseContext) (string, error)
}

// Config tunes the engine.
type Config struct {
	Language          string        // used when the state has none
	MaxNoMatchRetries int           // failed re-searches before a NO_MATCH item is dropped
	ResultLimit       int           // candidates kept per search
	MinScore          float64       // ranking threshold
	SearchTimeout     time.Duration // per search call
	RankTimeout       time.Duration // per external rank call
	RespondTimeout    time.Duration // per responder call
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Language:          "fi",
		MaxNoMatchRetries: resolver.DefaultMaxNoMatchRetries,
		ResultLimit:       ranking.DefaultLimit,
		MinScore:          ranking.DefaultMinScore,
		SearchTimeout:     8 * time.Second,
		RankTimeout:       3 * time.Second,
		RespondTimeout:    3 * time.Second,
	}
}

// QuestionDescriptor is the compact form of a pending question for
// rendering quick-reply controls.
type QuestionDescriptor struct {
	Type    models.QuestionType     `json:"type"`
	Options []models.QuestionOption `json:"options"`
}

// TurnResult is everything one turn produces.
type TurnResult struct {
	Message       string                   `json:"message"`
	State         models.ConversationState `json:"state"`
	ResolvedItems []models.ResolvedItem    `json:"resolvedItems"`
	// RemovedItemIDs lists items whose diary entries are no longer valid:
	// removed items and resolved items reopened by a correction.
	RemovedItemIDs []string            `json:"removedItemIds,omitempty"`
	Question       *QuestionDescriptor `json:"question,omitempty"`
	Intent         models.Intent       `json:"intent"`
}

// Engine is safe for concurrent use; it holds no per-conversation state.
type Engine struct {
	searcher   FoodSearcher
	classifier *intent.Classifier
	ranker     ranking.Ranker
	responder  Responder
	companions *companion.Suggester
	logger     *zap.Logger
	config     Config
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the regex-only classifier.
func WithClassifier(c *intent.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithRanker sets an external ranker used in place of the deterministic one.
func WithRanker(r ranking.Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

// WithResponder sets a responder for rephrasing non-question messages.
func WithResponder(r Responder) Option {
	return func(e *Engine) { e.responder = r }
}

// WithCompanions replaces the default companion table.
func WithCompanions(s *companion.Suggester) Option {
	return func(e *Engine) { e.companions = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig sets engine options. Zero fields keep their defaults.
func WithConfig(c Config) Option {
	return func(e *Engine) {
		d := DefaultConfig()
		if c.Language == "" {
			c.Language = d.Language
		}
		if c.MaxNoMatchRetries <= 0 {
			c.MaxNoMatchRetries = d.MaxNoMatchRetries
		}
		if c.ResultLimit <= 0 {
			c.ResultLimit = d.ResultLimit
		}
		if c.MinScore == 0 {
			c.MinScore = d.MinScore
		}
		if c.SearchTimeout <= 0 {
			c.SearchTimeout = d.SearchTimeout
		}
		if c.RankTimeout <= 0 {
			c.RankTimeout = d.RankTimeout
		}
		if c.RespondTimeout <= 0 {
			c.RespondTimeout = d.RespondTimeout
		}
		e.config = c
	}
}

// WithClock sets the time source used for the classifier's time of day.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine searching with searcher.
func New(searcher FoodSearcher, opts ...Option) *Engine {
	e := &Engine{
		searcher:   searcher,
		companions: companion.New(companion.DefaultTable),
		logger:     zap.NewNop(),
		config:     DefaultConfig(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = intent.New(intent.Config{Logger: e.logger})
	}
	return e
}

// ProcessMessage classifies text against state and runs the turn.
func (e *Engine) ProcessMessage(ctx context.Context, state models.ConversationState, text string) TurnResult {
	st := e.prepare(state)
	// classify against the question that will actually be pending
	pre := &turn{e: e, ctx: ctx, st: st, lang: st.Language}
	pre.reconcile()
	st = pre.st
	cc := intent.Context{
		Language:        st.Language,
		MealType:        st.MealType,
		TimeOfDay:       TimeOfDay(e.now()),
		ResolvedFoods:   resolvedNames(st),
		PendingQuestion: st.PendingQuestion,
	}
	in := e.classifier.Classify(ctx, text, cc)
	return e.run(ctx, st, in)
}

// ProcessIntent runs the turn for an intent classified elsewhere.
func (e *Engine) ProcessIntent(ctx context.Context, state models.ConversationState, in models.Intent) TurnResult {
	return e.run(ctx, e.prepare(state), in)
}

// prepare copies the caller's state so a turn never mutates it.
func (e *Engine) prepare(state models.ConversationState) models.ConversationState {
	st := state.Clone()
	if st.Language == "" {
		st.Language = e.config.Language
	}
	return st
}

func (e *Engine) run(ctx context.Context, st models.ConversationState, in models.Intent) TurnResult {
	t := &turn{e: e, ctx: ctx, st: st, lang: st.Language}
	t.reconcile()
	t.dispatch(in)
	t.finish()

	res := TurnResult{
		Message:        strings.Join(t.msgs, "\n"),
		State:          t.st,
		ResolvedItems:  t.resolvedItems(),
		RemovedItemIDs: t.removed,
		Intent:         in,
	}
	if q := t.st.PendingQuestion; q != nil {
		res.Question = &QuestionDescriptor{Type: q.Type, Options: append([]models.QuestionOption{}, q.Options...)}
	} else if e.responder != nil && res.Message != "" {
		res.Message = e.rephrase(ctx, res.Message, t.st, in)
	}

	e.logger.Info("turn processed",
		zap.String("session_id", t.st.SessionID),
		zap.String("meal_id", t.st.MealID),
		zap.String("intent", string(in.Type)),
		zap.String("intent_source", in.Source),
		zap.Int("items", len(t.st.Items)),
		zap.Int("queued", len(t.st.UnresolvedQueue)),
		zap.Int("resolved_this_turn", len(res.ResolvedItems)),
		zap.Bool("complete", t.st.IsComplete))
	return res
}

// TimeOfDay buckets a clock time for classifier context.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 10:
		return "morning"
	case h >= 10 && h < 14:
		return "midday"
	case h >= 14 && h < 17:
		return "afternoon"
	case h >= 17 && h < 22:
		return "evening"
	default:
		return "night"
	}
}

func resolvedNames(st models.ConversationState) []string {
	var out []string
	for _, it := range st.Items {
		if it.State == models.StateResolved {
			out = append(out, it.DisplayName(st.Language))
		}
	}
	return out
}
