// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/nutrients"
	"mcp-meal-dialog/internal/storage"
)

var errInvalidParams = errors.New("invalid parameters")

func newID() string { return uuid.NewString() }

type SendMessageParams struct {
	SessionID string `json:"session_id,omitempty" description:"Conversation id; omitted to start a new one"`
	Text      string `json:"text" description:"The user's message"`
	Language  string `json:"language,omitempty" description:"fi, sv or en for a new conversation"`
	MealType  string `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack"`
}

type SendIntentParams struct {
	SessionID string        `json:"session_id,omitempty" description:"Conversation id; omitted to start a new one"`
	Intent    models.Intent `json:"intent" description:"Pre-classified intent"`
	Language  string        `json:"language,omitempty" description:"fi, sv or en for a new conversation"`
}

type GetMealParams struct {
	SessionID string `json:"session_id,omitempty" description:"Conversation whose current meal is returned"`
	MealID    string `json:"meal_id,omitempty" description:"Meal id; takes precedence over session_id"`
}

type ResetSessionParams struct {
	SessionID string `json:"session_id" description:"Conversation to reset"`
	Language  string `json:"language,omitempty" description:"Language of the new meal"`
}

// TurnResponse is what send_message and send_intent return.
type TurnResponse struct {
	SessionID      string                     `json:"session_id"`
	MealID         string                     `json:"meal_id"`
	Message        string                     `json:"message"`
	Question       *dialog.QuestionDescriptor `json:"question,omitempty"`
	ResolvedItems  []models.ResolvedItem      `json:"resolved_items"`
	RemovedItemIDs []string                   `json:"removed_item_ids,omitempty"`
	IsComplete     bool                       `json:"is_complete"`
	Intent         models.Intent              `json:"intent"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	// Convert the Arguments map to JSON bytes, then unmarshal to target
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

// loadOrStart returns the stored state of sessionID, or a fresh one.
func (s *MealDialogServer) loadOrStart(ctx context.Context, sessionID, lang string) (models.ConversationState, error) {
	if sessionID != "" {
		st, err := s.store.LoadState(ctx, sessionID)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return models.ConversationState{}, err
		}
	} else {
		sessionID = s.newID()
	}
	return models.NewConversationState(sessionID, s.newID(), lang), nil
}

// persist writes a turn's outcome in one transaction.
func (s *MealDialogServer) persist(ctx context.Context, res dialog.TurnResult) error {
	if err := s.store.SaveTurn(ctx, res.State, res.RemovedItemIDs, res.ResolvedItems); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

func (s *MealDialogServer) respond(ctx context.Context, res dialog.TurnResult) (*protocol.CallToolResult, error) {
	if err := s.persist(ctx, res); err != nil {
		return nil, err
	}
	s.logger.Info("turn stored",
		zap.String("session_id", res.State.SessionID),
		zap.String("meal_id", res.State.MealID),
		zap.Int("resolved", len(res.ResolvedItems)),
		zap.Int("removed", len(res.RemovedItemIDs)))

	return s.createJSONResponse(TurnResponse{
		SessionID:      res.State.SessionID,
		MealID:         res.State.MealID,
		Message:        res.Message,
		Question:       res.Question,
		ResolvedItems:  res.ResolvedItems,
		RemovedItemIDs: res.RemovedItemIDs,
		IsComplete:     res.State.IsComplete,
		Intent:         res.Intent,
	})
}

func (s *MealDialogServer) handleSendMessage(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SendMessageParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	st, err := s.loadOrStart(ctx, params.SessionID, params.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if params.MealType != "" {
		st.MealType = params.MealType
	}

	return s.respond(ctx, s.engine.ProcessMessage(ctx, st, params.Text))
}

func (s *MealDialogServer) handleSendIntent(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SendIntentParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Intent.Type == "" {
		return nil, fmt.Errorf("%w: intent.type is required", errInvalidParams)
	}

	st, err := s.loadOrStart(ctx, params.SessionID, params.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return s.respond(ctx, s.engine.ProcessIntent(ctx, st, params.Intent))
}

func (s *MealDialogServer) handleGetMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	mealID := params.MealID
	if mealID == "" {
		if params.SessionID == "" {
			return nil, fmt.Errorf("%w: meal_id or session_id is required", errInvalidParams)
		}
		st, err := s.store.LoadState(ctx, params.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		mealID = st.MealID
	}

	entries, err := s.store.ListEntries(ctx, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve meal: %w", err)
	}

	return s.createJSONResponse(summarize(mealID, entries))
}

func summarize(mealID string, entries []models.DiaryEntry) models.MealSummary {
	sum := models.MealSummary{MealID: mealID, Entries: entries}
	if sum.Entries == nil {
		sum.Entries = []models.DiaryEntry{}
	}
	maps := make([]map[string]float64, len(entries))
	for i, e := range entries {
		maps[i] = e.ComputedNutrients
		sum.TotalGrams += e.PortionGrams
	}
	sum.Totals = nutrients.Sum(maps...)
	return sum
}

func (s *MealDialogServer) handleResetSession(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ResetSessionParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", errInvalidParams)
	}

	if err := s.store.DeleteState(ctx, params.SessionID); err != nil {
		return nil, fmt.Errorf("failed to reset session: %w", err)
	}
	st := models.NewConversationState(params.SessionID, s.newID(), params.Language)
	if err := s.store.SaveState(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}

	return s.createJSONResponse(map[string]interface{}{
		"session_id": st.SessionID,
		"meal_id":    st.MealID,
	})
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var toolDescriptions = []toolInfo{
	{"send_message", "Send a user message to the food diary dialog and get the next reply"},
	{"send_intent", "Send a pre-classified intent to the food diary dialog"},
	{"get_meal", "Get a meal's diary entries with nutrient totals"},
	{"reset_session", "Start a new meal in a conversation"},
}

func (s *MealDialogServer) describe() map[string]interface{} {
	return map[string]interface{}{
		"server": s.info,
		"tools":  toolDescriptions,
	}
}

func (s *MealDialogServer) registerTools() {
	s.tools = map[string]toolHandler{
		"send_message":  s.handleSendMessage,
		"send_intent":   s.handleSendIntent,
		"get_meal":      s.handleGetMeal,
		"reset_session": s.handleResetSession,
	}
	for name := range s.tools {
		s.logger.Debug("registered tool", zap.String("tool", name))
	}
}
