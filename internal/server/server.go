// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/models"
)

const Version = "1.0.0"

type Config struct {
	Host string
	Port int
}

// Store persists conversation state and diary entries.
type Store interface {
	SaveState(ctx context.Context, st models.ConversationState) error
	LoadState(ctx context.Context, sessionID string) (models.ConversationState, error)
	DeleteState(ctx context.Context, sessionID string) error
	// SaveTurn applies a turn's entry changes and state atomically.
	SaveTurn(ctx context.Context, st models.ConversationState, removedItemIDs []string, items []models.ResolvedItem) error
	ListEntries(ctx context.Context, mealID string) ([]models.DiaryEntry, error)
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type MealDialogServer struct {
	httpServer *http.Server
	engine     *dialog.Engine
	store      Store
	logger     *zap.Logger
	config     *Config
	tools      map[string]toolHandler
	info       protocol.Implementation
	newID      func() string
}

func NewMealDialogServer(cfg *Config, engine *dialog.Engine, store Store, logger *zap.Logger) *MealDialogServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MealDialogServer{
		engine: engine,
		store:  store,
		logger: logger,
		config: cfg,
		info: protocol.Implementation{
			Name:    "meal-dialog",
			Version: Version,
		},
		newID: newID,
	}
	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *MealDialogServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *MealDialogServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	switch r.Method {
	case http.MethodOptions:
		return
	case http.MethodGet:
		s.writeJSON(w, s.describe())
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Decode the MCP request
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	start := time.Now()
	result, err := handler(r.Context(), &request)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errInvalidParams) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("tool call failed",
			zap.String("tool", request.Name),
			zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}
	s.logger.Debug("tool call",
		zap.String("tool", request.Name),
		zap.Duration("elapsed", time.Since(start)))

	s.writeJSON(w, result)
}

func (s *MealDialogServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *MealDialogServer) Start(ctx context.Context) error {
	s.logger.Info("starting meal dialog server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MealDialogServer) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *MealDialogServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
