package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultProxyURL     = "http://mcp-compose-http-proxy:9876"
	DefaultGatewayModel = "anthropic/claude-3.5-sonnet"
)

type GatewayConfig struct {
	ProxyURL string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// GatewayClient calls the openrouter gateway's create_completion tool
// through the MCP compose proxy.
type GatewayClient struct {
	httpClient *http.Client
	proxyURL   string
	apiKey     string
	model      string
	logger     *zap.Logger
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.ProxyURL == "" {
		cfg.ProxyURL = DefaultProxyURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGatewayModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &GatewayClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		proxyURL:   strings.TrimRight(cfg.ProxyURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}
}

// Complete implements Completer.
func (g *GatewayClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nRespond with a single JSON object only."
	}

	completionRequest := map[string]interface{}{
		"model":         g.model,
		"system_prompt": req.System,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"max_tokens":  maxTokens,
		"temperature": 0.1,
	}

	out, err := g.callGateway(ctx, "create_completion", completionRequest)
	if err != nil {
		return "", fmt.Errorf("gateway completion: %w", err)
	}
	content := completionContent(out)
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func (g *GatewayClient) callGateway(ctx context.Context, toolName string, args interface{}) (string, error) {
	url := fmt.Sprintf("%s/openrouter-gateway", g.proxyURL)

	requestData := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      toolName,
			"arguments": args,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	g.logger.Debug("gateway call",
		zap.String("tool", toolName),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("request failed with status %d and couldn't read body: %v", resp.StatusCode, err)
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var mcpResponse struct {
		Result *struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mcpResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if mcpResponse.Error != nil {
		return "", fmt.Errorf("gateway error %d: %s", mcpResponse.Error.Code, mcpResponse.Error.Message)
	}
	if mcpResponse.Result != nil && len(mcpResponse.Result.Content) > 0 {
		return mcpResponse.Result.Content[0].Text, nil
	}
	return "", fmt.Errorf("unexpected response format")
}

// completionContent unwraps the gateway's {"content": "..."} envelope.
// Anything else is taken as the model text itself.
func completionContent(out string) string {
	var envelope struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(out), &envelope); err == nil && envelope.Content != "" {
		return envelope.Content
	}
	return out
}
