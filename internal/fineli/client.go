// Package fineli provides food search backends: the Fineli open data API,
// a static YAML catalog, and an LRU cache in front of either.
package fineli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mcp-meal-dialog/internal/models"
)

// DefaultBaseURL is the public Fineli API.
const DefaultBaseURL = "https://fineli.fi/fineli/api/v1"

// Searcher finds foods by free text.
type Searcher interface {
	Search(ctx context.Context, text, lang string) ([]models.FoodRecord, error)
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64 // outbound requests per second, 0 = unlimited
	Burst         int
	Logger        *zap.Logger
}

// Client searches the Fineli API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a Client, applying defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     cfg.Logger,
	}
}

// apiText is a localized string as Fineli returns it.
type apiText struct {
	FI string `json:"fi"`
	SV string `json:"sv"`
	EN string `json:"en"`
}

func (t apiText) localized() models.LocalizedText {
	out := models.LocalizedText{}
	if t.FI != "" {
		out["fi"] = t.FI
	}
	if t.SV != "" {
		out["sv"] = t.SV
	}
	if t.EN != "" {
		out["en"] = t.EN
	}
	return out
}

type apiCode struct {
	Code string `json:"code"`
}

type apiUnit struct {
	Code        string  `json:"code"`
	Description apiText `json:"description"`
	Mass        float64 `json:"mass"`
}

// apiFood is the subset of a Fineli food we use. Nutrients are pointers
// because the API sends null for unmeasured values.
type apiFood struct {
	ID              int       `json:"id"`
	Name            apiText   `json:"name"`
	Type            apiCode   `json:"type"`
	IngredientClass apiCode   `json:"ingredientClass"`
	Units           []apiUnit `json:"units"`

	EnergyKcal         *float64 `json:"energyKcal"`
	Energy             *float64 `json:"energy"`
	Fat                *float64 `json:"fat"`
	Protein            *float64 `json:"protein"`
	Carbohydrate       *float64 `json:"carbohydrate"`
	Fiber              *float64 `json:"fiber"`
	Sugar              *float64 `json:"sugar"`
	Salt               *float64 `json:"salt"`
	SaturatedFat       *float64 `json:"saturatedFat"`
	MonounsaturatedFat *float64 `json:"monounsaturatedFat"`
	PolyunsaturatedFat *float64 `json:"polyunsaturatedFat"`
	Cholesterol        *float64 `json:"cholesterol"`
	Alcohol            *float64 `json:"alcohol"`
}

func (f apiFood) record() models.FoodRecord {
	rec := models.FoodRecord{
		ID:               f.ID,
		Names:            f.Name.localized(),
		Type:             f.Type.Code,
		Class:            f.IngredientClass.Code,
		NutrientsPer100g: map[string]float64{},
	}
	for _, u := range f.Units {
		rec.Units = append(rec.Units, models.FoodUnit{
			Code:   strings.ToUpper(u.Code),
			Labels: u.Description.localized(),
			Mass:   u.Mass,
		})
	}
	for code, v := range map[string]*float64{
		"energyKcal":         f.EnergyKcal,
		"energy":             f.Energy,
		"fat":                f.Fat,
		"protein":            f.Protein,
		"carbohydrate":       f.Carbohydrate,
		"fiber":              f.Fiber,
		"sugar":              f.Sugar,
		"salt":               f.Salt,
		"saturatedFat":       f.SaturatedFat,
		"monounsaturatedFat": f.MonounsaturatedFat,
		"polyunsaturatedFat": f.PolyunsaturatedFat,
		"cholesterol":        f.Cholesterol,
		"alcohol":            f.Alcohol,
	} {
		if v != nil {
			rec.NutrientsPer100g[code] = *v
		}
	}
	return rec
}

// Search implements Searcher.
func (c *Client) Search(ctx context.Context, text, lang string) ([]models.FoodRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("q", text)
	if lang != "" {
		q.Set("lang", lang)
	}
	endpoint := c.baseURL + "/foods?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fineli request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fineli returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var foods []apiFood
	if err := json.Unmarshal(body, &foods); err != nil {
		return nil, fmt.Errorf("failed to parse fineli response: %w", err)
	}

	out := make([]models.FoodRecord, 0, len(foods))
	for _, f := range foods {
		out = append(out, f.record())
	}
	c.logger.Debug("fineli search",
		zap.String("query", text),
		zap.String("lang", lang),
		zap.Int("results", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
