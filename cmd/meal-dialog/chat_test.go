package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcp-meal-dialog/internal/companion"
	"mcp-meal-dialog/internal/config"
	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/fineli"
	"mcp-meal-dialog/internal/models"
)

func TestChat(t *testing.T) {
	catalog := fineli.NewCatalog([]models.FoodRecord{{
		ID:               3,
		Names:            models.LocalizedText{"fi": "Kana, broileri, paistettu"},
		Type:             models.FoodTypeFood,
		NutrientsPer100g: map[string]float64{"energyKcal": 150},
	}})
	engine := dialog.New(catalog, dialog.WithCompanions(companion.New(nil)))

	in := strings.NewReader("120g kanaa\n/state\n/reset\n/state\n/quit\nnever read\n")
	var out bytes.Buffer
	require.NoError(t, chat(context.Background(), engine, "fi", in, &out))

	got := out.String()
	assert.Contains(t, got, "+ Kana, broileri, paistettu 120 g")
	assert.Contains(t, got, `"portionGrams":120`)
	assert.Contains(t, got, "(new meal)")
	assert.Contains(t, got, `"items":[]`)
	assert.NotContains(t, got, "never read")
}

func TestBuildCompleter(t *testing.T) {
	c, err := buildCompleter(context.Background(), config.NLUConfig{Provider: config.ProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = buildCompleter(context.Background(), config.NLUConfig{Provider: config.ProviderGateway}, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = buildCompleter(context.Background(), config.NLUConfig{Provider: config.ProviderGemini}, nil)
	assert.Error(t, err)

	_, err = buildCompleter(context.Background(), config.NLUConfig{Provider: "oracle"}, nil)
	assert.Error(t, err)
}

func TestBuildSearcher(t *testing.T) {
	cfg := config.Default()
	s, err := buildSearcher(cfg, "../../configs/foods.yaml", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &fineli.Catalog{}, s)

	s, err = buildSearcher(cfg, "", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &fineli.CachedSearcher{}, s)
}
