package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mcp-meal-dialog/internal/companion"
	"mcp-meal-dialog/internal/config"
	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/fineli"
	"mcp-meal-dialog/internal/intent"
	"mcp-meal-dialog/internal/llm"
)

// buildEngine wires search, NLU and companions from cfg. A non-empty
// catalogPath overrides the configured food source.
func buildEngine(ctx context.Context, cfg *config.Config, catalogPath string, logger *zap.Logger) (*dialog.Engine, error) {
	searcher, err := buildSearcher(cfg, catalogPath, logger)
	if err != nil {
		return nil, err
	}

	dc := cfg.DialogConfig()
	opts := []dialog.Option{
		dialog.WithConfig(dc),
		dialog.WithLogger(logger),
		dialog.WithCompanions(companion.New(cfg.CompanionTable())),
	}

	completer, err := buildCompleter(ctx, cfg.NLU, logger)
	if err != nil {
		return nil, err
	}

	var external intent.External
	if completer != nil {
		external = llm.NewIntentClassifier(completer)
		if cfg.NLU.EnableRanker {
			opts = append(opts, dialog.WithRanker(llm.NewRanker(completer, dc.Language)))
		}
		if cfg.NLU.EnableResponder {
			opts = append(opts, dialog.WithResponder(llm.NewResponder(completer)))
		}
	}
	opts = append(opts, dialog.WithClassifier(intent.New(intent.Config{
		External:  external,
		Threshold: cfg.NLU.Threshold,
		Timeout:   cfg.ClassifyTimeout(),
		Logger:    logger,
	})))

	logger.Info("dialog engine ready",
		zap.String("nlu_provider", cfg.NLU.Provider),
		zap.Bool("ranker", completer != nil && cfg.NLU.EnableRanker),
		zap.Bool("responder", completer != nil && cfg.NLU.EnableResponder))

	return dialog.New(searcher, opts...), nil
}

func buildSearcher(cfg *config.Config, catalogPath string, logger *zap.Logger) (fineli.Searcher, error) {
	if catalogPath == "" {
		catalogPath = cfg.Fineli.CatalogPath
	}
	if catalogPath != "" {
		catalog, err := fineli.LoadCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		logger.Info("using static food catalog",
			zap.String("path", catalogPath),
			zap.Int("foods", catalog.Len()))
		return catalog, nil
	}

	client := fineli.NewClient(fineli.ClientConfig{
		BaseURL:       cfg.Fineli.BaseURL,
		Timeout:       cfg.FineliTimeout(),
		RatePerSecond: cfg.Fineli.RatePerSecond,
		Burst:         cfg.Fineli.Burst,
		Logger:        logger,
	})
	return fineli.NewCachedSearcher(client, cfg.Fineli.CacheSize, cfg.CacheTTL()), nil
}

// buildCompleter returns nil when no NLU provider is configured.
func buildCompleter(ctx context.Context, nlu config.NLUConfig, logger *zap.Logger) (llm.Completer, error) {
	switch nlu.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey: nlu.APIKey,
			Model:  nlu.Model,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderGateway:
		return llm.NewGatewayClient(llm.GatewayConfig{
			ProxyURL: nlu.ProxyURL,
			APIKey:   nlu.APIKey,
			Model:    nlu.Model,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown NLU provider %q", nlu.Provider)
	}
}
