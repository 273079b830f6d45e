package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dora/internal/config"
	"dora/internal/metrics"
	"dora/internal/model"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient completes prompts with Google's Gemini models
type GeminiClient struct {
	client  *genai.Client
	model   string
	genCfg  *genai.GenerateContentConfig
	timeout time.Duration
	logger  *zap.Logger
}

// NewGeminiClient creates a Gemini client from the LLM config
func NewGeminiClient(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		genCfg.TopP = genai.Ptr(float32(cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxTokens)
	}

	logger.Info("gemini client ready", zap.String("model", cfg.Model))
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		genCfg:  genCfg,
		timeout: time.Duration(cfg.Timeout) * time.Second,
		logger:  logger,
	}, nil
}

// Provider implements TextCompleter
func (g *GeminiClient) Provider() string { return "gemini" }

// Complete sends prompt as a single user turn and returns the reply text
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.genCfg)
	metrics.CompletionDuration.WithLabelValues(g.Provider()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", g.fail(classifyGeminiError(err))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", g.fail(&model.UpstreamError{Provider: g.Provider(), Kind: model.UpstreamMalformed, Err: errors.New("empty completion")})
	}
	return text, nil
}

func (g *GeminiClient) fail(up *model.UpstreamError) error {
	metrics.CompletionFailures.WithLabelValues(g.Provider(), string(up.Kind)).Inc()
	g.logger.Warn("text completion failed", zap.String("kind", string(up.Kind)), zap.Error(up.Err))
	return up
}

func classifyGeminiError(err error) *model.UpstreamError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &model.UpstreamError{
			Provider:   "gemini",
			Kind:       model.UpstreamKindForStatus(apiErr.Code),
			StatusCode: apiErr.Code,
			Err:        err,
		}
	}
	return &model.UpstreamError{Provider: "gemini", Kind: model.UpstreamNetwork, Err: err}
}
