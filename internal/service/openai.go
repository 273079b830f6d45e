package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dora/internal/config"
	"dora/internal/metrics"
	"dora/internal/model"

	"go.uber.org/zap"
)

// StreamChunkParser is the interface for provider-specific chunk parsing
type StreamChunkParser interface {
	ParseChunk(data []byte) (*StreamChunk, error)
}

// OpenAIClient handles OpenAI-compatible chat completion APIs
type OpenAIClient struct {
	config      *config.LLMConfig
	httpClient  *http.Client
	chunkParser StreamChunkParser
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client with auto-detection of provider
func NewOpenAIClient(cfg *config.LLMConfig, logger *zap.Logger) *OpenAIClient {
	var parser StreamChunkParser
	switch {
	case IsNVIDIAProvider(cfg.APIBase):
		parser = &NVIDIAStreamChunkParser{}
		logger.Info("detected NVIDIA API provider (supports reasoning)", zap.String("api_base", cfg.APIBase))
	case IsOpenAIProvider(cfg.APIBase):
		parser = &OpenAIStreamChunkParser{}
		logger.Info("detected OpenAI API provider")
	default:
		// Default to OpenAI format for unknown providers
		parser = &OpenAIStreamChunkParser{}
		logger.Info("using standard OpenAI format", zap.String("api_base", cfg.APIBase))
	}

	return &OpenAIClient{
		config:      cfg,
		chunkParser: parser,
		logger:      logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Provider implements TextCompleter
func (c *OpenAIClient) Provider() string { return "openai" }

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	ExtraBody   map[string]any `json:"extra_body,omitempty"`
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

const systemPrompt = "You are DORA, the campus and volunteer assistant of Sri Eshwar College of Engineering. Answer using only the context you are given."

// Complete sends prompt as a single user turn and returns the reply text
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.ChatCompletion(ctx, c.request(prompt))
	metrics.CompletionDuration.WithLabelValues(c.Provider()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", c.fail(&model.UpstreamError{Provider: c.Provider(), Kind: model.UpstreamMalformed, Err: errors.New("empty completion")})
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the reply through callback and returns the full text
func (c *OpenAIClient) CompleteStream(ctx context.Context, prompt string, callback StreamCallback) (string, error) {
	var full strings.Builder
	start := time.Now()
	err := c.ChatCompletionStream(ctx, c.request(prompt), func(chunk *StreamChunk) error {
		full.WriteString(chunk.Content)
		return callback(chunk)
	})
	metrics.CompletionDuration.WithLabelValues(c.Provider()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(err)
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", c.fail(&model.UpstreamError{Provider: c.Provider(), Kind: model.UpstreamMalformed, Err: errors.New("empty stream")})
	}
	return full.String(), nil
}

func (c *OpenAIClient) request(prompt string) ChatCompletionRequest {
	return ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
}

func (c *OpenAIClient) fail(err error) error {
	var up *model.UpstreamError
	if !errors.As(err, &up) {
		up = &model.UpstreamError{Provider: c.Provider(), Kind: model.UpstreamNetwork, Err: err}
	}
	metrics.CompletionFailures.WithLabelValues(c.Provider(), string(up.Kind)).Inc()
	c.logger.Warn("text completion failed", zap.String("kind", string(up.Kind)), zap.Error(err))
	return up
}

// applyDefaults fills unset request parameters from config
func (c *OpenAIClient) applyDefaults(req *ChatCompletionRequest) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.Temperature == 0 && c.config.Temperature > 0 {
		req.Temperature = c.config.Temperature
	}
	if req.TopP == 0 && c.config.TopP > 0 {
		req.TopP = c.config.TopP
	}
	if req.MaxTokens == 0 && c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if req.ExtraBody == nil && c.config.ExtraBody != "" {
		var extraBody map[string]any
		if err := json.Unmarshal([]byte(c.config.ExtraBody), &extraBody); err == nil {
			req.ExtraBody = extraBody
		} else {
			c.logger.Warn("failed to parse LLM_EXTRA_BODY", zap.Error(err))
		}
	}
}

func (c *OpenAIClient) newRequest(ctx context.Context, req ChatCompletionRequest) (*http.Request, error) {
	if !c.config.Enabled {
		return nil, &model.UpstreamError{Provider: c.Provider(), Kind: model.UpstreamDisabled, Err: errors.New("missing API key")}
	}
	c.applyDefaults(&req)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(c.config.APIBase, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))
	return httpReq, nil
}

func (c *OpenAIClient) statusError(status int, body []byte) error {
	return &model.UpstreamError{
		Provider:   c.Provider(),
		Kind:       model.UpstreamKindForStatus(status),
		StatusCode: status,
		Err:        fmt.Errorf("API request failed: %s", strings.TrimSpace(string(body))),
	}
}

// ChatCompletion performs a chat completion request
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, body)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &model.UpstreamError{Provider: c.Provider(), Kind: model.UpstreamMalformed, Err: err}
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)
	return &result, nil
}

// ChatCompletionStream performs a streaming chat completion request
func (c *OpenAIClient) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, callback StreamCallback) error {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return c.statusError(resp.StatusCode, body)
	}

	// Process streaming response
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read stream: %w", err)
		}
		eof := err != nil

		line = bytes.TrimSpace(line)
		if bytes.HasPrefix(line, []byte("data: ")) {
			data := bytes.TrimPrefix(line, []byte("data: "))
			if bytes.Equal(data, []byte("[DONE]")) {
				return nil
			}

			chunk, perr := c.chunkParser.ParseChunk(data)
			if perr != nil {
				c.logger.Warn("failed to parse stream chunk", zap.Error(perr))
			} else if cerr := callback(chunk); cerr != nil {
				return fmt.Errorf("callback error: %w", cerr)
			}
		}

		if eof {
			return nil
		}
	}
}
