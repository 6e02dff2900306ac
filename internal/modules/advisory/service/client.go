package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aster_bot/internal/modules/config"
	"aster_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderGrok     = "grok"
)

var providerDefaults = map[string]struct{ baseURL, model string }{
	ProviderDeepSeek: {"https://api.deepseek.com", "deepseek-chat"},
	ProviderGrok:     {"https://api.x.ai/v1", "grok-beta"},
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client — OpenAI-совместимый chat completions (DeepSeek, Grok).
type Client struct {
	provider string
	baseURL  string
	model    string
	apiKey   string
	http     *http.Client
}

type ClientOptions struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

func NewClient(o ClientOptions) (*Client, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("advisory: api key is empty")
	}
	if o.Provider == "" {
		o.Provider = ProviderDeepSeek
	}
	def, ok := providerDefaults[o.Provider]
	if !ok {
		return nil, fmt.Errorf("advisory: unknown provider %q", o.Provider)
	}
	if o.BaseURL == "" {
		o.BaseURL = def.baseURL
	}
	if o.Model == "" {
		o.Model = def.model
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	logger.Info("[ADVISORY] client %s @ %s (%s)", o.Model, o.BaseURL, o.Provider)
	return &Client{
		provider: o.Provider,
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		model:    o.Model,
		apiKey:   o.APIKey,
		http:     &http.Client{Timeout: o.Timeout},
	}, nil
}

func clientFromConfig(cfg *config.Config) (*Client, error) {
	return NewClient(ClientOptions{
		Provider: cfg.Advisory.Provider,
		BaseURL:  cfg.Advisory.BaseURL,
		Model:    cfg.Advisory.Model,
		APIKey:   cfg.Advisory.APIKey,
		Timeout:  cfg.Advisory.Timeout,
	})
}

func (c *Client) Provider() string { return c.provider }

// Chat возвращает текст первого варианта ответа.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int, jsonFormat bool) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if jsonFormat {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", c.provider, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s chat read body: %w", c.provider, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%s chat: http %d: %s", c.provider, resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := sonic.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("%s chat decode: %w", c.provider, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty choices", c.provider)
	}
	return out.Choices[0].Message.Content, nil
}

// ChatJSON просит JSON-ответ. Если провайдер не поддерживает response_format
// или вернул не-JSON, повторяет обычным запросом и вырезает первый {...} из текста.
func (c *Client) ChatJSON(ctx context.Context, messages []Message, temperature float64, maxTokens int) (map[string]any, error) {
	content, err := c.Chat(ctx, messages, temperature, maxTokens, true)
	if err == nil {
		var out map[string]any
		if err = sonic.UnmarshalString(content, &out); err == nil {
			return out, nil
		}
	}
	logger.Warn("[ADVISORY] json response failed, retry as text: %v", err)

	content, err = c.Chat(ctx, messages, temperature, maxTokens, false)
	if err != nil {
		return nil, err
	}
	return extractJSON(content)
}

func extractJSON(content string) (map[string]any, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no json object in response %q", truncate(content, 200))
	}
	var out map[string]any
	if err := sonic.UnmarshalString(content[start:end+1], &out); err != nil {
		return nil, fmt.Errorf("parse json from response: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
