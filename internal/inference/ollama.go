package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig holds Ollama client configuration
type OllamaConfig struct {
	URL          string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaClient talks to a local Ollama daemon through /api/chat.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

var _ Client = (*OllamaClient)(nil)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func NewOllamaClient(cfg *OllamaConfig) (*OllamaClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *OllamaClient) Infer(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chat := ollamaChatRequest{Model: model}
	if req.System != "" {
		chat.Messages = append(chat.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	chat.Messages = append(chat.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	if req.Temperature > 0 || req.MaxTokens > 0 {
		chat.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out ollamaChatResponse
	if err := do(c.httpClient, "ollama", httpReq, &out); err != nil {
		return nil, err
	}
	return &Response{
		Content:    out.Message.Content,
		Model:      out.Model,
		TokensUsed: out.PromptEvalCount + out.EvalCount,
	}, nil
}

// Health lists local models and fails when the default one is not pulled.
func (c *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build ollama health request: %w", err)
	}
	var tags ollamaTags
	if err := do(c.httpClient, "ollama", req, &tags); err != nil {
		return err
	}
	if c.defaultModel == "" {
		return nil
	}
	for _, m := range tags.Models {
		// tags carry an implicit ":latest"
		if m.Name == c.defaultModel || strings.TrimSuffix(m.Name, ":latest") == c.defaultModel {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q not pulled", c.defaultModel)
}
