package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig holds OpenAI-compatible client configuration
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient speaks the chat completions and audio transcription API. It
// also serves vLLM, OpenRouter and llama.cpp servers.
type OpenAIClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
}

var (
	_ Client      = (*OpenAIClient)(nil)
	_ Transcriber = (*OpenAIClient)(nil)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.Model,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) newRequest(ctx context.Context, path, contentType string, body *bytes.Buffer) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *OpenAIClient) Infer(ctx context.Context, req *Request) (*Response, error) {
	chat := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if chat.Model == "" {
		chat.Model = c.defaultModel
	}
	if req.System != "" {
		chat.Messages = append(chat.Messages, chatMessage{Role: "system", Content: req.System})
	}
	chat.Messages = append(chat.Messages, chatMessage{Role: "user", Content: req.Prompt})

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(chat); err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, "/chat/completions", "application/json", &body)
	if err != nil {
		return nil, err
	}

	var out chatResponse
	if err := do(c.httpClient, "openai", httpReq, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return &Response{
		Content:    out.Choices[0].Message.Content,
		Model:      out.Model,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}

// Transcribe posts the voice note to /audio/transcriptions.
func (c *OpenAIClient) Transcribe(ctx context.Context, req *TranscriptionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "whisper-1"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio"+extensionFor(req.MIMEType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	fields := map[string]string{"model": model, "response_format": "json", "language": req.Language}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	httpReq, err := c.newRequest(ctx, "/audio/transcriptions", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := do(c.httpClient, "transcription", httpReq, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Health only checks configuration; the hosted API is never called.
func (c *OpenAIClient) Health(context.Context) error {
	if c.apiKey == "" && strings.Contains(c.baseURL, "api.openai.com") {
		return fmt.Errorf("API key is not configured")
	}
	return nil
}

// extensionFor picks the upload file name suffix; whisper sniffs the
// format from it.
func extensionFor(mimeType string) string {
	switch strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	default:
		return ".ogg"
	}
}
