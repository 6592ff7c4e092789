package inference

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// transcribePrompt instructs the model to return only the spoken words.
const transcribePrompt = "Transcreva este áudio em português do Brasil. Retorne apenas o texto falado, sem comentários."

// GeminiConfig holds Gemini client configuration
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiClient runs completions and transcriptions on the Gemini API
type GeminiClient struct {
	client       *genai.Client
	apiKey       string
	defaultModel string
}

var (
	_ Client      = (*GeminiClient)(nil)
	_ Transcriber = (*GeminiClient)(nil)
)

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg *GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		apiKey:       cfg.APIKey,
		defaultModel: model,
	}, nil
}

// Infer generates content for a single text prompt
func (c *GeminiClient) Infer(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	gc := &genai.GenerateContentConfig{}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		gc.Temperature = &t
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), gc)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	res := &Response{
		Content: result.Text(),
		Model:   model,
	}
	if result.UsageMetadata != nil {
		res.TokensUsed = int(result.UsageMetadata.TotalTokenCount)
	}
	return res, nil
}

// Transcribe sends the audio as an inline part next to a transcription
// instruction.
func (c *GeminiClient) Transcribe(ctx context.Context, req *TranscriptionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(req.Audio, req.MIMEType),
		}, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	return result.Text(), nil
}

// Health reports whether the client is configured. It does not spend a
// request.
func (c *GeminiClient) Health(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key is not configured")
	}
	return nil
}
