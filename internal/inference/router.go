package inference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/metrics"
)

var (
	// ErrProvider marks any failure of an LLM call: transport, status,
	// deadline or an empty answer.
	ErrProvider = errors.New("llm provider failure")

	// ErrNoTranscriber is returned when no engine can transcribe audio.
	ErrNoTranscriber = errors.New("no transcription engine configured")
)

// DefaultSystemPrompt frames every completion.
const DefaultSystemPrompt = "Você é um assistente inteligente especializado em gestão de atividades e tarefas."

// Client is the interface for inference providers
type Client interface {
	Infer(ctx context.Context, req *Request) (*Response, error)
	Health(ctx context.Context) error
}

// Transcriber turns recorded speech into text
type Transcriber interface {
	Transcribe(ctx context.Context, req *TranscriptionRequest) (string, error)
}

// Request represents an inference request
type Request struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response represents an inference response
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	Lane       string
}

// TranscriptionRequest carries one audio payload
type TranscriptionRequest struct {
	Audio    []byte
	MIMEType string
	Model    string
	Language string
}

// Router manages inference engines and lanes
type Router struct {
	lanes       map[string]*Lane
	engines     map[string]*Engine
	defaultLane string

	transcriber      Transcriber
	transcriberName  string
	transcriberModel string

	mu sync.RWMutex
}

// Lane represents an inference routing lane
type Lane struct {
	Engine   *Engine
	Strategy string
}

// Engine represents a runtime inference engine
type Engine struct {
	Name    string
	Type    string
	URL     string
	Models  []string
	Default string
	Client  Client
}

// NewRouter creates a new inference router from config
func NewRouter(cfg *config.InferenceConfig) (*Router, error) {
	log := logging.WithComponent("inference")
	r := &Router{
		lanes:       make(map[string]*Lane),
		engines:     make(map[string]*Engine),
		defaultLane: cfg.DefaultLane,
	}

	// Explicit engines from config
	for _, ec := range cfg.Engines {
		eng, err := newEngine(ec)
		if err != nil {
			log.Warn().Str("engine", ec.Name).Err(err).Msg("Failed to create engine")
			continue
		}
		r.engines[ec.Name] = eng
	}

	// Lanes
	firstLane := ""
	for _, lc := range cfg.Lanes {
		var eng *Engine
		if lc.Engine != "" {
			e, ok := r.engines[lc.Engine]
			if !ok {
				log.Warn().Str("lane", lc.Name).Str("engine", lc.Engine).Msg("Engine not found for lane")
				continue
			}
			eng = e
		} else if lc.Provider != "" {
			// Shorthand: implicit engine named after the lane
			e, err := newEngine(config.EngineConfig{
				Name:   lc.Name,
				Type:   lc.Provider,
				URL:    lc.BaseURL,
				APIKey: lc.APIKey,
				Models: lc.Models,
			})
			if err != nil {
				log.Warn().Str("lane", lc.Name).Err(err).Msg("Failed to create implicit engine")
				continue
			}
			eng = e
			r.engines[lc.Name] = eng
		} else {
			log.Warn().Str("lane", lc.Name).Msg("Lane has no engine or provider")
			continue
		}

		r.lanes[lc.Name] = &Lane{Engine: eng, Strategy: lc.Strategy}
		if firstLane == "" {
			firstLane = lc.Name
		}
	}

	if r.defaultLane != "" {
		if _, ok := r.lanes[r.defaultLane]; !ok {
			return nil, fmt.Errorf("default lane %s not found", r.defaultLane)
		}
	} else {
		r.defaultLane = firstLane
	}
	if r.defaultLane == "" {
		return nil, fmt.Errorf("no usable inference lane")
	}

	r.pickTranscriber(cfg.Transcription)
	return r, nil
}

// pickTranscriber binds the named engine, or the default lane's engine when
// it can transcribe.
func (r *Router) pickTranscriber(tc config.TranscriptionConfig) {
	candidates := []*Engine{}
	if tc.Engine != "" {
		if e, ok := r.engines[tc.Engine]; ok {
			candidates = append(candidates, e)
		}
	} else {
		candidates = append(candidates, r.lanes[r.defaultLane].Engine)
	}
	for _, e := range candidates {
		if t, ok := e.Client.(Transcriber); ok {
			r.transcriber = t
			r.transcriberName = e.Name
			r.transcriberModel = tc.Model
			return
		}
	}
}

func newEngine(ec config.EngineConfig) (*Engine, error) {
	typ := normalizeType(ec.Type)
	models := ec.Models
	if len(models) == 0 {
		models = []string{defaultModelFor(typ)}
	}
	client, err := createClient(typ, ec, models[0])
	if err != nil {
		return nil, err
	}
	return &Engine{
		Name:    ec.Name,
		Type:    typ,
		URL:     ec.URL,
		Models:  models,
		Default: models[0],
		Client:  client,
	}, nil
}

func normalizeType(typ string) string {
	switch typ {
	case "openai", "openrouter", "vllm", "mlx", "llamacpp":
		return "openai-compatible"
	}
	return typ
}

func defaultModelFor(typ string) string {
	switch typ {
	case "ollama":
		return "llama3.1"
	case "gemini":
		return "gemini-2.0-flash"
	default:
		return "gpt-4o-mini"
	}
}

func createClient(typ string, ec config.EngineConfig, defaultModel string) (Client, error) {
	switch typ {
	case "ollama":
		return NewOllamaClient(&OllamaConfig{URL: ec.URL, DefaultModel: defaultModel, Timeout: ec.GetTimeout()})
	case "openai-compatible":
		baseURL := ec.URL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIClient(&OpenAIConfig{BaseURL: baseURL, APIKey: ec.APIKey, Model: defaultModel, Timeout: ec.GetTimeout()})
	case "gemini":
		return NewGeminiClient(&GeminiConfig{APIKey: ec.APIKey, BaseURL: ec.URL, Model: defaultModel})
	default:
		return nil, fmt.Errorf("unsupported inference type: %s", typ)
	}
}

// Infer routes the request to the appropriate engine
func (r *Router) Infer(ctx context.Context, lane string, req *Request) (*Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lane == "" {
		lane = r.defaultLane
	}

	targetLane, ok := r.lanes[lane]
	if !ok {
		return nil, fmt.Errorf("lane %s not found", lane)
	}

	// Select model based on strategy if not specified
	if req.Model == "" {
		model := targetLane.Engine.Default
		if targetLane.Strategy == "fastest" {
			model = pickFastestModel(targetLane.Engine.Models)
		}
		req.Model = model
	}

	found := false
	for _, m := range targetLane.Engine.Models {
		if m == req.Model {
			found = true
			break
		}
	}
	if !found {
		req.Model = targetLane.Engine.Default
	}

	res, err := targetLane.Engine.Client.Infer(ctx, req)
	if err == nil {
		res.Lane = lane
	}
	return res, err
}

// Complete runs prompt on the default lane and returns the answer text.
// Every failure, including an empty answer, wraps ErrProvider.
func (r *Router) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	res, err := r.Infer(ctx, "", &Request{
		Prompt:      prompt,
		System:      DefaultSystemPrompt,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	metrics.LLMLatency.WithLabelValues("complete").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMFailures.WithLabelValues("complete").Inc()
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	content := strings.TrimSpace(res.Content)
	if content == "" {
		metrics.LLMFailures.WithLabelValues("complete").Inc()
		return "", fmt.Errorf("%w: empty completion from lane %s", ErrProvider, res.Lane)
	}
	return content, nil
}

// Transcribe converts audio with the configured transcription engine.
func (r *Router) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	r.mu.RLock()
	t, model := r.transcriber, r.transcriberModel
	r.mu.RUnlock()
	if t == nil {
		return "", ErrNoTranscriber
	}

	start := time.Now()
	text, err := t.Transcribe(ctx, &TranscriptionRequest{
		Audio:    audio,
		MIMEType: mimeType,
		Model:    model,
		Language: "pt",
	})
	metrics.LLMLatency.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMFailures.WithLabelValues("transcribe").Inc()
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.LLMFailures.WithLabelValues("transcribe").Inc()
		return "", fmt.Errorf("%w: empty transcription", ErrProvider)
	}
	return text, nil
}

// DefaultLane returns the lane used by Complete
func (r *Router) DefaultLane() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultLane
}

// TranscriberName returns the engine bound for transcription, if any
func (r *Router) TranscriberName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcriberName
}

// Health checks all engines
func (r *Router) Health(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]error)
	for name, eng := range r.engines {
		results[name] = eng.Client.Health(ctx)
	}
	return results
}

// ListEngines returns engines sorted by name
func (r *Router) ListEngines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Engine, 0, len(r.engines))
	for _, e := range r.engines {
		list = append(list, *e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// ListModels returns flat list of all models
func (r *Router) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelSet := make(map[string]bool)
	for _, e := range r.engines {
		for _, m := range e.Models {
			modelSet[m] = true
		}
	}
	models := make([]string, 0, len(modelSet))
	for m := range modelSet {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

func pickFastestModel(models []string) string {
	if len(models) == 0 {
		return ""
	}
	sorted := append([]string(nil), models...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return parseParams(sorted[i]) < parseParams(sorted[j])
	})
	return sorted[0]
}

// parseParams extracts the parameter count from names like "llama3.1:8b".
func parseParams(name string) int {
	lower := strings.ToLower(name)
	i := strings.LastIndex(lower, "b")
	if i <= 0 {
		return 999
	}
	j := i
	for j > 0 && lower[j-1] >= '0' && lower[j-1] <= '9' {
		j--
	}
	if j == i {
		return 999
	}
	var n int
	if _, err := fmt.Sscanf(lower[j:i], "%d", &n); err != nil {
		return 999
	}
	return n
}
