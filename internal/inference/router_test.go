package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
)

func fakeOpenAI(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.NotEmpty(t, req.Messages)
			assert.Equal(t, "system", req.Messages[0].Role)
			if status != http.StatusOK {
				http.Error(w, "upstream down", status)
				return
			}
			out, _ := json.Marshal(reply)
			fmt.Fprintf(w, `{"model":%q,"choices":[{"message":{"role":"assistant","content":%s}}]}`, req.Model, out)
		case "/audio/transcriptions":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "whisper-1", r.FormValue("model"))
			assert.Equal(t, "pt", r.FormValue("language"))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, "audio.ogg", hdr.Filename)
			data, _ := io.ReadAll(f)
			assert.Equal(t, []byte("OggS"), data)
			io.WriteString(w, `{"text":"  o que tenho hoje  "}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRouter(t *testing.T) {
	cfg := &config.InferenceConfig{
		Lanes: []config.LaneConfig{
			{Name: "local", Provider: "ollama", BaseURL: "http://localhost:11434", Models: []string{"llama3.1:8b", "qwen2.5:3b"}, Strategy: "fastest"},
			{Name: "cloud", Provider: "openai", APIKey: "sk"},
		},
	}
	router, err := NewRouter(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", router.DefaultLane(), "first configured lane is the default")
	assert.Equal(t, []string{"gpt-4o-mini", "llama3.1:8b", "qwen2.5:3b"}, router.ListModels())
	assert.Empty(t, router.TranscriberName(), "ollama cannot transcribe")
}

func TestNewRouterRejectsUnknownDefaultLane(t *testing.T) {
	_, err := NewRouter(&config.InferenceConfig{
		Lanes:       []config.LaneConfig{{Name: "local", Provider: "ollama", BaseURL: "http://localhost:11434"}},
		DefaultLane: "missing",
	})
	assert.Error(t, err)

	_, err = NewRouter(&config.InferenceConfig{
		Lanes: []config.LaneConfig{{Name: "bad", Provider: "carrier-pigeon"}},
	})
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	srv := fakeOpenAI(t, "  Olá!  ", http.StatusOK)
	router, err := NewRouter(&config.InferenceConfig{
		Engines: []config.EngineConfig{{Name: "cloud", Type: "openai-compatible", URL: srv.URL, Models: []string{"gpt-4o-mini"}}},
		Lanes:   []config.LaneConfig{{Name: "default", Engine: "cloud"}},
	})
	require.NoError(t, err)

	out, err := router.Complete(context.Background(), "diga olá")
	require.NoError(t, err)
	assert.Equal(t, "Olá!", out)
}

func TestCompleteWrapsProviderErrors(t *testing.T) {
	srv := fakeOpenAI(t, "", http.StatusBadGateway)
	router, err := NewRouter(&config.InferenceConfig{
		Engines: []config.EngineConfig{{Name: "cloud", Type: "openai", URL: srv.URL}},
		Lanes:   []config.LaneConfig{{Name: "default", Engine: "cloud"}},
	})
	require.NoError(t, err)

	_, err = router.Complete(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrProvider))
	assert.Contains(t, err.Error(), "502")

	empty := fakeOpenAI(t, "   ", http.StatusOK)
	router, err = NewRouter(&config.InferenceConfig{
		Engines: []config.EngineConfig{{Name: "cloud", Type: "openai", URL: empty.URL}},
		Lanes:   []config.LaneConfig{{Name: "default", Engine: "cloud"}},
	})
	require.NoError(t, err)
	_, err = router.Complete(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrProvider))
}

func TestTranscribe(t *testing.T) {
	srv := fakeOpenAI(t, "", http.StatusOK)
	router, err := NewRouter(&config.InferenceConfig{
		Engines:       []config.EngineConfig{{Name: "cloud", Type: "openai", URL: srv.URL}},
		Lanes:         []config.LaneConfig{{Name: "default", Engine: "cloud"}},
		Transcription: config.TranscriptionConfig{Engine: "cloud"},
	})
	require.NoError(t, err)

	text, err := router.Transcribe(context.Background(), []byte("OggS"), "audio/ogg; codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "o que tenho hoje", text)
}

func TestTranscribeWithoutEngine(t *testing.T) {
	router, err := NewRouter(&config.InferenceConfig{
		Lanes: []config.LaneConfig{{Name: "local", Provider: "ollama", BaseURL: "http://localhost:11434"}},
	})
	require.NoError(t, err)
	_, err = router.Transcribe(context.Background(), []byte("x"), "audio/ogg")
	assert.True(t, errors.Is(err, ErrNoTranscriber))
}

func TestPickFastestModel(t *testing.T) {
	models := []string{"llama3.1:70b", "qwen2.5:3b", "mistral"}
	assert.Equal(t, "qwen2.5:3b", pickFastestModel(models))
	assert.Equal(t, "llama3.1:70b", models[0], "input order is preserved")
}
