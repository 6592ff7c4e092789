package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/inference"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type engines struct{ health map[string]error }

func (e engines) ListEngines() []inference.Engine {
	return []inference.Engine{{Name: "gemini", Type: "gemini", Models: []string{"gemini-2.5-flash"}, Default: "gemini-2.5-flash"}}
}
func (e engines) Health(context.Context) map[string]error { return e.health }
func (e engines) DefaultLane() string                     { return "fast" }

type users struct{}

func (users) FindUserByPhone(_ context.Context, phone string) (*task.User, error) {
	switch phone {
	case "+5511999990000":
		return &task.User{ID: "u1", Name: "Ana", Phone: phone}, nil
	case "+5500000000000":
		return nil, errors.New("timeout")
	}
	return nil, store.ErrNotFound
}

type dispatcher struct{}

func (dispatcher) Dispatch(_ context.Context, user *task.User, text string) dispatch.Reply {
	return dispatch.Reply{Text: user.Name + ":" + text, Branch: "today"}
}

func testConfig(port int) *config.Config {
	cfg := config.Default()
	cfg.Server.Port = port
	cfg.Server.Host = "localhost"
	return cfg
}

func testServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	return New(cfg, deps)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	srv := testServer(t, testConfig(18800), Deps{
		Store:     pinger{},
		Redis:     pinger{},
		Inference: engines{health: map[string]error{"gemini": nil}},
	})

	w := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var hr HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hr))
	assert.Equal(t, "healthy", hr.Status)
	assert.True(t, hr.Services["store"].Healthy)
	assert.True(t, hr.Services["redis"].Healthy)
	assert.True(t, hr.Services["inference:gemini"].Healthy)
}

func TestHealthDegradedAndUnhealthy(t *testing.T) {
	degraded := testServer(t, testConfig(18800), Deps{
		Store: pinger{},
		Redis: pinger{err: errors.New("connection refused")},
	})
	w := get(t, degraded, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	unhealthy := testServer(t, testConfig(18800), Deps{Store: pinger{err: errors.New("supabase down")}})
	w = get(t, unhealthy, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "supabase down")
}

func TestHealthRejectsPost(t *testing.T) {
	srv := testServer(t, testConfig(18800), Deps{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStatusAndEngines(t *testing.T) {
	cfg := testConfig(18800)
	cfg.Channels.WhatsApp.Enabled = true
	srv := testServer(t, cfg, Deps{Inference: engines{}})

	var st StatusResponse
	require.NoError(t, json.NewDecoder(get(t, srv, "/api/v1/status").Body).Decode(&st))
	assert.Equal(t, "fast", st.Lane)
	assert.True(t, st.Channels["whatsapp"])
	assert.Equal(t, "America/Sao_Paulo", st.Timezone)

	var list []EngineInfo
	require.NoError(t, json.NewDecoder(get(t, srv, "/api/v1/inference/engines").Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "gemini", list[0].Name)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, testConfig(18800), Deps{})
	get(t, srv, "/health")

	w := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taskbot_http_requests_total")
}

func TestWebhookMounted(t *testing.T) {
	hit := false
	srv := testServer(t, testConfig(18800), Deps{WhatsApp: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	})})
	get(t, srv, "/webhook/whatsapp?hub.mode=subscribe")
	assert.True(t, hit)
}

func postDispatch(srv *Server, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", strings.NewReader(body)))
	return w
}

func TestDispatchAPI(t *testing.T) {
	cfg := testConfig(18800)
	cfg.Server.DebugAPI = true
	srv := testServer(t, cfg, Deps{Users: users{}, Dispatcher: dispatcher{}})

	w := postDispatch(srv, `{"phone":"55 11 99999-0000","text":"hoje"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp DispatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, DispatchResponse{Reply: "Ana:hoje", Branch: "today"}, resp)

	assert.Equal(t, http.StatusNotFound, postDispatch(srv, `{"phone":"+5511111111111","text":"hoje"}`).Code)
	assert.Equal(t, http.StatusBadGateway, postDispatch(srv, `{"phone":"+5500000000000","text":"hoje"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postDispatch(srv, `{"text":"hoje"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postDispatch(srv, `not json`).Code)
}

func TestDispatchAPIDisabledByDefault(t *testing.T) {
	srv := testServer(t, testConfig(18800), Deps{Users: users{}, Dispatcher: dispatcher{}})
	assert.Equal(t, http.StatusNotFound, postDispatch(srv, `{"phone":"+5511999990000","text":"hoje"}`).Code)
}

func TestShutdown(t *testing.T) {
	srv := testServer(t, testConfig(18801), Deps{})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
