package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/inference"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/metrics"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Version is reported by /health and /api/v1/status.
var Version = "dev"

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Engines reports inference engines and their health.
type Engines interface {
	ListEngines() []inference.Engine
	Health(ctx context.Context) map[string]error
	DefaultLane() string
}

// Users resolves a phone to a user for the dispatch API.
type Users interface {
	FindUserByPhone(ctx context.Context, phone string) (*task.User, error)
}

// Dispatcher answers one text message.
type Dispatcher interface {
	Dispatch(ctx context.Context, user *task.User, text string) dispatch.Reply
}

// Deps are the collaborators the server reports on and routes to. Nil
// fields disable the matching check or endpoint.
type Deps struct {
	Store      Pinger
	Redis      Pinger
	Inference  Engines
	WhatsApp   http.Handler
	WebChat    http.Handler
	Users      Users
	Dispatcher Dispatcher
}

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	deps       Deps
	httpServer *http.Server
	handler    http.Handler
	startTime  time.Time
	log        *zerolog.Logger
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	Timestamp string                   `json:"timestamp"`
}

// ServiceHealth represents a service health status
type ServiceHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// StatusResponse represents the full system status
type StatusResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Store     string          `json:"store"`
	Lane      string          `json:"lane"`
	Channels  map[string]bool `json:"channels"`
	Timezone  string          `json:"timezone"`
	DebugAPI  bool            `json:"debug_api"`
	Timestamp string          `json:"timestamp"`
}

// EngineInfo for API response
type EngineInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	URL     string   `json:"url,omitempty"`
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

// DispatchRequest is the body of /api/v1/dispatch
type DispatchRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// DispatchResponse is the reply of /api/v1/dispatch
type DispatchResponse struct {
	Reply  string `json:"reply"`
	Branch string `json:"branch"`
}

// New creates a new HTTP server
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		startTime: time.Now(),
		log:       logging.WithComponent("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if deps.Inference != nil {
		mux.HandleFunc("/api/v1/inference/engines", s.listEnginesHandler)
	}
	if deps.WhatsApp != nil {
		mux.Handle("/webhook/whatsapp", deps.WhatsApp)
	}
	if deps.WebChat != nil {
		mux.Handle("/ws/chat", deps.WebChat)
	}
	if cfg.Server.DebugAPI && deps.Dispatcher != nil && deps.Users != nil {
		mux.HandleFunc("/api/v1/dispatch", s.dispatchHandler)
	}

	s.handler = instrument(mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		metrics.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// healthHandler handles health check requests. The store is the only
// dependency whose failure makes the bot unhealthy.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]ServiceHealth{
		"http": {Healthy: true, Message: "HTTP server running"},
	}
	status, code := "healthy", http.StatusOK

	if s.deps.Store != nil {
		services["store"] = check(ctx, s.deps.Store)
		if !services["store"].Healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	if s.deps.Redis != nil {
		services["redis"] = check(ctx, s.deps.Redis)
		if !services["redis"].Healthy && code == http.StatusOK {
			status = "degraded"
		}
	}
	if s.deps.Inference != nil {
		for name, err := range s.deps.Inference.Health(ctx) {
			sh := ServiceHealth{Healthy: err == nil}
			if err != nil {
				sh.Message = err.Error()
				if code == http.StatusOK {
					status = "degraded"
				}
			}
			services["inference:"+name] = sh
		}
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   Version,
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}

func check(ctx context.Context, p Pinger) ServiceHealth {
	if err := p.Ping(ctx); err != nil {
		return ServiceHealth{Healthy: false, Message: err.Error()}
	}
	return ServiceHealth{Healthy: true}
}

// statusHandler reports configuration-level status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lane := ""
	if s.deps.Inference != nil {
		lane = s.deps.Inference.DefaultLane()
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "running",
		Version: Version,
		Uptime:  time.Since(s.startTime).String(),
		Store:   s.cfg.Store.Driver,
		Lane:    lane,
		Channels: map[string]bool{
			"whatsapp": s.cfg.Channels.WhatsApp.Enabled,
			"telegram": s.cfg.Channels.Telegram.Enabled,
			"discord":  s.cfg.Channels.Discord.Enabled,
			"webchat":  s.cfg.Channels.WebChat.Enabled,
		},
		Timezone:  s.cfg.Dispatch.Timezone,
		DebugAPI:  s.cfg.Server.DebugAPI,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// listEnginesHandler lists available inference engines
func (s *Server) listEnginesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := []EngineInfo{}
	for _, e := range s.deps.Inference.ListEngines() {
		list = append(list, EngineInfo{
			Name:    e.Name,
			Type:    e.Type,
			URL:     e.URL,
			Models:  e.Models,
			Default: e.Default,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// dispatchHandler runs the dispatcher for a phone without a transport. It
// is mounted only with server.debug_api.
func (s *Server) dispatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	phone := channel.NormalizePhone(req.Phone)
	if phone == "" {
		http.Error(w, "phone required", http.StatusBadRequest)
		return
	}

	user, err := s.deps.Users.FindUserByPhone(r.Context(), phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error().Err(err).Str("from", phone).Msg("User lookup failed")
		http.Error(w, "user lookup failed", http.StatusBadGateway)
		return
	}

	reply := s.deps.Dispatcher.Dispatch(r.Context(), user, req.Text)
	writeJSON(w, http.StatusOK, DispatchResponse{Reply: reply.Text, Branch: reply.Branch})
}
