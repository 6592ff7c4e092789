// Package webchat is a websocket chat channel served by the main HTTP
// server. A connection speaks for the phone it was opened with.
package webchat

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
)

// ErrNotConnected is returned by Send when the phone has no open socket.
var ErrNotConnected = errors.New("webchat: no connection for recipient")

type WebChatAdapter struct {
	cfg      config.WebChatConfig
	incoming chan *channel.Message
	upgrader websocket.Upgrader
	conns    map[string]*conn
	connMux  sync.RWMutex
	log      *zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

var _ channel.Adapter = (*WebChatAdapter)(nil)

func NewWebChatAdapter(cfg config.WebChatConfig) *WebChatAdapter {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	return &WebChatAdapter{
		cfg:      cfg,
		incoming: make(chan *channel.Message, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
		conns: make(map[string]*conn),
		done:  make(chan struct{}),
		log:   logging.WithComponent("webchat"),
	}
}

func (w *WebChatAdapter) Name() string {
	return "webchat"
}

func (w *WebChatAdapter) IsEnabled() bool {
	return w.cfg.Enabled && w.cfg.Token != ""
}

// Start is a no-op; connections arrive through ServeHTTP.
func (w *WebChatAdapter) Start(ctx context.Context) error {
	return nil
}

// Stop closes every socket, waits for readers and closes Incoming.
func (w *WebChatAdapter) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.connMux.Lock()
	for _, c := range w.conns {
		_ = c.ws.Close()
	}
	w.connMux.Unlock()

	w.wg.Wait()
	close(w.incoming)
	return nil
}

// Send writes a reply to the socket opened for phone to.
func (w *WebChatAdapter) Send(ctx context.Context, to, text string) error {
	if text == "" {
		return nil
	}
	w.connMux.RLock()
	c, exists := w.conns[to]
	w.connMux.RUnlock()
	if !exists {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return c.ws.WriteJSON(WSMessage{Type: "message", Content: text})
}

func (w *WebChatAdapter) Incoming() <-chan *channel.Message {
	return w.incoming
}

// ServeHTTP upgrades /ws/chat?phone=...&token=... to a chat socket.
func (w *WebChatAdapter) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if subtle.ConstantTimeCompare([]byte(q.Get("token")), []byte(w.cfg.Token)) != 1 || w.cfg.Token == "" {
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}
	phone := channel.NormalizePhone(q.Get("phone"))
	if phone == "" {
		http.Error(rw, "phone required", http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		http.Error(rw, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &conn{ws: ws}

	w.connMux.Lock()
	if old, ok := w.conns[phone]; ok {
		_ = old.ws.Close()
	}
	w.conns[phone] = c
	w.connMux.Unlock()

	defer func() {
		w.connMux.Lock()
		if w.conns[phone] == c {
			delete(w.conns, phone)
		}
		w.connMux.Unlock()
		_ = ws.Close()
	}()

	w.log.Info().Str("from", phone).Msg("WebChat connected")
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Debug().Err(err).Str("from", phone).Msg("WebSocket read ended")
			}
			return
		}
		if msg.Type != "message" {
			continue
		}

		id := msg.ID
		if id == "" {
			id = uuid.NewString()
		}
		select {
		case w.incoming <- &channel.Message{
			ID:        id,
			Channel:   "webchat",
			SenderID:  phone,
			Phone:     phone,
			Kind:      channel.KindText,
			Text:      msg.Content,
			Timestamp: time.Now(),
		}:
		case <-w.done:
			return
		}
	}
}
