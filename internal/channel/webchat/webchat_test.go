package webchat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
)

func newTestServer(t *testing.T) (*WebChatAdapter, *httptest.Server) {
	t.Helper()
	a := NewWebChatAdapter(config.WebChatConfig{Enabled: true, Token: "secret"})
	srv := httptest.NewServer(a)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Stop()
	})
	return a, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestRoundTrip(t *testing.T) {
	a, srv := newTestServer(t)
	ws := dial(t, srv, "phone=5511999990000&token=secret")

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "message", Content: "hoje"}))

	var msg *channel.Message
	select {
	case msg = <-a.Incoming():
	case <-time.After(2 * time.Second):
		t.Fatal("no incoming message")
	}
	assert.Equal(t, "+5511999990000", msg.Phone)
	assert.Equal(t, "+5511999990000", msg.SenderID)
	assert.Equal(t, channel.KindText, msg.Kind)
	assert.Equal(t, "hoje", msg.Text)
	assert.NotEmpty(t, msg.ID)

	require.NoError(t, a.Send(context.Background(), msg.SenderID, "Nenhuma tarefa para hoje"))
	var reply WSMessage
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "Nenhuma tarefa para hoje", reply.Content)
}

func TestRejectsBadTokenAndMissingPhone(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/chat?phone=5511999990000&token=wrong")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws/chat?token=secret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendWithoutConnection(t *testing.T) {
	a := NewWebChatAdapter(config.WebChatConfig{Enabled: true, Token: "secret"})
	assert.ErrorIs(t, a.Send(context.Background(), "+5511999990000", "oi"), ErrNotConnected)
	assert.NoError(t, a.Send(context.Background(), "+5511999990000", ""))
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
}

func TestIsEnabled(t *testing.T) {
	assert.True(t, NewWebChatAdapter(config.WebChatConfig{Enabled: true, Token: "x"}).IsEnabled())
	assert.False(t, NewWebChatAdapter(config.WebChatConfig{Enabled: true}).IsEnabled())
}
