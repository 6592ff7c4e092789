// Package whatsapp receives and sends messages through the WhatsApp Cloud
// API. Inbound events arrive on a webhook served by the HTTP server;
// outbound text goes to the Graph API messages endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	maxMessageLen  = 4096
	maxMediaBytes  = 16 << 20
)

// ═══════════════════════════════════════════════════════════════════════════════
// WEBHOOK PAYLOAD
// ═══════════════════════════════════════════════════════════════════════════════

type webhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string           `json:"messaging_product"`
				Messages         []inboundMessage `json:"messages,omitempty"`
				Statuses         []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"statuses,omitempty"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Audio *mediaRef `json:"audio,omitempty"`
	Image *mediaRef `json:"image,omitempty"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ADAPTER
// ═══════════════════════════════════════════════════════════════════════════════

// Adapter is the WhatsApp Cloud API channel.
type Adapter struct {
	cfg      config.WhatsAppConfig
	baseURL  string
	client   *http.Client
	incoming chan *channel.Message
	log      *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	closed bool
	wg     sync.WaitGroup
}

var _ channel.Adapter = (*Adapter)(nil)

// New creates the adapter. It does nothing until Start and the webhook
// handler is mounted.
func New(cfg config.WhatsAppConfig) *Adapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v21.0"
	}
	return &Adapter{
		cfg:      cfg,
		baseURL:  base,
		client:   &http.Client{Timeout: 15 * time.Second},
		incoming: make(chan *channel.Message, 100),
		log:      logging.WithComponent("whatsapp"),
		ctx:      context.Background(),
	}
}

func (a *Adapter) Name() string {
	return "whatsapp"
}

func (a *Adapter) IsEnabled() bool {
	return a.cfg.Enabled && a.cfg.AccessToken != "" && a.cfg.PhoneNumberID != ""
}

// Start binds webhook processing to ctx. Events received before Start are
// processed under a background context.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	a.log.Info().Str("phone_number_id", a.cfg.PhoneNumberID).Msg("WhatsApp adapter started")
	return nil
}

// Stop waits for in-flight webhook processing and closes Incoming.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	close(a.incoming)
	return nil
}

func (a *Adapter) Incoming() <-chan *channel.Message {
	return a.incoming
}

// ServeHTTP handles the webhook: GET answers the verification challenge,
// POST carries events.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleVerification(w, r)
	case http.MethodPost:
		a.handleEvents(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Adapter) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && a.cfg.VerifyToken != "" && token == a.cfg.VerifyToken {
		a.log.Info().Msg("Webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	a.log.Warn().Str("mode", mode).Msg("Webhook verification failed")
	http.Error(w, "forbidden", http.StatusForbidden)
}

func (a *Adapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.log.Error().Err(err).Msg("Reading webhook body failed")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	if !VerifySignature(a.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		a.log.Warn().Msg("Webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var hook webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		a.log.Error().Err(err).Msg("Parsing webhook failed")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Cloud API retries anything that is not acknowledged quickly.
	w.WriteHeader(http.StatusOK)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.process(ctx, &hook)
	}()
}

func (a *Adapter) process(ctx context.Context, hook *webhook) {
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				msg := a.convert(ctx, &change.Value.Messages[i])
				select {
				case a.incoming <- msg:
				case <-ctx.Done():
					return
				}
			}
			if n := len(change.Value.Statuses); n > 0 {
				a.log.Debug().Int("count", n).Msg("Ignoring status updates")
			}
		}
	}
}

// convert maps a Cloud API message to a channel message, downloading audio.
func (a *Adapter) convert(ctx context.Context, in *inboundMessage) *channel.Message {
	msg := &channel.Message{
		ID:        in.ID,
		Channel:   a.Name(),
		SenderID:  in.From,
		Phone:     channel.NormalizePhone(in.From),
		Timestamp: parseTimestamp(in.Timestamp),
	}

	switch {
	case in.Type == "text" && in.Text != nil:
		msg.Kind = channel.KindText
		msg.Text = in.Text.Body
	case in.Type == "audio" && in.Audio != nil:
		msg.Kind = channel.KindAudio
		msg.MediaMIME = in.Audio.MimeType
		data, mime, err := a.DownloadMedia(ctx, in.Audio.ID)
		if err != nil {
			a.log.Warn().Err(err).Str("message_id", in.ID).Msg("Audio download failed")
			break
		}
		msg.Media = data
		if mime != "" {
			msg.MediaMIME = mime
		}
	case in.Type == "image" && in.Image != nil:
		msg.Kind = channel.KindImage
		msg.Caption = in.Image.Caption
		msg.MediaMIME = in.Image.MimeType
	default:
		msg.Kind = channel.KindUnsupported
	}
	return msg
}

func parseTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}

// ═══════════════════════════════════════════════════════════════════════════════
// GRAPH API
// ═══════════════════════════════════════════════════════════════════════════════

// Send delivers a text message to the number to (digits, with or without
// "+"). Text longer than the API limit is truncated.
func (a *Adapter) Send(ctx context.Context, to, text string) error {
	if text == "" {
		return nil
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                channel.PhoneDigits(to),
		"type":              "text",
		"text": map[string]string{
			"body": channel.Truncate(text, maxMessageLen),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", a.baseURL, a.cfg.APIVersion, a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp: HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	a.log.Debug().Int("status", resp.StatusCode).Msg("Message sent")
	return nil
}

// DownloadMedia resolves a media ID to its URL and fetches the bytes.
func (a *Adapter) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if mediaID == "" {
		return nil, "", fmt.Errorf("whatsapp: empty media id")
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	metaURL := fmt.Sprintf("%s/%s/%s", a.baseURL, a.cfg.APIVersion, mediaID)
	raw, err := a.get(ctx, metaURL)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media lookup: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, "", fmt.Errorf("whatsapp: decode media lookup: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("whatsapp: media %s has no url", mediaID)
	}

	data, err := a.get(ctx, meta.URL)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media download: %w", err)
	}
	return data, meta.MimeType, nil
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
}

// VerifySignature checks the X-Hub-Signature-256 header against the app
// secret. An empty secret disables the check.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}
