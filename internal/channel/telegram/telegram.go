package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
)

const (
	maxMessageLen = 4096
	maxVoiceBytes = 16 << 20
)

// TelegramAdapter is a secondary chat channel. Telegram does not expose the
// sender's phone, so a chat is only linked to a user after it shares its
// own contact or when the config maps the chat ID.
type TelegramAdapter struct {
	cfg      config.TelegramConfig
	bot      *tgbotapi.BotAPI
	incoming chan *channel.Message
	client   *http.Client
	log      *zerolog.Logger

	// fileURL resolves a file ID to a download URL.
	fileURL func(fileID string) (string, error)

	mu     sync.RWMutex
	phones map[string]string

	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ channel.Adapter = (*TelegramAdapter)(nil)

func NewTelegramAdapter(cfg config.TelegramConfig) *TelegramAdapter {
	phones := make(map[string]string, len(cfg.Phones))
	for chatID, phone := range cfg.Phones {
		phones[chatID] = channel.NormalizePhone(phone)
	}
	return &TelegramAdapter{
		cfg:      cfg,
		incoming: make(chan *channel.Message, 100),
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logging.WithComponent("telegram"),
		phones:   phones,
	}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) IsEnabled() bool {
	return t.cfg.Enabled && t.cfg.Token != ""
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	t.bot = bot
	t.fileURL = bot.GetFileDirectURL

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				msg := t.convert(ctx, update.Message)
				if msg == nil {
					continue
				}
				select {
				case t.incoming <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	t.log.Info().Str("bot", bot.Self.UserName).Msg("Telegram adapter started")
	return nil
}

func (t *TelegramAdapter) Stop() error {
	t.stopOnce.Do(func() {
		if t.bot != nil {
			t.bot.StopReceivingUpdates()
		}
		t.wg.Wait()
		close(t.incoming)
	})
	return nil
}

// Send delivers text to a chat ID.
func (t *TelegramAdapter) Send(ctx context.Context, to, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.bot == nil {
		return fmt.Errorf("telegram: adapter not started")
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", to, err)
	}
	reply := tgbotapi.NewMessage(chatID, channel.Truncate(text, maxMessageLen))
	if _, err := t.bot.Send(reply); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (t *TelegramAdapter) Incoming() <-chan *channel.Message {
	return t.incoming
}

// convert maps an update message. It returns nil for contact shares, which
// only link the chat to a phone.
func (t *TelegramAdapter) convert(ctx context.Context, m *tgbotapi.Message) *channel.Message {
	if m.Chat == nil {
		return nil
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)

	if m.Contact != nil {
		if m.From != nil && m.Contact.UserID == m.From.ID {
			t.linkPhone(chatID, m.Contact.PhoneNumber)
		}
		return nil
	}

	msg := &channel.Message{
		ID:        strconv.Itoa(m.MessageID),
		Channel:   t.Name(),
		SenderID:  chatID,
		Phone:     t.phoneFor(chatID),
		Timestamp: m.Time(),
	}

	switch {
	case m.Text != "":
		msg.Kind = channel.KindText
		msg.Text = m.Text
	case m.Voice != nil:
		msg.Kind = channel.KindAudio
		msg.MediaMIME = m.Voice.MimeType
		msg.Media = t.download(ctx, m.Voice.FileID)
	case m.Audio != nil:
		msg.Kind = channel.KindAudio
		msg.MediaMIME = m.Audio.MimeType
		msg.Media = t.download(ctx, m.Audio.FileID)
	case len(m.Photo) > 0:
		msg.Kind = channel.KindImage
		msg.Caption = m.Caption
		msg.MediaMIME = "image/jpeg"
	default:
		msg.Kind = channel.KindUnsupported
	}
	if msg.Kind == channel.KindAudio && msg.MediaMIME == "" {
		msg.MediaMIME = "audio/ogg"
	}
	return msg
}

func (t *TelegramAdapter) linkPhone(chatID, phone string) {
	normalized := channel.NormalizePhone(phone)
	if normalized == "" {
		return
	}
	t.mu.Lock()
	t.phones[chatID] = normalized
	t.mu.Unlock()
	t.log.Info().Str("chat_id", chatID).Msg("Chat linked to phone")
}

func (t *TelegramAdapter) phoneFor(chatID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phones[chatID]
}

// download fetches a voice note. Failures leave the message without media.
func (t *TelegramAdapter) download(ctx context.Context, fileID string) []byte {
	if t.fileURL == nil {
		return nil
	}
	url, err := t.fileURL(fileID)
	if err != nil {
		t.log.Warn().Err(err).Msg("Resolving voice file failed")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("Voice download failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		t.log.Warn().Int("status", resp.StatusCode).Msg("Voice download failed")
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
	if err != nil {
		return nil
	}
	return data
}
