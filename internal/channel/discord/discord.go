// Package discord is a Discord DM channel. Discord users carry no phone,
// so each user ID is mapped to a registered phone in config.
package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
)

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

type DiscordAdapter struct {
	cfg      config.DiscordConfig
	session  *discordgo.Session
	incoming chan *channel.Message
	phones   map[string]string
	client   *http.Client
	log      *zerolog.Logger

	ctx      context.Context
	stopOnce sync.Once
}

var _ channel.Adapter = (*DiscordAdapter)(nil)

func NewDiscordAdapter(cfg config.DiscordConfig) *DiscordAdapter {
	phones := make(map[string]string, len(cfg.Phones))
	for userID, phone := range cfg.Phones {
		phones[userID] = channel.NormalizePhone(phone)
	}
	return &DiscordAdapter{
		cfg:      cfg,
		incoming: make(chan *channel.Message, 100),
		phones:   phones,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logging.WithComponent("discord"),
		ctx:      context.Background(),
	}
}

func (d *DiscordAdapter) Name() string {
	return "discord"
}

func (d *DiscordAdapter) IsEnabled() bool {
	return d.cfg.Enabled && d.cfg.Token != ""
}

func (d *DiscordAdapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	d.session = session
	d.ctx = ctx

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if s.State == nil || s.State.User == nil {
			return
		}
		msg := d.convert(d.ctx, m.Message, s.State.User.ID)
		if msg == nil {
			return
		}
		select {
		case d.incoming <- msg:
		case <-d.ctx.Done():
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return nil
}

func (d *DiscordAdapter) Stop() error {
	d.stopOnce.Do(func() {
		if d.session != nil {
			_ = d.session.Close()
		}
		close(d.incoming)
	})
	return nil
}

// Send opens (or reuses) the DM channel with user to and posts text.
func (d *DiscordAdapter) Send(ctx context.Context, to, text string) error {
	if text == "" {
		return nil
	}
	if d.session == nil {
		return fmt.Errorf("discord adapter not started")
	}
	dm, err := d.session.UserChannelCreate(to, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", to, err)
	}
	if _, err := d.session.ChannelMessageSend(dm.ID, channel.Truncate(text, maxMessageLen), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

func (d *DiscordAdapter) Incoming() <-chan *channel.Message {
	return d.incoming
}

// convert maps a Discord message to a channel message. Bot authors and
// guild messages that do not mention the bot are ignored.
func (d *DiscordAdapter) convert(ctx context.Context, m *discordgo.Message, botID string) *channel.Message {
	if m == nil || m.Author == nil || m.Author.Bot {
		return nil
	}
	if m.GuildID != "" && !isMentioned(botID, m.Mentions) {
		return nil
	}

	text := strings.TrimSpace(strings.ReplaceAll(m.Content, "<@"+botID+">", ""))
	msg := &channel.Message{
		ID:        m.ID,
		Channel:   "discord",
		SenderID:  m.Author.ID,
		Phone:     d.phones[m.Author.ID],
		Kind:      channel.KindText,
		Text:      text,
		Timestamp: m.Timestamp,
	}

	if len(m.Attachments) == 0 {
		if text == "" {
			msg.Kind = channel.KindUnsupported
		}
		return msg
	}

	att := m.Attachments[0]
	switch {
	case strings.HasPrefix(att.ContentType, "audio/"):
		msg.Kind = channel.KindAudio
		msg.Text = ""
		msg.MediaMIME = att.ContentType
		msg.Media = d.download(ctx, att.URL)
	case strings.HasPrefix(att.ContentType, "image/"):
		msg.Kind = channel.KindImage
		msg.Text = ""
		msg.Caption = text
	default:
		msg.Kind = channel.KindUnsupported
	}
	return msg
}

func (d *DiscordAdapter) download(ctx context.Context, url string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn().Err(err).Msg("Attachment download failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		d.log.Warn().Int("status", resp.StatusCode).Msg("Attachment download failed")
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return nil
	}
	return data
}

func isMentioned(botID string, mentions []*discordgo.User) bool {
	for _, mention := range mentions {
		if mention.ID == botID {
			return true
		}
	}
	return false
}
