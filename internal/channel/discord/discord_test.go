package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
)

const botID = "bot-1"

func newAdapter() *DiscordAdapter {
	return NewDiscordAdapter(config.DiscordConfig{
		Enabled: true,
		Token:   "t",
		Phones:  map[string]string{"42": "55 11 99999-0000"},
	})
}

func TestConvertDirectMessage(t *testing.T) {
	d := newAdapter()
	msg := d.convert(context.Background(), &discordgo.Message{
		ID:      "m1",
		Author:  &discordgo.User{ID: "42"},
		Content: "hoje",
	}, botID)

	require.NotNil(t, msg)
	assert.Equal(t, "+5511999990000", msg.Phone)
	assert.Equal(t, "42", msg.SenderID)
	assert.Equal(t, channel.KindText, msg.Kind)
	assert.Equal(t, "hoje", msg.Text)
}

func TestConvertIgnoresBotsAndUnmentionedGuildMessages(t *testing.T) {
	d := newAdapter()
	assert.Nil(t, d.convert(context.Background(), &discordgo.Message{Author: &discordgo.User{ID: "7", Bot: true}, Content: "x"}, botID))
	assert.Nil(t, d.convert(context.Background(), &discordgo.Message{GuildID: "g", Author: &discordgo.User{ID: "42"}, Content: "hoje"}, botID))

	msg := d.convert(context.Background(), &discordgo.Message{
		GuildID:  "g",
		Author:   &discordgo.User{ID: "42"},
		Content:  "<@bot-1> pendentes",
		Mentions: []*discordgo.User{{ID: botID}},
	}, botID)
	require.NotNil(t, msg)
	assert.Equal(t, "pendentes", msg.Text)
}

func TestConvertUnknownUserHasNoPhone(t *testing.T) {
	msg := newAdapter().convert(context.Background(), &discordgo.Message{Author: &discordgo.User{ID: "99"}, Content: "hoje"}, botID)
	require.NotNil(t, msg)
	assert.Empty(t, msg.Phone)
}

func TestConvertAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ogg-bytes"))
	}))
	defer srv.Close()

	d := newAdapter()
	audio := d.convert(context.Background(), &discordgo.Message{
		Author:      &discordgo.User{ID: "42"},
		Attachments: []*discordgo.MessageAttachment{{URL: srv.URL + "/a.ogg", ContentType: "audio/ogg"}},
	}, botID)
	require.NotNil(t, audio)
	assert.Equal(t, channel.KindAudio, audio.Kind)
	assert.Equal(t, []byte("ogg-bytes"), audio.Media)
	assert.Equal(t, "audio/ogg", audio.MediaMIME)

	image := d.convert(context.Background(), &discordgo.Message{
		Author:      &discordgo.User{ID: "42"},
		Content:     "atrasadas",
		Attachments: []*discordgo.MessageAttachment{{URL: srv.URL + "/p.png", ContentType: "image/png"}},
	}, botID)
	assert.Equal(t, channel.KindImage, image.Kind)
	assert.Equal(t, "atrasadas", image.Caption)

	file := d.convert(context.Background(), &discordgo.Message{
		Author:      &discordgo.User{ID: "42"},
		Attachments: []*discordgo.MessageAttachment{{URL: srv.URL + "/f.pdf", ContentType: "application/pdf"}},
	}, botID)
	assert.Equal(t, channel.KindUnsupported, file.Kind)
}

func TestSendBeforeStart(t *testing.T) {
	d := newAdapter()
	assert.Error(t, d.Send(context.Background(), "42", "oi"))
	assert.NoError(t, d.Send(context.Background(), "42", ""))
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
}

func TestIsEnabled(t *testing.T) {
	assert.True(t, newAdapter().IsEnabled())
	assert.False(t, NewDiscordAdapter(config.DiscordConfig{Enabled: true}).IsEnabled())
}
