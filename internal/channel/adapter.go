package channel

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the payload type of an inbound message
type Kind string

const (
	KindText        Kind = "text"
	KindAudio       Kind = "audio"
	KindImage       Kind = "image"
	KindUnsupported Kind = "unsupported"
)

// Message represents a message from a channel
type Message struct {
	ID      string
	Channel string
	// SenderID is the channel-native address replies are sent to.
	SenderID string
	// Phone is the sender's number in +<digits> form, empty when the
	// channel could not tell.
	Phone string
	Kind  Kind
	Text  string
	// Media holds downloaded audio. Nil when the download failed.
	Media     []byte
	MediaMIME string
	Caption   string
	Timestamp time.Time
}

// Adapter is the interface for channel adapters
type Adapter interface {
	// Start starts the channel adapter
	Start(ctx context.Context) error

	// Stop stops the channel adapter and closes Incoming
	Stop() error

	// Send delivers text to the channel address to
	Send(ctx context.Context, to, text string) error

	// Incoming returns a channel of incoming messages
	Incoming() <-chan *Message

	// Name returns the name of the channel adapter
	Name() string

	// IsEnabled returns whether the channel is enabled
	IsEnabled() bool
}

// NormalizePhone turns a transport address such as "5511999990000",
// "5511999990000@s.whatsapp.net" or "+55 11 99999-0000" into "+5511999990000".
// It returns "" when the address has no digits.
func NormalizePhone(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

// PhoneDigits is the inverse of NormalizePhone for transports that address
// recipients by bare digits.
func PhoneDigits(phone string) string {
	return strings.TrimPrefix(NormalizePhone(phone), "+")
}

// Truncate cuts text to at most limit runes, marking the cut with "...".
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
