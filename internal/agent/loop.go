// Package agent runs the per-message pipeline between a channel adapter and
// the dispatcher: identity, payload kind, transcription, dispatch and reply.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/messaging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/metrics"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Users resolves a chat identity to a registered user.
type Users interface {
	FindUserByPhone(ctx context.Context, phone string) (*task.User, error)
}

// Dispatcher answers one text message.
type Dispatcher interface {
	Dispatch(ctx context.Context, user *task.User, text string) dispatch.Reply
}

// Transcriber turns a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Branches for replies decided before the dispatcher runs.
const (
	BranchTranscriptionFailed = "transcription_failed"
	BranchImageWithoutCaption = "image_without_caption"
	BranchUnsupported         = "unsupported"
)

// Drop reasons, used as the dropped-messages metric label.
const (
	DropDuplicate    = "duplicate"
	DropNoPhone      = "no_phone"
	DropUnregistered = "unregistered"
	DropLookupFailed = "lookup_failed"
	DropPanic        = "panic"
	DropEmptyText    = "empty_text"
)

// Options tune the loop. Zero values are usable.
type Options struct {
	// MaxConcurrent bounds messages processed at once. Defaults to 8.
	MaxConcurrent int
	// Deduper drops redelivered message IDs. Nil disables dedup.
	Deduper messaging.Deduper
	// Events receives one event per answered message. Nil disables it.
	Events messaging.EventSink
	// TranscribeTimeout bounds a transcription call. Defaults to 60s.
	TranscribeTimeout time.Duration
}

// AgentLoop processes inbound messages. It keeps no conversation state.
type AgentLoop struct {
	users       Users
	dispatcher  Dispatcher
	transcriber Transcriber
	deduper     messaging.Deduper
	events      messaging.EventSink
	transcribe  time.Duration
	sem         chan struct{}
	log         *zerolog.Logger
}

// NewAgentLoop builds a loop. transcriber may be nil, in which case voice
// notes get the transcription-failed reply.
func NewAgentLoop(users Users, dispatcher Dispatcher, transcriber Transcriber, opts Options) *AgentLoop {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = 60 * time.Second
	}
	return &AgentLoop{
		users:       users,
		dispatcher:  dispatcher,
		transcriber: transcriber,
		deduper:     opts.Deduper,
		events:      opts.Events,
		transcribe:  opts.TranscribeTimeout,
		sem:         make(chan struct{}, opts.MaxConcurrent),
		log:         logging.WithComponent("agent"),
	}
}

// Run consumes the adapter until its Incoming channel closes or ctx is
// done, then waits for in-flight messages.
func (a *AgentLoop) Run(ctx context.Context, adapter channel.Adapter) {
	var wg sync.WaitGroup
	defer wg.Wait()

	// In-flight messages finish their reply even after shutdown starts.
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-adapter.Incoming():
			if !ok {
				return
			}
			select {
			case a.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-a.sem }()
				metrics.InFlight.Inc()
				defer metrics.InFlight.Dec()
				a.Process(work, msg, adapter)
			}()
		}
	}
}

// Process handles one message and returns the reply it sent, or "" when
// the message was dropped. A panic is logged and nothing is sent.
func (a *AgentLoop) Process(ctx context.Context, msg *channel.Message, adapter channel.Adapter) (reply string) {
	start := time.Now()
	log := a.log.With().Str("channel", msg.Channel).Str("message_id", msg.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			metrics.DroppedMessages.WithLabelValues(DropPanic).Inc()
			log.Error().Interface("panic", r).Msg("Message processing panicked")
			reply = ""
		}
	}()

	metrics.MessagesReceived.WithLabelValues(msg.Channel, string(msg.Kind)).Inc()

	if !a.claim(ctx, msg, &log) {
		return ""
	}

	user := a.identify(ctx, msg, &log)
	if user == nil {
		return ""
	}
	log = log.With().Str("user_id", user.ID).Logger()

	text, fixed, branch := a.payload(ctx, msg, &log)
	switch {
	case fixed != "":
		reply = fixed
	case text == "":
		metrics.DroppedMessages.WithLabelValues(DropEmptyText).Inc()
		return ""
	default:
		r := a.dispatcher.Dispatch(ctx, user, text)
		reply, branch = r.Text, r.Branch
	}

	if err := adapter.Send(ctx, msg.SenderID, reply); err != nil {
		metrics.ReplyFailures.WithLabelValues(msg.Channel).Inc()
		log.Error().Err(err).Str("branch", branch).Msg("Reply not delivered")
	}

	a.record(ctx, msg, user, branch, time.Since(start), &log)
	return reply
}

// claim reports whether msg is new. Dedup errors let the message through.
func (a *AgentLoop) claim(ctx context.Context, msg *channel.Message, log *zerolog.Logger) bool {
	if a.deduper == nil || msg.ID == "" {
		return true
	}
	ok, err := a.deduper.Claim(ctx, msg.Channel+":"+msg.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Dedup check failed")
		return true
	}
	if !ok {
		metrics.DroppedMessages.WithLabelValues(DropDuplicate).Inc()
		log.Debug().Msg("Duplicate message ignored")
	}
	return ok
}

// identify resolves the sender. Unknown senders are dropped without a reply.
func (a *AgentLoop) identify(ctx context.Context, msg *channel.Message, log *zerolog.Logger) *task.User {
	phone := channel.NormalizePhone(msg.Phone)
	if phone == "" {
		metrics.DroppedMessages.WithLabelValues(DropNoPhone).Inc()
		log.Info().Str("sender", msg.SenderID).Msg("Message ignored: sender has no phone")
		return nil
	}

	user, err := a.users.FindUserByPhone(ctx, phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.DroppedMessages.WithLabelValues(DropUnregistered).Inc()
		log.Info().Str("from", phone).Msg("Message ignored: unregistered number")
		return nil
	case err != nil:
		metrics.DroppedMessages.WithLabelValues(DropLookupFailed).Inc()
		log.Error().Err(err).Str("from", phone).Msg("User lookup failed")
		return nil
	}
	return user
}

// payload returns the text to dispatch, or a fixed reply and its branch.
func (a *AgentLoop) payload(ctx context.Context, msg *channel.Message, log *zerolog.Logger) (text, fixed, branch string) {
	switch msg.Kind {
	case channel.KindText:
		return msg.Text, "", ""
	case channel.KindAudio:
		text, err := a.transcribeAudio(ctx, msg)
		if err != nil {
			log.Warn().Err(err).Msg("Transcription failed")
			return "", format.TranscriptionFailed, BranchTranscriptionFailed
		}
		log.Debug().Int("chars", len(text)).Msg("Audio transcribed")
		return text, "", ""
	case channel.KindImage:
		if caption := strings.TrimSpace(msg.Caption); caption != "" {
			return caption, "", ""
		}
		return "", format.ImageWithoutCaption, BranchImageWithoutCaption
	default:
		return "", format.Unsupported, BranchUnsupported
	}
}

var errNoAudio = errors.New("no audio to transcribe")

func (a *AgentLoop) transcribeAudio(ctx context.Context, msg *channel.Message) (string, error) {
	if a.transcriber == nil || len(msg.Media) == 0 {
		return "", errNoAudio
	}
	ctx, cancel := context.WithTimeout(ctx, a.transcribe)
	defer cancel()

	text, err := a.transcriber.Transcribe(ctx, msg.Media, msg.MediaMIME)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoAudio
	}
	return text, nil
}

func (a *AgentLoop) record(ctx context.Context, msg *channel.Message, user *task.User, branch string, took time.Duration, log *zerolog.Logger) {
	log.Info().Str("branch", branch).Dur("took", took).Msg("Message answered")
	if a.events == nil {
		return
	}
	err := a.events.Record(ctx, messaging.Event{
		MessageID: msg.ID,
		Channel:   msg.Channel,
		UserID:    user.ID,
		Kind:      string(msg.Kind),
		Branch:    branch,
		Latency:   took,
		At:        time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Recording message event failed")
	}
}
