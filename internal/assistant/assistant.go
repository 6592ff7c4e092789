// Package assistant holds the LLM-backed helpers the dispatcher falls back
// to: intent classification, task extraction, completion resolution,
// summaries and free-form answers.
//
// Every helper talks to a Provider and treats any provider or parse failure
// as "no result"; callers decide how to degrade.
package assistant

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
)

// Provider completes a single prompt. inference.Router implements it.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrNoJSON is returned when a completion carries no JSON object.
var ErrNoJSON = errors.New("no JSON object in completion")

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Option configures a helper.
type Option func(*base)

// WithClock sets the timezone and clock used to compute "today".
func WithClock(loc *time.Location, now func() time.Time) Option {
	return func(b *base) {
		if loc != nil {
			b.loc = loc
		}
		if now != nil {
			b.now = now
		}
	}
}

// base is shared by every helper.
type base struct {
	provider Provider
	loc      *time.Location
	now      func() time.Time
	log      *zerolog.Logger
}

func newBase(p Provider, component string, opts []Option) base {
	b := base{
		provider: p,
		loc:      time.UTC,
		now:      time.Now,
		log:      logging.WithComponent(component),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) today() calendar.Date {
	return calendar.Of(b.now().In(b.loc))
}

// dates is the today/tomorrow header several prompts share.
type dates struct {
	TodayBR     string
	TodayISO    string
	TomorrowBR  string
	TomorrowISO string
}

func (b *base) dates() dates {
	today := b.today()
	tomorrow := today.AddDays(1)
	return dates{
		TodayBR:     today.BR(),
		TodayISO:    today.String(),
		TomorrowBR:  tomorrow.BR(),
		TomorrowISO: tomorrow.String(),
	}
}

// complete renders the named prompt and sends it to the provider.
func (b *base) complete(ctx context.Context, name string, data any) (string, error) {
	prompt, err := render(name, data)
	if err != nil {
		return "", err
	}
	out, err := b.provider.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ExtractJSON pulls the first JSON object out of a completion, tolerating
// markdown fences and surrounding prose.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
		if last := strings.LastIndex(s, "```"); last >= 0 {
			s = s[:last]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
