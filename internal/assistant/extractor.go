package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// ErrIncomplete is returned when the extracted draft lacks a title or a
// client name.
var ErrIncomplete = errors.New("extracted task is missing title or client")

// minutes decodes a JSON number or numeric string.
type minutes int

func (m *minutes) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// "30min" and friends are treated as absent.
		*m = 0
		return nil
	}
	*m = minutes(math.Round(f))
	return nil
}

type draftPayload struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	ClientName        string  `json:"clientName"`
	EstimatedDuration minutes `json:"estimatedDuration"`
	Date              string  `json:"date"`
}

// Extractor turns a free-text creation request into a task.Draft.
type Extractor struct {
	base
}

// NewExtractor builds an extractor over p.
func NewExtractor(p Provider, opts ...Option) *Extractor {
	return &Extractor{base: newBase(p, "extractor", opts)}
}

// Extract asks the provider for the draft fields. clientNames is the list of
// valid clients offered to the model. The returned draft has no ClientID;
// the caller resolves ClientName against the store.
func (e *Extractor) Extract(ctx context.Context, text string, clientNames []string) (*task.Draft, error) {
	lines := make([]string, len(clientNames))
	for i, name := range clientNames {
		lines[i] = fmt.Sprintf("%d. %s", i+1, name)
	}
	data := struct {
		dates
		Message string
		Clients string
	}{e.dates(), text, strings.Join(lines, "\n")}

	out, err := e.complete(ctx, "extract", data)
	if err != nil {
		return nil, err
	}
	return e.parseDraft(out)
}

func (e *Extractor) parseDraft(out string) (*task.Draft, error) {
	raw, err := ExtractJSON(out)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	var p draftPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("extract: decode draft: %w", err)
	}

	d := &task.Draft{
		Title:            strings.TrimSpace(p.Title),
		Description:      strings.TrimSpace(p.Description),
		ClientName:       strings.TrimSpace(p.ClientName),
		EstimatedMinutes: int(p.EstimatedDuration),
	}
	if d.Title == "" || d.ClientName == "" {
		return nil, ErrIncomplete
	}
	if d.EstimatedMinutes <= 0 {
		d.EstimatedMinutes = task.DefaultEstimateMinutes
	}

	d.Date = e.today()
	if p.Date != "" {
		if parsed, err := calendar.Parse(strings.TrimSpace(p.Date)); err == nil {
			d.Date = parsed
		} else {
			e.log.Debug().Str("date", p.Date).Msg("Unparseable draft date, using today")
		}
	}
	return d, nil
}
