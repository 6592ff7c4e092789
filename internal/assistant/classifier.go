package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the coarse intent the classifier assigns to a message.
type Kind string

const (
	KindQuery      Kind = "query"
	KindCreateTask Kind = "create_task"
	KindUpdateTask Kind = "update_task"
	KindSummary    Kind = "summary"
	KindQuestion   Kind = "question"
)

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindQuery, KindCreateTask, KindUpdateTask, KindSummary, KindQuestion:
		return true
	}
	return false
}

// Periods the classifier may return in Filters.Period.
const (
	PeriodToday      = "today"
	PeriodTomorrow   = "tomorrow"
	PeriodNextWeek   = "next_week"
	PeriodPending    = "pending"
	PeriodInProgress = "in_progress"
	PeriodOverdue    = "overdue"
	PeriodRemaining  = "remaining"
)

// Filters narrows a query intent.
type Filters struct {
	Date   string `json:"date,omitempty"`
	Period string `json:"period,omitempty"`
	Client string `json:"client,omitempty"`
}

// Intent is the classifier's structured reading of a message.
type Intent struct {
	Kind      Kind    `json:"intent"`
	Action    string  `json:"action"`
	Filters   Filters `json:"filters"`
	Operation string  `json:"operation,omitempty"`
}

// intentPayload accepts "period" both inside filters and at the top level.
type intentPayload struct {
	Intent    string   `json:"intent"`
	Action    string   `json:"action"`
	Filters   *Filters `json:"filters"`
	Operation string   `json:"operation"`
	Period    string   `json:"period"`
}

// Classifier maps free text to an Intent.
type Classifier struct {
	base
}

// NewClassifier builds a classifier over p.
func NewClassifier(p Provider, opts ...Option) *Classifier {
	return &Classifier{base: newBase(p, "classifier", opts)}
}

// Classify returns the message intent. Any provider failure, unparseable
// payload or unknown kind yields a nil intent and an error.
func (c *Classifier) Classify(ctx context.Context, text string) (*Intent, error) {
	data := struct {
		dates
		Message string
	}{c.dates(), text}

	out, err := c.complete(ctx, "classify", data)
	if err != nil {
		return nil, err
	}
	return parseIntent(out)
}

func parseIntent(out string) (*Intent, error) {
	raw, err := ExtractJSON(out)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	var p intentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("classify: decode intent: %w", err)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(p.Intent)))
	if !kind.Valid() {
		return nil, fmt.Errorf("classify: unknown intent %q", p.Intent)
	}
	if strings.TrimSpace(p.Action) == "" {
		return nil, fmt.Errorf("classify: intent %s without action", kind)
	}

	in := &Intent{
		Kind:      kind,
		Action:    strings.TrimSpace(p.Action),
		Operation: strings.TrimSpace(p.Operation),
	}
	if p.Filters != nil {
		in.Filters = Filters{
			Date:   strings.TrimSpace(p.Filters.Date),
			Period: strings.ToLower(strings.TrimSpace(p.Filters.Period)),
			Client: strings.TrimSpace(p.Filters.Client),
		}
	}
	if in.Filters.Period == "" {
		in.Filters.Period = strings.ToLower(strings.TrimSpace(p.Period))
	}
	return in, nil
}
