package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Confidence is the resolver's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Resolution names the task a completion request refers to.
type Resolution struct {
	TaskID     string     `json:"activityId"`
	Confidence Confidence `json:"confidence"`
}

// CompletionResolver picks, from a candidate pool, the task a descriptive
// completion request ("concluí o relatório da Acme") refers to.
type CompletionResolver struct {
	base
}

// NewCompletionResolver builds a resolver over p.
func NewCompletionResolver(p Provider, opts ...Option) *CompletionResolver {
	return &CompletionResolver{base: newBase(p, "resolver", opts)}
}

// Resolve returns nil when the pool is empty (without calling the
// provider), when the model names no task, or when it reports no
// confidence. Membership of the returned ID in candidates is the caller's
// check.
func (r *CompletionResolver) Resolve(ctx context.Context, text string, candidates []task.Task) (*Resolution, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	lines := make([]string, len(candidates))
	for i := range candidates {
		lines[i] = CandidateLine(i+1, &candidates[i])
	}
	data := struct {
		Message    string
		Candidates string
	}{text, strings.Join(lines, "\n")}

	out, err := r.complete(ctx, "resolve", data)
	if err != nil {
		return nil, err
	}

	raw, err := ExtractJSON(out)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	var res Resolution
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("resolve: decode resolution: %w", err)
	}
	res.TaskID = strings.TrimSpace(res.TaskID)
	res.Confidence = Confidence(strings.ToLower(strings.TrimSpace(string(res.Confidence))))
	if res.TaskID == "" || res.Confidence == ConfidenceNone {
		return nil, nil
	}
	return &res, nil
}

// CandidateLine renders one task for the resolver prompt.
func CandidateLine(n int, t *task.Task) string {
	client := t.DisplayClientName()
	if client == "" {
		client = "N/A"
	}
	return fmt.Sprintf("%d. ID: %s | Título: %s | Cliente: %s | Data: %s | Status: %s",
		n, t.ID, t.Title, client, t.Date, t.EffectiveStatus())
}
