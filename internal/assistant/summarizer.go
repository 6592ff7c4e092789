package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// ErrEmptyAnswer is returned when the provider answers with blank text.
var ErrEmptyAnswer = errors.New("empty completion")

// NoTasksContext is handed to the answerer when the user has nothing today.
const NoTasksContext = "Nenhuma atividade para hoje"

// Summarizer writes a short natural-language overview of a task list.
type Summarizer struct {
	base
}

// NewSummarizer builds a summarizer over p.
func NewSummarizer(p Provider, opts ...Option) *Summarizer {
	return &Summarizer{base: newBase(p, "summarizer", opts)}
}

// Summarize returns the provider's summary of tasks.
func (s *Summarizer) Summarize(ctx context.Context, tasks []task.Task) (string, error) {
	lines := make([]string, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		client := t.DisplayClientName()
		if client == "" {
			client = "Sem cliente"
		}
		lines[i] = fmt.Sprintf("%d. %s - %s - Status: %s - Estimativa: %dmin",
			i+1, t.Title, client, t.EffectiveStatus(), t.EstimatedMinutes)
	}

	out, err := s.complete(ctx, "summarize", struct{ Activities string }{strings.Join(lines, "\n")})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("summarize: %w", ErrEmptyAnswer)
	}
	return out, nil
}

// Answerer replies to free-form questions using today's tasks as context.
type Answerer struct {
	base
}

// NewAnswerer builds an answerer over p.
func NewAnswerer(p Provider, opts ...Option) *Answerer {
	return &Answerer{base: newBase(p, "answerer", opts)}
}

// Answer returns the provider's answer to question.
func (a *Answerer) Answer(ctx context.Context, question string, tasks []task.Task) (string, error) {
	listing := NoTasksContext
	if len(tasks) > 0 {
		lines := make([]string, len(tasks))
		for i := range tasks {
			t := &tasks[i]
			client := t.DisplayClientName()
			if client == "" {
				client = "N/A"
			}
			lines[i] = fmt.Sprintf("%d. %s - Cliente: %s - Status: %s - Tempo estimado: %dmin",
				i+1, t.Title, client, t.EffectiveStatus(), t.EstimatedMinutes)
		}
		listing = strings.Join(lines, "\n")
	}

	data := struct {
		Question string
		Context  string
	}{question, listing}

	out, err := a.complete(ctx, "answer", data)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("answer: %w", ErrEmptyAnswer)
	}
	return out, nil
}
