package dispatch

import (
	"context"

	"github.com/sahilm/fuzzy"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/matcher"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

const maxClientSuggestions = 3

// create treats text as a task description. The task is only created when
// the extracted client is one of the active clients.
func (d *Dispatcher) create(ctx context.Context, user *task.User, text string, today calendar.Date) Reply {
	clients, err := d.repo.ListActiveClients(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("Listing clients for creation failed")
		return Reply{Text: format.CreationFailed, Branch: BranchCreationFailed}
	}
	if len(clients) == 0 || d.extractor == nil {
		return Reply{Text: format.CreationGuidance(clients), Branch: BranchCreationGuidance}
	}

	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.Name
	}

	lctx, cancel := d.llmContext(ctx)
	draft, err := d.extractor.Extract(lctx, text, names)
	cancel()
	if err != nil || draft == nil {
		d.log.Info().Err(err).Str("user_id", user.ID).Msg("No task extracted")
		return Reply{Text: format.CreationGuidance(clients), Branch: BranchCreationGuidance}
	}

	client, ok := findClient(clients, draft.ClientName)
	if !ok {
		return Reply{
			Text:   format.ClientNotFound(draft.ClientName, clients, suggestClients(clients, draft.ClientName)),
			Branch: BranchClientNotFound,
		}
	}
	draft.ClientID = client.ID
	draft.ClientName = client.Name
	if draft.Date.IsZero() {
		draft.Date = today
	}
	if draft.EstimatedMinutes <= 0 {
		draft.EstimatedMinutes = task.DefaultEstimateMinutes
	}

	created, err := d.repo.CreateTask(ctx, user.ID, *draft)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", user.ID).Msg("Creating task failed")
		return Reply{Text: format.CreationFailed, Branch: BranchCreationFailed}
	}
	d.log.Info().Str("task_id", created.ID).Str("client", client.Name).Msg("Task created")
	return Reply{Text: format.TaskCreated(created, today), Branch: BranchCreate}
}

// findClient matches name case- and accent-insensitively.
func findClient(clients []task.Client, name string) (task.Client, bool) {
	want := matcher.Fold(name)
	if want == "" {
		return task.Client{}, false
	}
	for _, c := range clients {
		if matcher.Fold(c.Name) == want {
			return c, true
		}
	}
	return task.Client{}, false
}

// clientSource adapts clients to fuzzy.Source.
type clientSource []task.Client

func (s clientSource) String(i int) string { return matcher.Fold(s[i].Name) }
func (s clientSource) Len() int            { return len(s) }

// suggestClients returns up to three client names close to name: names
// that contain it as a subsequence ("acm" → "Acme Ltda") first, then names
// it contains ("cliente acme" → "Acme").
func suggestClients(clients []task.Client, name string) []string {
	want := matcher.Fold(name)
	if want == "" {
		return nil
	}

	var out []string
	seen := make(map[int]bool)
	add := func(i int) {
		if !seen[i] && len(out) < maxClientSuggestions {
			seen[i] = true
			out = append(out, clients[i].Name)
		}
	}

	for _, m := range fuzzy.FindFrom(want, clientSource(clients)) {
		add(m.Index)
	}
	for i, c := range clients {
		if len(fuzzy.Find(matcher.Fold(c.Name), []string{want})) > 0 {
			add(i)
		}
	}
	return out
}
