// Package format renders replies in Brazilian Portuguese with WhatsApp
// markup (*bold*, _italic_).
package format

import (
	"fmt"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/recurrence"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

var statusLabels = map[task.Status]string{
	task.StatusPending:       "⏳ Pendente",
	task.StatusDoing:         "▶️ Em Andamento",
	task.StatusCompleted:     "✅ Concluída",
	task.StatusWaitingClient: "⏸️ Aguardando Cliente",
	task.StatusWaitingTeam:   "⏸️ Aguardando Equipe",
}

// StatusLabel returns the emoji label for s. Empty means pending.
func StatusLabel(s task.Status) string {
	if s == "" {
		s = task.StatusPending
	}
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return "❓ Desconhecido"
}

var recurrenceLabels = map[task.RecurrenceType]string{
	task.RecurrenceDaily:   "🔁 Diária",
	task.RecurrenceWeekly:  "🔁 Semanal",
	task.RecurrenceMonthly: "🔁 Mensal",
	task.RecurrenceCustom:  "🔁 Personalizada",
}

// RecurrenceBadge returns the badge for a recurring task, or "".
func RecurrenceBadge(t *task.Task) string {
	if !t.IsRecurring() {
		return ""
	}
	if l, ok := recurrenceLabels[t.Recurrence.Type]; ok {
		return l
	}
	return "🔁 Recorrente"
}

// DisplayStatus is the status shown for t on date on. A recurring task
// completed for on shows as completed; the stored status is untouched.
func DisplayStatus(t *task.Task, on calendar.Date) task.Status {
	if t.IsRecurring() && !on.IsZero() && recurrence.IsCompletedOn(t, on) {
		return task.StatusCompleted
	}
	return t.EffectiveStatus()
}

// TaskLine renders one task. index is 1-based; 0 omits the prefix.
func TaskLine(t *task.Task, index int, on calendar.Date) string {
	var b strings.Builder
	if index > 0 {
		fmt.Fprintf(&b, "%d. ", index)
	}
	b.WriteString(t.Title)
	if c := t.DisplayClientName(); c != "" {
		b.WriteString(" | 👤 ")
		b.WriteString(c)
	}
	if t.EstimatedMinutes > 0 {
		fmt.Fprintf(&b, " | ⏱️ %dmin", t.EstimatedMinutes)
	}
	if badge := RecurrenceBadge(t); badge != "" {
		b.WriteString(" | ")
		b.WriteString(badge)
	}
	b.WriteString(" ")
	b.WriteString(StatusLabel(DisplayStatus(t, on)))
	return b.String()
}

// DateLabel names d relative to today: Hoje, Amanhã, Ontem or DD/MM/YYYY.
func DateLabel(d, today calendar.Date) string {
	switch {
	case d.IsZero():
		return "Sem data"
	case d == today:
		return "🔵 Hoje"
	case d == today.AddDays(1):
		return "🟢 Amanhã"
	case d == today.AddDays(-1):
		return "🔴 Ontem"
	}
	return d.BR()
}

var weekdays = [...]string{"Domingo", "Segunda-feira", "Terça-feira", "Quarta-feira", "Quinta-feira", "Sexta-feira", "Sábado"}

// Weekday returns the Portuguese weekday name of d.
func Weekday(d calendar.Date) string {
	return weekdays[d.Weekday()]
}

// DaysOverdue returns how many days d lies before today (0 if not past).
func DaysOverdue(d, today calendar.Date) int {
	if d.IsZero() || !d.Before(today) {
		return 0
	}
	return d.DaysUntil(today)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func writeLines(b *strings.Builder, tasks []task.Task, on calendar.Date) {
	for i := range tasks {
		b.WriteString(TaskLine(&tasks[i], i+1, on))
		b.WriteString("\n")
	}
}

// truncate cuts s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
