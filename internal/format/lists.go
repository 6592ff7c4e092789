package format

import (
	"fmt"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

const summaryHint = "\n💡 _Use \"resumo\" para ver um resumo inteligente_"

// Empty-result messages.
const (
	NoTasksToday      = "🎉 Você não tem atividades para hoje! Aproveite seu dia livre."
	NoTasksTomorrow   = "🎉 Você não tem atividades para amanhã!"
	NoPending         = "✅ Parabéns! Você não tem atividades pendentes."
	NoInProgress      = "🔍 Nenhuma atividade em andamento no momento."
	NoOverdue         = "✅ Nenhuma atividade vencida. Tudo em dia!"
	NoRemaining       = "🎉 Você já concluiu todas as atividades de hoje!"
	NoTasksNextWeek   = "📭 Nenhuma atividade programada para a próxima semana."
	NoTasksForSummary = "🎉 Você não tem atividades para hoje! Dia livre para relaxar."
)

// TodayList renders the TODAY list. The numbering is the one numeric
// completion indexes into.
func TodayList(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return NoTasksToday
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Suas atividades para hoje* (%d)\n\n", len(tasks))
	writeLines(&b, tasks, today)
	b.WriteString(summaryHint)
	b.WriteString("\n✔️ _Use \"concluir N\" para marcar uma atividade como concluída_")
	return b.String()
}

// TomorrowList renders tomorrow's tasks.
func TomorrowList(tasks []task.Task, tomorrow calendar.Date) string {
	if len(tasks) == 0 {
		return NoTasksTomorrow
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 *Suas atividades para amanhã* (%d)\n📅 %s, %s\n\n", len(tasks), Weekday(tomorrow), tomorrow.BR())
	writeLines(&b, tasks, tomorrow)
	return strings.TrimRight(b.String(), "\n")
}

// DateList renders the tasks of an explicit date.
func DateList(tasks []task.Task, date, today calendar.Date) string {
	if date == today {
		return TodayList(tasks, today)
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("📭 Nenhuma atividade para %s (%s).", date.BR(), Weekday(date))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Atividades de %s* (%d)\n%s\n\n", date.BR(), len(tasks), Weekday(date))
	writeLines(&b, tasks, date)
	return strings.TrimRight(b.String(), "\n")
}

// PendingList renders open pending tasks with their dates.
func PendingList(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return NoPending
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ *Atividades Pendentes* (%d)\n\n", len(tasks))
	for i := range tasks {
		t := &tasks[i]
		fmt.Fprintf(&b, "%d. %s", i+1, t.Title)
		if c := t.DisplayClientName(); c != "" {
			fmt.Fprintf(&b, " | 👤 %s", c)
		}
		fmt.Fprintf(&b, "\n   📅 %s %s\n", DateLabel(t.Date, today), StatusLabel(t.EffectiveStatus()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// InProgressList renders tasks with status doing.
func InProgressList(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return NoInProgress
	}
	var b strings.Builder
	fmt.Fprintf(&b, "▶️ *Atividades em Andamento* (%d)\n\n", len(tasks))
	writeLines(&b, tasks, today)
	return strings.TrimRight(b.String(), "\n")
}

// OverdueList renders open tasks dated before today with days late.
func OverdueList(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return NoOverdue
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔴 *Atividades Vencidas* (%d)\n\n", len(tasks))
	for i := range tasks {
		t := &tasks[i]
		days := DaysOverdue(t.Date, today)
		b.WriteString(TaskLine(t, i+1, today))
		fmt.Fprintf(&b, "\n   📅 %s (%d %s de atraso)\n", t.Date.BR(), days, plural(days, "dia", "dias"))
	}
	b.WriteString("\n⚠️ _Atualize as datas ou conclua essas atividades_")
	return b.String()
}

// RemainingList renders today's tasks still open for today.
func RemainingList(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return NoRemaining
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📝 *Atividades restantes para hoje* (%d)\n\n", len(tasks))
	writeLines(&b, tasks, today)
	total := 0
	for i := range tasks {
		total += tasks[i].EstimatedMinutes
	}
	if total > 0 {
		fmt.Fprintf(&b, "\n⏱️ Tempo estimado restante: %s", Duration(total))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Day groups the tasks of one date for multi-day views.
type Day struct {
	Date  calendar.Date
	Tasks []task.Task
}

// NextWeekList renders a seven-day view, skipping empty days.
func NextWeekList(days []Day, today calendar.Date) string {
	total := 0
	for _, d := range days {
		total += len(d.Tasks)
	}
	if total == 0 {
		return NoTasksNextWeek
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🗓️ *Atividades da próxima semana* (%d)\n", total)
	for _, d := range days {
		if len(d.Tasks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n*%s, %s*\n", Weekday(d.Date), d.Date.BR())
		for i := range d.Tasks {
			b.WriteString("• ")
			b.WriteString(TaskLine(&d.Tasks[i], 0, d.Date))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Duration renders minutes as "1h30min", "2h" or "45min".
func Duration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dmin", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%02dmin", h, m)
}

// ClientsList renders the active clients.
func ClientsList(clients []task.Client) string {
	if len(clients) == 0 {
		return "📭 Nenhum cliente ativo cadastrado."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *Clientes Ativos* (%d)\n\n", len(clients))
	for i, c := range clients {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Name)
	}
	b.WriteString("\n💡 _Mencione o cliente ao criar uma tarefa_")
	return b.String()
}
