package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

var today = calendar.MustParse("2025-12-10")

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "⏳ Pendente", StatusLabel(""))
	assert.Equal(t, "▶️ Em Andamento", StatusLabel(task.StatusDoing))
	assert.Equal(t, "⏸️ Aguardando Equipe", StatusLabel(task.StatusWaitingTeam))
	assert.Equal(t, "❓ Desconhecido", StatusLabel("archived"))
}

func TestTaskLine(t *testing.T) {
	tk := &task.Task{Title: "Relatório", ClientName: "Acme", EstimatedMinutes: 60, Status: task.StatusPending}
	assert.Equal(t, "1. Relatório | 👤 Acme | ⏱️ 60min ⏳ Pendente", TaskLine(tk, 1, today))
	assert.Equal(t, "Relatório | 👤 Acme | ⏱️ 60min ⏳ Pendente", TaskLine(tk, 0, today))

	bare := &task.Task{Title: "Email"}
	assert.Equal(t, "2. Email ⏳ Pendente", TaskLine(bare, 2, today))
}

func TestTaskLineRecurringOverride(t *testing.T) {
	tk := &task.Task{
		Title:      "Standup",
		Status:     task.StatusPending,
		Recurrence: &task.Recurrence{Type: task.RecurrenceDaily, Anchor: calendar.MustParse("2025-12-01")},
		Ledger:     task.NewLedger(today),
	}
	assert.Equal(t, "1. Standup | 🔁 Diária ✅ Concluída", TaskLine(tk, 1, today))
	assert.Equal(t, "1. Standup | 🔁 Diária ⏳ Pendente", TaskLine(tk, 1, today.AddDays(1)))
	assert.Equal(t, task.StatusPending, tk.Status, "display must not mutate the stored status")
}

func TestDateLabel(t *testing.T) {
	assert.Equal(t, "🔵 Hoje", DateLabel(today, today))
	assert.Equal(t, "🟢 Amanhã", DateLabel(today.AddDays(1), today))
	assert.Equal(t, "🔴 Ontem", DateLabel(today.AddDays(-1), today))
	assert.Equal(t, "25/12/2025", DateLabel(calendar.MustParse("2025-12-25"), today))
	assert.Equal(t, "Sem data", DateLabel(calendar.Date{}, today))
}

func TestDaysOverdue(t *testing.T) {
	assert.Equal(t, 3, DaysOverdue(calendar.MustParse("2025-12-07"), today))
	assert.Equal(t, 0, DaysOverdue(today, today))
	assert.Equal(t, 0, DaysOverdue(today.AddDays(2), today))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "45min", Duration(45))
	assert.Equal(t, "2h", Duration(120))
	assert.Equal(t, "1h30min", Duration(90))
}

func TestEmptyLists(t *testing.T) {
	assert.Equal(t, NoTasksToday, TodayList(nil, today))
	assert.Equal(t, NoPending, PendingList(nil, today))
	assert.Equal(t, NoInProgress, InProgressList(nil, today))
	assert.Equal(t, NoOverdue, OverdueList(nil, today))
	assert.Equal(t, NoRemaining, RemainingList(nil, today))
	assert.Equal(t, NoTasksTomorrow, TomorrowList(nil, today.AddDays(1)))
	assert.Equal(t, NoTasksNextWeek, NextWeekList([]Day{{Date: today.AddDays(1)}}, today))
	assert.Equal(t, "📭 Nenhuma atividade para 25/12/2025 (Quinta-feira).", DateList(nil, calendar.MustParse("2025-12-25"), today))
}

func TestTodayList(t *testing.T) {
	out := TodayList([]task.Task{
		{Title: "A", ClientName: "Acme", EstimatedMinutes: 30},
		{Title: "B", Status: task.StatusDoing},
	}, today)

	assert.True(t, strings.HasPrefix(out, "📅 *Suas atividades para hoje* (2)\n\n1. A | 👤 Acme | ⏱️ 30min ⏳ Pendente\n2. B ▶️ Em Andamento\n"))
	assert.Contains(t, out, `Use "resumo"`)
}

func TestPendingList(t *testing.T) {
	out := PendingList([]task.Task{
		{Title: "A", Date: calendar.MustParse("2025-12-20"), Status: task.StatusWaitingClient},
	}, today)
	assert.Equal(t, "⏳ *Atividades Pendentes* (1)\n\n1. A\n   📅 20/12/2025 ⏸️ Aguardando Cliente", out)
}

func TestOverdueList(t *testing.T) {
	out := OverdueList([]task.Task{
		{Title: "Old", Date: calendar.MustParse("2025-12-09")},
		{Title: "Older", Date: calendar.MustParse("2025-12-01")},
	}, today)
	assert.Contains(t, out, "🔴 *Atividades Vencidas* (2)")
	assert.Contains(t, out, "1. Old ⏳ Pendente\n   📅 09/12/2025 (1 dia de atraso)")
	assert.Contains(t, out, "2. Older ⏳ Pendente\n   📅 01/12/2025 (9 dias de atraso)")
}

func TestRemainingList(t *testing.T) {
	out := RemainingList([]task.Task{{Title: "A", EstimatedMinutes: 60}, {Title: "B", EstimatedMinutes: 30}}, today)
	assert.Contains(t, out, "(2)")
	assert.Contains(t, out, "Tempo estimado restante: 1h30min")
}

func TestNextWeekList(t *testing.T) {
	d1 := today.AddDays(1)
	d3 := today.AddDays(3)
	out := NextWeekList([]Day{
		{Date: d1, Tasks: []task.Task{{Title: "A"}}},
		{Date: today.AddDays(2)},
		{Date: d3, Tasks: []task.Task{{Title: "B"}, {Title: "C"}}},
	}, today)
	assert.Contains(t, out, "(3)")
	assert.Contains(t, out, "*Quinta-feira, 11/12/2025*\n• A ⏳ Pendente")
	assert.Contains(t, out, "*Sábado, 13/12/2025*\n• B ⏳ Pendente\n• C ⏳ Pendente")
	assert.NotContains(t, out, "12/12/2025")
}

func TestDateListForTodayUsesTodayRender(t *testing.T) {
	tasks := []task.Task{{Title: "A"}}
	assert.Equal(t, TodayList(tasks, today), DateList(tasks, today, today))
}

func TestClientMessages(t *testing.T) {
	clients := []task.Client{{ID: "c1", Name: "Acme"}, {ID: "c2", Name: "Zeta"}}

	out := ClientNotFound("Cliente XYZ", clients, []string{"Zeta"})
	assert.Contains(t, out, "Cliente *Cliente XYZ* não encontrado")
	assert.Contains(t, out, "Você quis dizer: *Zeta*?")
	assert.Contains(t, out, "• Acme\n• Zeta")

	assert.Contains(t, CreationGuidance(nil), "Nenhum cliente ativo cadastrado")
	assert.Contains(t, ClientsList(clients), "1. Acme\n2. Zeta")
}

func TestCompletionMessages(t *testing.T) {
	tk := &task.Task{Title: "Relatório", ClientName: "Acme"}
	assert.Contains(t, Completed(tk, today), "📝 Relatório\n👤 Acme")
	assert.Contains(t, AlreadyCompleted(tk), "já estava concluída")

	rec := &task.Task{Title: "Standup", Recurrence: &task.Recurrence{Type: task.RecurrenceWeekly}}
	assert.Contains(t, Completed(rec, today), "🔁 Semanal | concluída para 10/12/2025")

	assert.Contains(t, InvalidNumber(5, 3), "entre 1 e 3")
	assert.Contains(t, InvalidNumber(1, 0), "não tem atividades")
	assert.True(t, strings.HasPrefix(InvalidNumber(-1, 3), "⚠️ Número inválido. Escolha"))
	assert.Contains(t, InvalidDate("31/02"), "Data inválida: 31/02")
}

func TestCandidates(t *testing.T) {
	out := Candidates([]task.Task{{Title: "A", Date: today}}, today)
	assert.Contains(t, out, "1. A ⏳ Pendente\n   📅 🔵 Hoje")
}

func TestTaskCreated(t *testing.T) {
	tk := &task.Task{
		Title:            "Revisar contrato",
		ClientName:       "Acme",
		Date:             today.AddDays(1),
		EstimatedMinutes: 30,
		Description:      "cláusula 4",
	}
	out := TaskCreated(tk, today)
	assert.Equal(t, "✅ *Atividade criada com sucesso!*\n\n📝 Revisar contrato\n👤 Acme\n📅 🟢 Amanhã\n⏱️ 30min\n\n_cláusula 4_", out)
}

func TestDigest(t *testing.T) {
	assert.Equal(t,
		"🌅 *Bom dia, Ana!*\n\nVocê não tem atividades programadas para hoje. Aproveite! 🎉",
		Digest("Ana Souza", nil, today))

	out := Digest("Ana", []task.Task{{Title: "A"}}, today)
	assert.True(t, strings.HasPrefix(out, "🌅 *Bom dia, Ana! Suas atividades para hoje*\n\nTotal: 1 atividade\n\n1. A ⏳ Pendente\n"))
	assert.Contains(t, out, "💪 Vamos começar o dia com produtividade!")

	assert.Contains(t, Digest("", nil, today), "*Bom dia!*")
}

func TestSummaryAndAnswer(t *testing.T) {
	assert.Equal(t, "🤖 *Resumo Inteligente do Seu Dia*\n\nFoco.", Summary(" Foco. "))
	assert.Equal(t, "🤖 Sim.", Answer("Sim.\n"))
	assert.Contains(t, Help(), "Comandos Disponíveis do Finance Cal Hub Bot")
}
