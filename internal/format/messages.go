package format

import (
	"fmt"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Help lists the available commands.
func Help() string {
	return `📱 *Comandos Disponíveis do Finance Cal Hub Bot*

*Consultas:*
• ` + "`hoje`" + ` ou ` + "`atividades`" + ` - Lista suas atividades de hoje
• ` + "`amanhã`" + ` - Atividades de amanhã
• ` + "`15/12`" + ` - Atividades de uma data específica
• ` + "`próxima semana`" + ` - Atividades dos próximos 7 dias
• ` + "`pendentes`" + ` - Mostra todas as tarefas pendentes
• ` + "`fazendo`" + ` ou ` + "`andamento`" + ` - Atividades em andamento
• ` + "`vencidas`" + ` - Atividades atrasadas
• ` + "`o que falta`" + ` - O que ainda falta fazer hoje
• ` + "`clientes`" + ` - Lista os clientes ativos
• ` + "`resumo`" + ` - Resumo inteligente do dia com IA

*Tarefas:*
• ` + "`concluir 2`" + ` - Conclui a atividade 2 da lista de hoje
• ` + "`concluí o relatório da Acme`" + ` - Conclui pela descrição
• Descreva uma tarefa para criá-la, ex: "Revisar contrato da Acme amanhã, 30 min"

*Perguntas:*
• Digite qualquer pergunta sobre suas atividades
• Ex: "Quanto tempo vou levar hoje?"
• Ex: "Qual minha próxima tarefa?"

*Comandos:*
• ` + "`ajuda`" + ` ou ` + "`help`" + ` - Mostra esta mensagem

💡 _Todas as respostas são personalizadas para você!_`
}

// Summary wraps an LLM summary.
func Summary(text string) string {
	return "🤖 *Resumo Inteligente do Seu Dia*\n\n" + strings.TrimSpace(text)
}

// SummaryFailed is sent when the summary provider fails.
const SummaryFailed = "❌ Erro ao gerar resumo inteligente. Tente \"hoje\" para ver a lista completa."

// Answer wraps a free-form LLM answer.
func Answer(text string) string {
	return "🤖 " + strings.TrimSpace(text)
}

// AnswerFailed is sent when the question provider fails.
const AnswerFailed = "❌ Desculpe, não consegui processar sua pergunta no momento."

// TaskCreated confirms a new task.
func TaskCreated(t *task.Task, today calendar.Date) string {
	var b strings.Builder
	b.WriteString("✅ *Atividade criada com sucesso!*\n\n")
	fmt.Fprintf(&b, "📝 %s\n", t.Title)
	if c := t.DisplayClientName(); c != "" {
		fmt.Fprintf(&b, "👤 %s\n", c)
	}
	fmt.Fprintf(&b, "📅 %s\n", DateLabel(t.Date, today))
	if t.EstimatedMinutes > 0 {
		fmt.Fprintf(&b, "⏱️ %s\n", Duration(t.EstimatedMinutes))
	}
	if d := strings.TrimSpace(task.StripLedger(t.Description)); d != "" {
		fmt.Fprintf(&b, "\n_%s_", truncate(d, 200))
	}
	return strings.TrimRight(b.String(), "\n")
}

// CreationGuidance is sent when a creation request could not be understood.
func CreationGuidance(clients []task.Client) string {
	var b strings.Builder
	b.WriteString("🤔 Não entendi sua mensagem.\n\n")
	b.WriteString("Para criar uma atividade, informe o que precisa ser feito e para qual cliente.\n")
	b.WriteString("Ex: \"Revisar contrato da Acme amanhã, 30 min\"\n")
	writeClientOptions(&b, clients)
	b.WriteString("\n\n💡 _Use \"ajuda\" para ver os comandos disponíveis_")
	return b.String()
}

// ClientNotFound is sent when the extracted client is not an active client.
// suggestions are close matches, best first.
func ClientNotFound(name string, clients []task.Client, suggestions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Cliente *%s* não encontrado. A atividade não foi criada.\n", name)
	if len(suggestions) > 0 {
		fmt.Fprintf(&b, "\nVocê quis dizer: *%s*?\n", strings.Join(suggestions, "*, *"))
	}
	writeClientOptions(&b, clients)
	b.WriteString("\n\n💡 _Envie a mensagem novamente com o nome do cliente correto_")
	return b.String()
}

func writeClientOptions(b *strings.Builder, clients []task.Client) {
	if len(clients) == 0 {
		b.WriteString("\n📭 Nenhum cliente ativo cadastrado. Peça a um administrador para cadastrar clientes.")
		return
	}
	b.WriteString("\n👥 *Clientes disponíveis:*\n")
	for i, c := range clients {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "• %s", c.Name)
	}
}

// Completed confirms a completion.
func Completed(t *task.Task, on calendar.Date) string {
	if t.IsRecurring() {
		return fmt.Sprintf("✅ *Atividade concluída!*\n\n📝 %s\n%s | concluída para %s", t.Title, RecurrenceBadge(t), on.BR())
	}
	msg := fmt.Sprintf("✅ *Atividade concluída!*\n\n📝 %s", t.Title)
	if c := t.DisplayClientName(); c != "" {
		msg += "\n👤 " + c
	}
	return msg + "\n\n🎉 Bom trabalho!"
}

// AlreadyCompleted is sent when the target was already done.
func AlreadyCompleted(t *task.Task) string {
	return fmt.Sprintf("ℹ️ A atividade *%s* já estava concluída.", t.Title)
}

// CompletionFailed is sent when the store rejects a completion.
const CompletionFailed = "❌ Não consegui concluir a atividade agora. Tente novamente em instantes."

// CreationFailed is sent when the store rejects a new task.
const CreationFailed = "❌ Não consegui criar a atividade agora. Tente novamente em instantes."

// QueryFailed is sent when a read query fails at the store.
const QueryFailed = "❌ Não consegui consultar suas atividades agora. Tente novamente em instantes."

// InvalidNumber is sent for an out-of-range numeric completion.
func InvalidNumber(n, size int) string {
	head := "⚠️ Número inválido"
	if n >= 0 {
		head = fmt.Sprintf("⚠️ Número inválido: %d", n)
	}
	if size == 0 {
		return head + ". Você não tem atividades para hoje."
	}
	return fmt.Sprintf("%s. Escolha um número entre 1 e %d.\n\n💡 _Use \"hoje\" para ver a lista numerada_", head, size)
}

// InvalidDate is sent for a date token that is not a real calendar date.
func InvalidDate(raw string) string {
	return fmt.Sprintf("⚠️ Data inválida: %s. Use o formato DD/MM ou DD/MM/AAAA.", raw)
}

// Candidates lists open tasks when a descriptive completion could not be
// resolved.
func Candidates(tasks []task.Task, today calendar.Date) string {
	if len(tasks) == 0 {
		return "🔍 Você não tem atividades em aberto para concluir."
	}
	var b strings.Builder
	b.WriteString("🤔 Não consegui identificar qual atividade você quer concluir.\n\n")
	b.WriteString("*Suas atividades em aberto:*\n")
	for i := range tasks {
		t := &tasks[i]
		fmt.Fprintf(&b, "%s\n   📅 %s\n", TaskLine(t, i+1, today), DateLabel(t.Date, today))
	}
	b.WriteString("\n💡 _Use \"hoje\" e depois \"concluir N\", ou descreva a atividade com mais detalhes_")
	return b.String()
}

// Payload replies for non-text messages.
const (
	TranscriptionFailed = "🎤 *Áudio recebido!*\n\n⚠️ Não consegui transcrever seu áudio.\n\n💡 Tente novamente ou envie sua mensagem por texto."
	ImageWithoutCaption = "🖼️ *Imagem recebida!*\n\n⚠️ A análise de imagens ainda está em desenvolvimento.\n\n💡 Você pode adicionar uma legenda à imagem descrevendo a tarefa!\n\n_Em breve: extração automática de texto e tarefas de imagens!_"
	Unsupported         = "❓ *Tipo de mensagem não suportado*\n\nNo momento, suporto:\n• 📝 Mensagens de texto\n• 🎤 Áudios\n• 🖼️ Imagens com legenda\n\nUse \"ajuda\" para ver os comandos disponíveis!"
)

// Digest renders the morning message for one user.
func Digest(name string, tasks []task.Task, today calendar.Date) string {
	greeting := "Bom dia"
	if f := strings.Fields(name); len(f) > 0 {
		greeting += ", " + f[0]
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("🌅 *%s!*\n\nVocê não tem atividades programadas para hoje. Aproveite! 🎉", greeting)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 *%s! Suas atividades para hoje*\n\n", greeting)
	fmt.Fprintf(&b, "Total: %d %s\n\n", len(tasks), plural(len(tasks), "atividade", "atividades"))
	writeLines(&b, tasks, today)
	b.WriteString("\n💪 Vamos começar o dia com produtividade!")
	b.WriteString(summaryHint)
	return b.String()
}
