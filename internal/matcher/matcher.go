// Package matcher maps chat text to a command category with an ordered list
// of Portuguese rules. It is pure and does no I/O.
package matcher

import (
	"regexp"
	"strconv"
	"strings"
)

// Category is the command a message was recognised as.
type Category int

const (
	None Category = iota
	Today
	Tomorrow
	Pending
	InProgress
	Overdue
	Remaining
	Summary
	Help
	ListClients
	NextWeek
	ExplicitDate
	NumericCompletion
	DescriptiveCompletion
)

var categoryNames = map[Category]string{
	None:                  "none",
	Today:                 "today",
	Tomorrow:              "tomorrow",
	Pending:               "pending",
	InProgress:            "in_progress",
	Overdue:               "overdue",
	Remaining:             "remaining",
	Summary:               "summary",
	Help:                  "help",
	ListClients:           "list_clients",
	NextWeek:              "next_week",
	ExplicitDate:          "explicit_date",
	NumericCompletion:     "numeric_completion",
	DescriptiveCompletion: "descriptive_completion",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "unknown"
}

// IsQuery reports whether c is one of the read-only query categories.
func (c Category) IsQuery() bool {
	return c >= Today && c <= NextWeek
}

// Result is the outcome of a successful rule.
type Result struct {
	Category Category
	// Date is the raw DD/MM[/year] token for ExplicitDate. The year is
	// kept whatever its length; validation happens downstream.
	Date string
	// Index is the 1-based task number for NumericCompletion, or -1 when
	// the number overflows.
	Index int
	// Remainder is the free text after the verb for DescriptiveCompletion,
	// with the original accents kept.
	Remainder string
}

// rule recognises one query category on folded text.
type rule struct {
	category Category
	exact    map[string]bool
	match    func(f *folded) bool
}

// folded is the accent-free view of one message.
type folded struct {
	text  string
	words []string
	set   map[string]bool
}

func newFolded(raw string) *folded {
	text := Fold(raw)
	if trimmed := strings.TrimRight(text, "?!.,; "); trimmed != "" {
		text = trimmed
	}
	words := strings.Fields(text)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.Trim(w, "?!.,;:")] = true
	}
	return &folded{text: text, words: words, set: seen}
}

func (f *folded) has(words ...string) bool {
	for _, w := range words {
		if f.set[w] {
			return true
		}
	}
	return false
}

func (f *folded) contains(phrases ...string) bool {
	padded := " " + f.text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

var (
	activityNouns = []string{"atividades", "atividade", "tarefas", "tarefa", "demandas", "agenda", "compromissos"}
	agendaVerbs   = []string{"tenho", "fazer", "programado", "programada", "programadas"}
	createVerbs   = []string{
		"criar", "cria", "crie", "adicionar", "adiciona", "adicione", "nova", "novo",
		"agendar", "agende", "cadastrar", "cadastre", "registrar", "registre",
		"incluir", "inclua", "lembrar", "lembre", "anotar", "anota", "anote",
	}
	completeVerbs = []string{
		"concluir", "concluida", "concluido", "conclui", "finalizar", "finalizada",
		"finalizado", "finalizei", "completar", "completei", "terminei", "feito", "feita",
		"pronto", "pronta", "ok",
	}
)

// queryFillers may surround a bare hoje/amanha without turning it into a
// task title.
var queryFillers = set("o", "que", "de", "do", "quais", "qual", "minhas", "meus", "e", "pra", "para", "ai", "sobre")

// onlyFiller reports whether every word other than keyword is filler, so
// "e pra hoje?" is a query while "pagar boleto hoje" is not.
func (f *folded) onlyFiller(keyword string) bool {
	for w := range f.set {
		if w != keyword && !queryFillers[w] {
			return false
		}
	}
	return true
}

// queryish guards the paraphrase rules against creation and completion
// requests that mention the same nouns.
func (f *folded) queryish() bool {
	return len(f.words) <= 10 && !f.has(createVerbs...) && !f.has(completeVerbs...)
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	summaryRe     = regexp.MustCompile(`^(?:me\s+)?(?:da|de|manda|mande|envia|envie|faz|faca|gera|gere|quero)(?:\s+(?:um|o|meu))?\s+resumo(?:\s+(?:do dia|de hoje|das atividades|das tarefas))?$`)
	listClientsRe = regexp.MustCompile(`^(?:(?:quais|qual)\s+(?:sao\s+)?(?:os\s+)?(?:meus\s+)?clientes|(?:lista|listar|liste|mostrar|mostra|mostre|ver)\s+(?:de\s+|os\s+|meus\s+)?clientes)(?:\s+(?:cadastrados|ativos|disponiveis))?$`)
	dateRe        = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d+))?\b`)
	numericRe     = regexp.MustCompile(`^(?:(?:ja|eu)\s+)?(?:marcar\s+(?:como\s+)?)?(?:concluir|concluida|concluido|finalizar|finalizada|finalizado|completar|feito|feita|pronto|pronta|ok)\s+(?:(?:a|o|tarefa|atividade|numero|n|no|n\.|nº)\s+)*(?:#|n\.?|nº)?\s*(\d+)$`)
	descriptiveRe = regexp.MustCompile(`^(?:(?:ja|eu)\s+)?(?:marcar\s+(?:como\s+)?)?(?:concluir|concluida|concluido|conclui|finalizar|finalizada|finalizado|finalizei|completar|completei|terminei|feito|feita|pronto|pronta)\s+(.+)$`)
	bareIntRe     = regexp.MustCompile(`^\d+$`)
)

// rules is the ordered query rule list; first match wins.
var rules = []rule{
	{
		category: Help,
		exact:    set("ajuda", "help", "menu", "comandos", "?", "/ajuda", "/help", "/start", "socorro"),
	},
	{
		category: Summary,
		exact:    set("resumo", "resumo do dia", "resumo de hoje", "resumir"),
		match:    func(f *folded) bool { return summaryRe.MatchString(f.text) },
	},
	{
		category: ListClients,
		exact:    set("clientes", "lista de clientes", "listar clientes", "meus clientes"),
		match:    func(f *folded) bool { return listClientsRe.MatchString(f.text) },
	},
	{
		category: Remaining,
		exact:    set("restantes", "restante", "falta", "o que falta", "o que ainda falta", "o que falta hoje"),
		match: func(f *folded) bool {
			return f.queryish() && (f.has("restantes", "restante", "faltam") || f.contains("o que falta", "o que ainda falta", "que falta"))
		},
	},
	{
		category: Pending,
		exact:    set("pendentes", "pendente", "em aberto"),
		match: func(f *folded) bool {
			return f.queryish() && (f.has("pendentes", "pendente") || f.contains("em aberto"))
		},
	},
	{
		category: InProgress,
		exact:    set("fazendo", "andamento", "em andamento"),
		match: func(f *folded) bool {
			return f.queryish() && (f.has("andamento") || f.contains("estou fazendo", "to fazendo"))
		},
	},
	{
		category: Overdue,
		exact:    set("vencidas", "vencida", "atrasadas", "atrasados", "atrasada"),
		match: func(f *folded) bool {
			return f.queryish() && f.has("vencidas", "vencida", "vencidos", "atrasadas", "atrasada", "atrasados", "atrasado")
		},
	},
	{
		category: NextWeek,
		exact:    set("proxima semana", "semana que vem"),
		match: func(f *folded) bool {
			return f.queryish() && f.contains("proxima semana", "semana que vem")
		},
	},
	{
		category: Tomorrow,
		exact:    set("amanha", "atividades de amanha", "tarefas de amanha"),
		match: func(f *folded) bool {
			return f.queryish() && f.has("amanha") && !f.contains("depois de amanha") &&
				(f.has(activityNouns...) || f.has(agendaVerbs...) || f.onlyFiller("amanha"))
		},
	},
	{
		category: Today,
		exact: set("hoje", "atividades", "tarefas", "minhas atividades", "minhas tarefas",
			"atividades de hoje", "tarefas de hoje", "agenda", "agenda de hoje"),
		match: func(f *folded) bool {
			return f.queryish() && f.has("hoje") &&
				(f.has(activityNouns...) || f.has(agendaVerbs...) || f.onlyFiller("hoje"))
		},
	},
}

// Match classifies text. It returns false when no rule applies.
func Match(text string) (Result, bool) {
	f := newFolded(text)
	if f.text == "" {
		return Result{}, false
	}

	for _, r := range rules {
		if r.exact[f.text] || (r.match != nil && r.match(f)) {
			return Result{Category: r.category}, true
		}
	}

	// A date inside a creation request belongs to the new task.
	if m := dateRe.FindString(f.text); m != "" && !f.has(createVerbs...) {
		return Result{Category: ExplicitDate, Date: m}, true
	}

	if sm := numericRe.FindStringSubmatch(f.text); sm != nil {
		n, err := strconv.Atoi(sm[1])
		if err != nil {
			// too large for an int; no list is ever that long
			n = -1
		}
		return Result{Category: NumericCompletion, Index: n}, true
	}

	if sm := descriptiveRe.FindStringSubmatch(f.text); sm != nil {
		rest := trimFiller(sm[1])
		if rest != "" && !bareIntRe.MatchString(rest) {
			return Result{Category: DescriptiveCompletion, Remainder: tailWords(text, len(strings.Fields(rest)))}, true
		}
	}

	return Result{}, false
}

// trimFiller drops leading articles and nouns between the verb and the
// description.
func trimFiller(s string) string {
	words := strings.Fields(s)
	fillers := set("a", "o", "as", "os", "tarefa", "atividade", "de", "da", "do", "como", "concluida", "que")
	for len(words) > 0 && fillers[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// tailWords returns the last n words of the normalized (accented) text.
// Folding never changes the word count, so positions line up.
func tailWords(raw string, n int) string {
	words := strings.Fields(Normalize(raw))
	if n > len(words) {
		n = len(words)
	}
	out := strings.Join(words[len(words)-n:], " ")
	return strings.TrimRight(out, "?!.,; ")
}
