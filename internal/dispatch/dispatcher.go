// Package dispatch turns one inbound chat text into exactly one reply.
//
// Resolution follows a fixed precedence and stops at the first branch that
// applies:
//
//  1. pattern-matched read-only queries
//  2. an explicit DD/MM[/YYYY] date
//  3. numeric completion against today's list
//  4. descriptive completion through the completion resolver
//  5. the LLM intent classifier
//  6. task creation through the extractor
//
// The Dispatcher keeps no per-user state and is safe for concurrent use.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/assistant"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/matcher"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/metrics"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Classifier reads the intent of text the pattern matcher did not catch.
type Classifier interface {
	Classify(ctx context.Context, text string) (*assistant.Intent, error)
}

// Extractor turns a creation request into a draft.
type Extractor interface {
	Extract(ctx context.Context, text string, clientNames []string) (*task.Draft, error)
}

// Resolver picks the task a descriptive completion refers to.
type Resolver interface {
	Resolve(ctx context.Context, text string, candidates []task.Task) (*assistant.Resolution, error)
}

// Summarizer writes a summary of a task list.
type Summarizer interface {
	Summarize(ctx context.Context, tasks []task.Task) (string, error)
}

// Answerer answers a free-form question about a task list.
type Answerer interface {
	Answer(ctx context.Context, question string, tasks []task.Task) (string, error)
}

// Deps are the collaborators the dispatcher drives.
type Deps struct {
	Repo       store.Repository
	Classifier Classifier
	Extractor  Extractor
	Resolver   Resolver
	Summarizer Summarizer
	Answerer   Answerer
}

// Options tune the dispatcher.
type Options struct {
	// Location defines "today". Defaults to UTC.
	Location *time.Location
	// LLMTimeout bounds every classifier, extractor, resolver, summary and
	// answer call. Zero disables the bound.
	LLMTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Reply is the dispatcher's answer to one message.
type Reply struct {
	Text   string
	Branch string
}

// Terminal branch names, also used as the dispatch metric label.
const (
	BranchEmpty             = "empty"
	BranchToday             = "today"
	BranchTomorrow          = "tomorrow"
	BranchPending           = "pending"
	BranchInProgress        = "in_progress"
	BranchOverdue           = "overdue"
	BranchRemaining         = "remaining"
	BranchNextWeek          = "next_week"
	BranchDate              = "date"
	BranchInvalidDate       = "invalid_date"
	BranchSummary           = "summary"
	BranchHelp              = "help"
	BranchClients           = "clients"
	BranchQuestion          = "question"
	BranchComplete          = "complete"
	BranchAlreadyCompleted  = "already_completed"
	BranchInvalidNumber     = "invalid_number"
	BranchCandidates        = "candidates"
	BranchCompletionFailed  = "completion_failed"
	BranchCreate            = "create"
	BranchClientNotFound    = "client_not_found"
	BranchCreationGuidance  = "creation_guidance"
	BranchCreationFailed    = "creation_failed"
	BranchQueryFailed       = "query_failed"
)

// Dispatcher routes messages. Build it with New.
type Dispatcher struct {
	repo       store.Repository
	classifier Classifier
	extractor  Extractor
	resolver   Resolver
	summarizer Summarizer
	answerer   Answerer

	loc        *time.Location
	llmTimeout time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

// New builds a dispatcher. Repo is required; a nil LLM collaborator makes
// the branches that need it degrade as if the call had failed.
func New(deps Deps, opts Options) *Dispatcher {
	d := &Dispatcher{
		repo:       deps.Repo,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		resolver:   deps.Resolver,
		summarizer: deps.Summarizer,
		answerer:   deps.Answerer,
		loc:        opts.Location,
		llmTimeout: opts.LLMTimeout,
		now:        opts.Now,
		log:        logging.WithComponent("dispatch"),
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Today is the current civil date in the dispatcher's timezone.
func (d *Dispatcher) Today() calendar.Date {
	return calendar.Of(d.now().In(d.loc))
}

// Dispatch handles one message from user. It always returns a non-empty
// reply.
func (d *Dispatcher) Dispatch(ctx context.Context, user *task.User, text string) Reply {
	start := d.now()
	r := d.route(ctx, user, text)
	if r.Text == "" {
		r = Reply{Text: format.Help(), Branch: BranchHelp}
	}

	metrics.DispatchBranches.WithLabelValues(r.Branch).Inc()
	d.log.Info().
		Str("user_id", user.ID).
		Str("branch", r.Branch).
		Dur("took", d.now().Sub(start)).
		Msg("Message dispatched")
	return r
}

func (d *Dispatcher) route(ctx context.Context, user *task.User, text string) Reply {
	if matcher.Normalize(text) == "" {
		return Reply{Text: format.Help(), Branch: BranchEmpty}
	}
	today := d.Today()

	if m, ok := matcher.Match(text); ok {
		d.log.Debug().Str("category", m.Category.String()).Msg("Pattern matched")
		switch m.Category {
		case matcher.ExplicitDate:
			return d.explicitDate(ctx, user, m.Date, today)
		case matcher.NumericCompletion:
			return d.completeByIndex(ctx, user, m.Index, today)
		case matcher.DescriptiveCompletion:
			return d.completeByDescription(ctx, user, m.Remainder, today)
		default:
			return d.query(ctx, user, m.Category, today)
		}
	}

	intent := d.classify(ctx, text)
	if intent != nil {
		if r, ok := d.routeIntent(ctx, user, text, intent, today); ok {
			return r
		}
	}
	return d.create(ctx, user, text, today)
}

// routeIntent handles a classified message. ok is false when the intent
// falls through to creation.
func (d *Dispatcher) routeIntent(ctx context.Context, user *task.User, text string, in *assistant.Intent, today calendar.Date) (Reply, bool) {
	switch in.Kind {
	case assistant.KindQuery:
		return d.intentQuery(ctx, user, in.Filters, today), true
	case assistant.KindSummary:
		return d.query(ctx, user, matcher.Summary, today), true
	case assistant.KindQuestion:
		return d.question(ctx, user, text, today), true
	case assistant.KindUpdateTask:
		if isCompleteOperation(in.Operation) {
			return d.completeByDescription(ctx, user, text, today), true
		}
	}
	return Reply{}, false
}

func isCompleteOperation(op string) bool {
	switch matcher.Fold(op) {
	case "", "complete", "completed", "done", "finish", "concluir", "finalizar", "completar":
		return true
	}
	return false
}

func (d *Dispatcher) classify(ctx context.Context, text string) *assistant.Intent {
	if d.classifier == nil {
		return nil
	}
	ctx, cancel := d.llmContext(ctx)
	defer cancel()

	in, err := d.classifier.Classify(ctx, text)
	if err != nil {
		d.log.Warn().Err(err).Msg("Classification failed, falling back to creation")
		return nil
	}
	return in
}

// llmContext bounds a single LLM call.
func (d *Dispatcher) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.llmTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.llmTimeout)
}
