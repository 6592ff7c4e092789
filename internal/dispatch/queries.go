package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/assistant"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/matcher"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/recurrence"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// expandedTypes are the recurrence types that can be due on a date.
var expandedTypes = []task.RecurrenceType{task.RecurrenceDaily, task.RecurrenceWeekly, task.RecurrenceMonthly}

// TasksOn returns the user's list for date: non-recurring tasks dated on
// date, oldest created first, followed by recurring tasks due on date,
// oldest created first. The order is the one numeric completion indexes.
func (d *Dispatcher) TasksOn(ctx context.Context, userID string, date calendar.Date) ([]task.Task, error) {
	dated, err := d.repo.FindByDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("tasks on %s: %w", date, err)
	}

	seen := make(map[string]bool, len(dated))
	out := make([]task.Task, 0, len(dated))
	for _, t := range dated {
		if t.IsRecurring() || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}

	var due []task.Task
	for _, typ := range expandedTypes {
		recurring, err := d.repo.FindRecurringByType(ctx, userID, typ)
		if err != nil {
			return nil, fmt.Errorf("recurring %s tasks: %w", typ, err)
		}
		for i := range recurring {
			t := &recurring[i]
			if seen[t.ID] || !recurrence.IsDueOn(t, date) {
				continue
			}
			seen[t.ID] = true
			due = append(due, *t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	return append(out, due...), nil
}

// query answers a read-only pattern category.
func (d *Dispatcher) query(ctx context.Context, user *task.User, c matcher.Category, today calendar.Date) Reply {
	switch c {
	case matcher.Help:
		return Reply{Text: format.Help(), Branch: BranchHelp}

	case matcher.ListClients:
		clients, err := d.repo.ListActiveClients(ctx)
		if err != nil {
			return d.queryFailed(err, BranchClients)
		}
		return Reply{Text: format.ClientsList(clients), Branch: BranchClients}

	case matcher.Today:
		tasks, err := d.TasksOn(ctx, user.ID, today)
		if err != nil {
			return d.queryFailed(err, BranchToday)
		}
		return Reply{Text: format.TodayList(tasks, today), Branch: BranchToday}

	case matcher.Tomorrow:
		tomorrow := today.AddDays(1)
		tasks, err := d.TasksOn(ctx, user.ID, tomorrow)
		if err != nil {
			return d.queryFailed(err, BranchTomorrow)
		}
		return Reply{Text: format.TomorrowList(tasks, tomorrow), Branch: BranchTomorrow}

	case matcher.Remaining:
		tasks, err := d.TasksOn(ctx, user.ID, today)
		if err != nil {
			return d.queryFailed(err, BranchRemaining)
		}
		open := tasks[:0:0]
		for i := range tasks {
			if !recurrence.DoneOn(&tasks[i], today) {
				open = append(open, tasks[i])
			}
		}
		return Reply{Text: format.RemainingList(open, today), Branch: BranchRemaining}

	case matcher.Pending:
		tasks, err := d.repo.FindByStatusSet(ctx, user.ID, task.PendingStatuses...)
		if err != nil {
			return d.queryFailed(err, BranchPending)
		}
		return Reply{Text: format.PendingList(tasks, today), Branch: BranchPending}

	case matcher.InProgress:
		tasks, err := d.repo.FindByStatusSet(ctx, user.ID, task.StatusDoing)
		if err != nil {
			return d.queryFailed(err, BranchInProgress)
		}
		return Reply{Text: format.InProgressList(tasks, today), Branch: BranchInProgress}

	case matcher.Overdue:
		tasks, err := d.repo.FindOverdue(ctx, user.ID, today)
		if err != nil {
			return d.queryFailed(err, BranchOverdue)
		}
		return Reply{Text: format.OverdueList(tasks, today), Branch: BranchOverdue}

	case matcher.NextWeek:
		days, err := d.nextWeek(ctx, user.ID, today)
		if err != nil {
			return d.queryFailed(err, BranchNextWeek)
		}
		return Reply{Text: format.NextWeekList(days, today), Branch: BranchNextWeek}

	case matcher.Summary:
		return d.summary(ctx, user, today)
	}

	return Reply{Text: format.Help(), Branch: BranchHelp}
}

// nextWeek loads the seven days starting tomorrow.
func (d *Dispatcher) nextWeek(ctx context.Context, userID string, today calendar.Date) ([]format.Day, error) {
	days := make([]format.Day, 7)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i := range days {
		date := today.AddDays(i + 1)
		days[i].Date = date
		g.Go(func() error {
			tasks, err := d.TasksOn(gctx, userID, date)
			if err != nil {
				return err
			}
			days[i].Tasks = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return days, nil
}

var explicitDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?$`)

// ParseExplicitDate reads a DD/MM, DD/MM/YY or DD/MM/YYYY token. A missing
// year is the current one and a two-digit year is in the 2000s.
func ParseExplicitDate(raw string, today calendar.Date) (calendar.Date, error) {
	sm := explicitDateRe.FindStringSubmatch(strings.TrimSpace(raw))
	if sm == nil {
		return calendar.Date{}, fmt.Errorf("not a date token: %q", raw)
	}
	day, _ := strconv.Atoi(sm[1])
	month, _ := strconv.Atoi(sm[2])
	year := today.Year
	if sm[3] != "" {
		year, _ = strconv.Atoi(sm[3])
		if len(sm[3]) == 2 {
			year += 2000
		}
	}
	return calendar.New(year, time.Month(month), day)
}

func (d *Dispatcher) explicitDate(ctx context.Context, user *task.User, raw string, today calendar.Date) Reply {
	date, err := ParseExplicitDate(raw, today)
	if err != nil {
		d.log.Debug().Str("date", raw).Err(err).Msg("Invalid explicit date")
		return Reply{Text: format.InvalidDate(raw), Branch: BranchInvalidDate}
	}
	return d.dateQuery(ctx, user, date, today)
}

// dateQuery lists a single date. Today and tomorrow keep their own
// renders.
func (d *Dispatcher) dateQuery(ctx context.Context, user *task.User, date, today calendar.Date) Reply {
	switch date {
	case today:
		return d.query(ctx, user, matcher.Today, today)
	case today.AddDays(1):
		return d.query(ctx, user, matcher.Tomorrow, today)
	}
	tasks, err := d.TasksOn(ctx, user.ID, date)
	if err != nil {
		return d.queryFailed(err, BranchDate)
	}
	return Reply{Text: format.DateList(tasks, date, today), Branch: BranchDate}
}

// intentQuery maps classifier filters onto a query. A "today" period always
// goes to the today handler, whatever the date filter says.
func (d *Dispatcher) intentQuery(ctx context.Context, user *task.User, f assistant.Filters, today calendar.Date) Reply {
	switch f.Period {
	case assistant.PeriodToday:
		return d.query(ctx, user, matcher.Today, today)
	case assistant.PeriodTomorrow:
		return d.query(ctx, user, matcher.Tomorrow, today)
	case assistant.PeriodNextWeek:
		return d.query(ctx, user, matcher.NextWeek, today)
	case assistant.PeriodPending:
		return d.query(ctx, user, matcher.Pending, today)
	case assistant.PeriodInProgress:
		return d.query(ctx, user, matcher.InProgress, today)
	case assistant.PeriodOverdue:
		return d.query(ctx, user, matcher.Overdue, today)
	case assistant.PeriodRemaining:
		return d.query(ctx, user, matcher.Remaining, today)
	}

	if f.Date != "" {
		if date, err := calendar.Parse(f.Date); err == nil {
			return d.dateQuery(ctx, user, date, today)
		}
		if date, err := ParseExplicitDate(f.Date, today); err == nil {
			return d.dateQuery(ctx, user, date, today)
		}
		d.log.Debug().Str("date", f.Date).Msg("Classifier date unusable, showing today")
	}
	return d.query(ctx, user, matcher.Today, today)
}

func (d *Dispatcher) summary(ctx context.Context, user *task.User, today calendar.Date) Reply {
	tasks, err := d.TasksOn(ctx, user.ID, today)
	if err != nil {
		return d.queryFailed(err, BranchSummary)
	}
	if len(tasks) == 0 {
		return Reply{Text: format.NoTasksForSummary, Branch: BranchSummary}
	}
	if d.summarizer == nil {
		return Reply{Text: format.SummaryFailed, Branch: BranchSummary}
	}

	lctx, cancel := d.llmContext(ctx)
	defer cancel()
	text, err := d.summarizer.Summarize(lctx, tasks)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("Summary failed")
		return Reply{Text: format.SummaryFailed, Branch: BranchSummary}
	}
	return Reply{Text: format.Summary(text), Branch: BranchSummary}
}

func (d *Dispatcher) question(ctx context.Context, user *task.User, text string, today calendar.Date) Reply {
	tasks, err := d.TasksOn(ctx, user.ID, today)
	if err != nil {
		// Answer without context rather than failing the question.
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("Loading question context failed")
		tasks = nil
	}
	if d.answerer == nil {
		return Reply{Text: format.AnswerFailed, Branch: BranchQuestion}
	}

	lctx, cancel := d.llmContext(ctx)
	defer cancel()
	answer, err := d.answerer.Answer(lctx, text, tasks)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("Answer failed")
		return Reply{Text: format.AnswerFailed, Branch: BranchQuestion}
	}
	return Reply{Text: format.Answer(answer), Branch: BranchQuestion}
}

func (d *Dispatcher) queryFailed(err error, branch string) Reply {
	d.log.Error().Err(err).Str("branch", branch).Msg("Query failed")
	return Reply{Text: format.QueryFailed, Branch: BranchQueryFailed}
}
