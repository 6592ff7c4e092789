package dispatch

import (
	"context"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/recurrence"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// completeByIndex completes the n-th task (1-based) of today's list.
func (d *Dispatcher) completeByIndex(ctx context.Context, user *task.User, n int, today calendar.Date) Reply {
	tasks, err := d.TasksOn(ctx, user.ID, today)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", user.ID).Msg("Loading today's list for completion failed")
		return Reply{Text: format.CompletionFailed, Branch: BranchCompletionFailed}
	}
	if n < 1 || n > len(tasks) {
		return Reply{Text: format.InvalidNumber(n, len(tasks)), Branch: BranchInvalidNumber}
	}
	return d.complete(ctx, &tasks[n-1], today)
}

// completeByDescription asks the resolver which open task text refers to.
// Anything short of a confident answer inside the pool shows the pool.
func (d *Dispatcher) completeByDescription(ctx context.Context, user *task.User, text string, today calendar.Date) Reply {
	pool, err := d.openPool(ctx, user.ID, today)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", user.ID).Msg("Loading open tasks failed")
		return Reply{Text: format.CompletionFailed, Branch: BranchCompletionFailed}
	}
	if len(pool) == 0 || d.resolver == nil {
		return Reply{Text: format.Candidates(pool, today), Branch: BranchCandidates}
	}

	lctx, cancel := d.llmContext(ctx)
	res, err := d.resolver.Resolve(lctx, text, pool)
	cancel()
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", user.ID).Msg("Completion resolver failed")
		return Reply{Text: format.Candidates(pool, today), Branch: BranchCandidates}
	}
	if res == nil {
		return Reply{Text: format.Candidates(pool, today), Branch: BranchCandidates}
	}

	for i := range pool {
		if pool[i].ID == res.TaskID {
			d.log.Debug().Str("task_id", res.TaskID).Str("confidence", string(res.Confidence)).Msg("Completion resolved")
			return d.complete(ctx, &pool[i], today)
		}
	}
	d.log.Warn().Str("task_id", res.TaskID).Msg("Resolver named a task outside the candidate pool")
	return Reply{Text: format.Candidates(pool, today), Branch: BranchCandidates}
}

// openPool is every open task of the user, minus recurring tasks that are
// not due today.
func (d *Dispatcher) openPool(ctx context.Context, userID string, today calendar.Date) ([]task.Task, error) {
	open, err := d.repo.FindOpenForCompletion(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool := open[:0:0]
	for i := range open {
		if open[i].IsRecurring() && !recurrence.IsDueOn(&open[i], today) {
			continue
		}
		pool = append(pool, open[i])
	}
	return pool, nil
}

// complete marks t done. Recurring tasks get today's date in their ledger;
// others get a completion timestamp. Completing twice is reported, not
// repeated.
func (d *Dispatcher) complete(ctx context.Context, t *task.Task, today calendar.Date) Reply {
	if t.IsRecurring() {
		if recurrence.IsCompletedOn(t, today) {
			return Reply{Text: format.AlreadyCompleted(t), Branch: BranchAlreadyCompleted}
		}
		updated, err := d.repo.MarkRecurringCompleted(ctx, t.ID, today)
		if err != nil {
			d.log.Error().Err(err).Str("task_id", t.ID).Msg("Recording recurring completion failed")
			return Reply{Text: format.CompletionFailed, Branch: BranchCompletionFailed}
		}
		return Reply{Text: format.Completed(updated, today), Branch: BranchComplete}
	}

	if t.EffectiveStatus() == task.StatusCompleted {
		return Reply{Text: format.AlreadyCompleted(t), Branch: BranchAlreadyCompleted}
	}

	at := d.now()
	updated, err := d.repo.SetCompleted(ctx, t.ID, at)
	if err != nil {
		d.log.Error().Err(err).Str("task_id", t.ID).Msg("Completing task failed")
		return Reply{Text: format.CompletionFailed, Branch: BranchCompletionFailed}
	}
	// The store keeps the first completion time; an older stamp means a
	// concurrent request won. Stores keep at least microseconds.
	if updated.CompletedAt != nil && updated.CompletedAt.Before(at.Truncate(time.Microsecond)) {
		return Reply{Text: format.AlreadyCompleted(updated), Branch: BranchAlreadyCompleted}
	}
	d.log.Info().Str("task_id", t.ID).Msg("Task completed")
	return Reply{Text: format.Completed(updated, today), Branch: BranchComplete}
}
