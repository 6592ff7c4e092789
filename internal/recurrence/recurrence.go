// Package recurrence decides when a recurring task falls due and whether an
// occurrence has been completed.
package recurrence

import (
	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// IsDueOn reports whether a recurring task has an occurrence on date.
// Non-recurring tasks are due only on their own date.
//
// Monthly tasks anchored on a day that the target month lacks (the 31st in
// a 30-day month, the 29th-31st in February) do not fire that month.
// Custom recurrences are never due automatically.
func IsDueOn(t *task.Task, date calendar.Date) bool {
	if t == nil {
		return false
	}
	if !t.IsRecurring() {
		return !t.Date.IsZero() && t.Date == date
	}
	anchor := t.Recurrence.Anchor
	if anchor.IsZero() {
		anchor = t.Date
	}
	switch t.Recurrence.Type {
	case task.RecurrenceDaily:
		return true
	case task.RecurrenceWeekly:
		return !anchor.IsZero() && date.Weekday() == anchor.Weekday()
	case task.RecurrenceMonthly:
		return !anchor.IsZero() && date.Day == anchor.Day
	default:
		return false
	}
}

// IsCompletedOn reports whether the task's ledger records date.
func IsCompletedOn(t *task.Task, date calendar.Date) bool {
	if t == nil {
		return false
	}
	return t.Ledger.Has(date)
}

// DoneOn reports whether the task counts as done for date: recurring tasks
// consult the ledger, others their stored status.
func DoneOn(t *task.Task, date calendar.Date) bool {
	if t == nil {
		return false
	}
	if t.IsRecurring() {
		return IsCompletedOn(t, date)
	}
	return t.EffectiveStatus() == task.StatusCompleted
}
