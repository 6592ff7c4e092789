package dispatch

import (
	"context"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/format"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Digest builds the morning message for user from today's list.
func (d *Dispatcher) Digest(ctx context.Context, user task.User) (string, error) {
	today := d.Today()
	tasks, err := d.TasksOn(ctx, user.ID, today)
	if err != nil {
		return "", err
	}
	return format.Digest(user.Name, tasks, today), nil
}
