// Package store defines the repository the bot uses to read and mutate
// tasks, clients and users held by the external data store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

var (
	// ErrNotFound is returned when a lookup by key has no result.
	ErrNotFound = errors.New("not found")

	// ErrClientRequired is returned by CreateTask when the draft has no
	// resolved client.
	ErrClientRequired = errors.New("client is required")
)

// RepositoryError wraps a store or network failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *RepositoryError for op. Nil, ErrNotFound and
// ErrClientRequired pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrClientRequired) {
		return err
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// Repository is the task store facade. Every task query is scoped to a user
// with the OR rule of task.Task.AssignedToUser.
type Repository interface {
	// FindUserByPhone resolves a chat identity. Returns ErrNotFound when no
	// user has the phone.
	FindUserByPhone(ctx context.Context, phone string) (*task.User, error)
	// ListUsersWithPhone returns every user that can receive digests.
	ListUsersWithPhone(ctx context.Context) ([]task.User, error)

	// FindByDate returns tasks dated on date, oldest created first.
	FindByDate(ctx context.Context, userID string, date calendar.Date) ([]task.Task, error)
	// FindByStatusSet returns tasks whose status is in statuses, by date.
	FindByStatusSet(ctx context.Context, userID string, statuses ...task.Status) ([]task.Task, error)
	// FindOverdue returns open tasks dated before today, by date.
	FindOverdue(ctx context.Context, userID string, today calendar.Date) ([]task.Task, error)
	// FindRecurringByType returns recurring tasks of typ regardless of date.
	FindRecurringByType(ctx context.Context, userID string, typ task.RecurrenceType) ([]task.Task, error)
	// FindOpenForCompletion returns open tasks, newest date first.
	FindOpenForCompletion(ctx context.Context, userID string) ([]task.Task, error)
	// GetTask loads a single task. Returns ErrNotFound when absent.
	GetTask(ctx context.Context, taskID string) (*task.Task, error)

	// ListActiveClients returns active clients ordered by name.
	ListActiveClients(ctx context.Context) ([]task.Client, error)

	// CreateTask inserts a pending task assigned to userID. The draft must
	// carry a ClientID.
	CreateTask(ctx context.Context, userID string, draft task.Draft) (*task.Task, error)
	// SetCompleted marks a task completed and stamps the completion time.
	SetCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error)
	// MarkRecurringCompleted records date in a recurring task's ledger.
	MarkRecurringCompleted(ctx context.Context, taskID string, date calendar.Date) (*task.Task, error)

	// Ping checks connectivity for health reporting.
	Ping(ctx context.Context) error
}
