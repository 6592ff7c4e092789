package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/assistant"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// memRepo is an in-memory store.Repository with failure injection.
type memRepo struct {
	mu      sync.Mutex
	tasks   []task.Task
	clients []task.Client
	users   []task.User

	failQueries error
	failWrites  error

	byDateCalls []calendar.Date
	completions int
	created     []task.Draft
	// completedBy stamps SetCompleted as if another request had won.
	completedBy *time.Time
}

var _ store.Repository = (*memRepo)(nil)

func (r *memRepo) add(ts ...task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Date(2025, 1, 1, 0, 0, len(r.tasks), 0, time.UTC)
		}
		r.tasks = append(r.tasks, t)
	}
}

func (r *memRepo) filter(userID string, keep func(*task.Task) bool) []task.Task {
	var out []task.Task
	for i := range r.tasks {
		t := &r.tasks[i]
		if t.AssignedToUser(userID) && keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func byCreated(ts []task.Task) []task.Task {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].CreatedAt.Before(ts[j].CreatedAt) })
	return ts
}

func byDate(ts []task.Task, desc bool) []task.Task {
	sort.SliceStable(ts, func(i, j int) bool {
		if desc {
			return ts[i].Date.After(ts[j].Date)
		}
		return ts[i].Date.Before(ts[j].Date)
	})
	return ts
}

func (r *memRepo) FindUserByPhone(_ context.Context, phone string) (*task.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) ListUsersWithPhone(context.Context) ([]task.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []task.User
	for _, u := range r.users {
		if u.Phone != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memRepo) FindByDate(_ context.Context, userID string, date calendar.Date) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDateCalls = append(r.byDateCalls, date)
	if r.failQueries != nil {
		return nil, store.Wrap("find by date", r.failQueries)
	}
	return byCreated(r.filter(userID, func(t *task.Task) bool { return t.Date == date })), nil
}

func (r *memRepo) FindByStatusSet(_ context.Context, userID string, statuses ...task.Status) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQueries != nil {
		return nil, store.Wrap("find by status", r.failQueries)
	}
	return byDate(r.filter(userID, func(t *task.Task) bool {
		for _, s := range statuses {
			if t.EffectiveStatus() == s {
				return true
			}
		}
		return false
	}), false), nil
}

func (r *memRepo) FindOverdue(_ context.Context, userID string, today calendar.Date) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQueries != nil {
		return nil, store.Wrap("find overdue", r.failQueries)
	}
	return byDate(r.filter(userID, func(t *task.Task) bool {
		return !t.IsRecurring() && t.EffectiveStatus().Open() && t.Date.Before(today)
	}), false), nil
}

func (r *memRepo) FindRecurringByType(_ context.Context, userID string, typ task.RecurrenceType) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQueries != nil {
		return nil, store.Wrap("find recurring", r.failQueries)
	}
	return byCreated(r.filter(userID, func(t *task.Task) bool {
		return t.IsRecurring() && t.Recurrence.Type == typ
	})), nil
}

func (r *memRepo) FindOpenForCompletion(_ context.Context, userID string) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQueries != nil {
		return nil, store.Wrap("find open", r.failQueries)
	}
	return byDate(r.filter(userID, func(t *task.Task) bool { return t.EffectiveStatus().Open() }), true), nil
}

func (r *memRepo) GetTask(_ context.Context, taskID string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == taskID {
			t := r.tasks[i]
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memRepo) ListActiveClients(context.Context) ([]task.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failQueries != nil {
		return nil, store.Wrap("list clients", r.failQueries)
	}
	var out []task.Client
	for _, c := range r.clients {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) CreateTask(_ context.Context, userID string, d task.Draft) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return nil, store.Wrap("create task", r.failWrites)
	}
	if d.ClientID == "" {
		return nil, store.Wrap("create task", store.ErrClientRequired)
	}
	r.created = append(r.created, d)
	t := task.Task{
		ID:               fmt.Sprintf("new-%d", len(r.created)),
		Title:            d.Title,
		Description:      d.Description,
		AssignedTo:       userID,
		AssignedUsers:    []string{userID},
		ClientID:         d.ClientID,
		ClientName:       d.ClientName,
		Date:             d.Date,
		Status:           task.StatusPending,
		EstimatedMinutes: d.EstimatedMinutes,
	}
	r.tasks = append(r.tasks, t)
	return &t, nil
}

func (r *memRepo) SetCompleted(_ context.Context, taskID string, at time.Time) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return nil, store.Wrap("set completed", r.failWrites)
	}
	r.completions++
	for i := range r.tasks {
		t := &r.tasks[i]
		if t.ID != taskID {
			continue
		}
		if t.CompletedAt == nil {
			stamp := at
			if r.completedBy != nil {
				stamp = *r.completedBy
			}
			t.CompletedAt = &stamp
		}
		t.Status = task.StatusCompleted
		out := *t
		return &out, nil
	}
	return nil, store.Wrap("set completed", store.ErrNotFound)
}

func (r *memRepo) MarkRecurringCompleted(_ context.Context, taskID string, date calendar.Date) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return nil, store.Wrap("mark recurring", r.failWrites)
	}
	r.completions++
	for i := range r.tasks {
		t := &r.tasks[i]
		if t.ID == taskID {
			t.Ledger.Add(date)
			out := *t
			return &out, nil
		}
	}
	return nil, store.Wrap("mark recurring", store.ErrNotFound)
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) get(id string) task.Task {
	t, _ := r.GetTask(context.Background(), id)
	if t == nil {
		return task.Task{}
	}
	return *t
}

type fakeClassifier struct {
	intent *assistant.Intent
	err    error
	block  bool
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string) (*assistant.Intent, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.intent, f.err
}

type fakeExtractor struct {
	draft   *task.Draft
	err     error
	calls   int
	clients []string
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, clientNames []string) (*task.Draft, error) {
	f.calls++
	f.clients = clientNames
	if f.draft == nil {
		return nil, f.err
	}
	d := *f.draft
	return &d, f.err
}

type fakeResolver struct {
	res   *assistant.Resolution
	err   error
	calls int
	text  string
	pool  []string
}

func (f *fakeResolver) Resolve(_ context.Context, text string, candidates []task.Task) (*assistant.Resolution, error) {
	f.calls++
	f.text = text
	f.pool = nil
	for _, c := range candidates {
		f.pool = append(f.pool, c.ID)
	}
	return f.res, f.err
}

type fakeSummarizer struct {
	out   string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(context.Context, []task.Task) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeAnswerer struct {
	out   string
	err   error
	calls int
	tasks int
}

func (f *fakeAnswerer) Answer(_ context.Context, _ string, tasks []task.Task) (string, error) {
	f.calls++
	f.tasks = len(tasks)
	return f.out, f.err
}
