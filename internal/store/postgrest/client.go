// Package postgrest implements store.Repository over the Supabase PostgREST
// HTTP API.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// taskSelect hydrates the client relation alongside every activity row.
const taskSelect = "*,client:clients!activities_client_id_fkey(id,name)"

// maxLedgerAttempts bounds optimistic retries when two completions race on
// the same recurring task.
const maxLedgerAttempts = 3

// Client is a PostgREST-backed repository
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

var _ store.Repository = (*Client)(nil)

// NewClient creates a new PostgREST repository client
func NewClient(cfg *config.SupabaseConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		apiKey:  cfg.AnonKey,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		now: time.Now,
	}
}

// activityRow is the wire shape of an activities row
type activityRow struct {
	ID             string          `json:"id,omitempty"`
	Title          string          `json:"title"`
	Description    *string         `json:"description"`
	ClientID       *string         `json:"client_id"`
	ClientName     *string         `json:"client_name,omitempty"`
	AssignedTo     *string         `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name,omitempty"`
	AssignedUsers  []string        `json:"assigned_users"`
	Date           calendar.Date   `json:"date"`
	Estimated      *int            `json:"estimated_duration"`
	Actual         *int            `json:"actual_duration,omitempty"`
	Status         string          `json:"status"`
	IsRecurring    *bool           `json:"is_recurring"`
	RecurrenceType *string         `json:"recurrence_type,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
	Client         *task.ClientRef `json:"client,omitempty"`
	Clients        *task.ClientRef `json:"clients,omitempty"`
}

type userRow struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Phone *string `json:"phone"`
}

type clientRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// USERS AND CLIENTS
// ═══════════════════════════════════════════════════════════════════════════════

// FindUserByPhone resolves a user by phone number
func (c *Client) FindUserByPhone(ctx context.Context, phone string) (*task.User, error) {
	q := url.Values{}
	q.Set("select", "id,name,phone")
	q.Set("phone", "eq."+phone)
	q.Set("limit", "1")

	var rows []userRow
	if err := c.get(ctx, "users", q, &rows); err != nil {
		return nil, store.Wrap("find_user_by_phone", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toUser(), nil
}

// ListUsersWithPhone returns every user with a phone number
func (c *Client) ListUsersWithPhone(ctx context.Context) ([]task.User, error) {
	q := url.Values{}
	q.Set("select", "id,name,phone")
	q.Set("phone", "not.is.null")
	q.Set("order", "name.asc")

	var rows []userRow
	if err := c.get(ctx, "users", q, &rows); err != nil {
		return nil, store.Wrap("list_users_with_phone", err)
	}
	users := make([]task.User, 0, len(rows))
	for _, r := range rows {
		if u := r.toUser(); u.Phone != "" {
			users = append(users, *u)
		}
	}
	return users, nil
}

// ListActiveClients returns active clients ordered by name
func (c *Client) ListActiveClients(ctx context.Context) ([]task.Client, error) {
	q := url.Values{}
	q.Set("select", "id,name,is_active")
	q.Set("is_active", "is.true")
	q.Set("order", "name.asc")

	var rows []clientRow
	if err := c.get(ctx, "clients", q, &rows); err != nil {
		return nil, store.Wrap("list_active_clients", err)
	}
	clients := make([]task.Client, 0, len(rows))
	for _, r := range rows {
		clients = append(clients, task.Client{ID: r.ID, Name: r.Name, Active: r.IsActive})
	}
	return clients, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASK QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// FindByDate returns the user's tasks dated on date
func (c *Client) FindByDate(ctx context.Context, userID string, date calendar.Date) ([]task.Task, error) {
	q := ownedBy(userID)
	q.Set("date", "eq."+date.String())
	q.Set("order", "created_at.asc")
	return c.queryTasks(ctx, "find_by_date", q)
}

// FindByStatusSet returns the user's tasks in any of statuses
func (c *Client) FindByStatusSet(ctx context.Context, userID string, statuses ...task.Status) ([]task.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := ownedBy(userID)
	q.Set("status", inList(statuses))
	q.Set("order", "date.asc,created_at.asc")
	return c.queryTasks(ctx, "find_by_status_set", q)
}

// FindOverdue returns open non-recurring tasks dated before today
func (c *Client) FindOverdue(ctx context.Context, userID string, today calendar.Date) ([]task.Task, error) {
	q := ownedBy(userID)
	q.Set("date", "lt."+today.String())
	q.Set("status", inList(task.OpenStatuses))
	q.Set("is_recurring", "not.is.true")
	q.Set("order", "date.asc,created_at.asc")
	return c.queryTasks(ctx, "find_overdue", q)
}

// FindRecurringByType returns the user's recurring tasks of typ
func (c *Client) FindRecurringByType(ctx context.Context, userID string, typ task.RecurrenceType) ([]task.Task, error) {
	q := ownedBy(userID)
	q.Set("is_recurring", "is.true")
	q.Set("recurrence_type", "eq."+string(typ))
	q.Set("order", "created_at.asc")
	return c.queryTasks(ctx, "find_recurring_by_type", q)
}

// FindOpenForCompletion returns open tasks, most recent date first
func (c *Client) FindOpenForCompletion(ctx context.Context, userID string) ([]task.Task, error) {
	q := ownedBy(userID)
	q.Set("status", inList(task.OpenStatuses))
	q.Set("order", "date.desc,created_at.asc")
	return c.queryTasks(ctx, "find_open_for_completion", q)
}

// GetTask loads a task by ID
func (c *Client) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	q := url.Values{}
	q.Set("select", taskSelect)
	q.Set("id", "eq."+taskID)
	tasks, err := c.queryTasks(ctx, "get_task", q)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, store.ErrNotFound
	}
	return &tasks[0], nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASK MUTATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreateTask inserts a pending, non-recurring task for userID
func (c *Client) CreateTask(ctx context.Context, userID string, draft task.Draft) (*task.Task, error) {
	if draft.ClientID == "" {
		return nil, store.ErrClientRequired
	}
	date := draft.Date
	if date.IsZero() {
		date = calendar.Of(c.now())
	}
	minutes := draft.EstimatedMinutes
	if minutes <= 0 {
		minutes = task.DefaultEstimateMinutes
	}
	notRecurring := false
	row := activityRow{
		Title:         draft.Title,
		Description:   optString(draft.Description),
		ClientID:      &draft.ClientID,
		AssignedTo:    &userID,
		AssignedUsers: []string{userID},
		Date:          date,
		Estimated:     &minutes,
		Status:        string(task.StatusPending),
		IsRecurring:   &notRecurring,
	}

	var created []activityRow
	if err := c.write(ctx, http.MethodPost, "activities", selectOnly(), row, &created); err != nil {
		return nil, store.Wrap("create_task", err)
	}
	if len(created) == 0 {
		return nil, store.Wrap("create_task", fmt.Errorf("insert returned no row"))
	}
	t := created[0].toTask()
	return &t, nil
}

// SetCompleted marks the task completed. A task already completed keeps its
// original completion time: the PATCH only matches rows that are not yet
// completed, so of two racing requests the loser updates nothing and gets
// the winner's row back.
func (c *Client) SetCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error) {
	current, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status == task.StatusCompleted {
		return current, nil
	}

	q := selectOnly()
	q.Set("id", "eq."+taskID)
	q.Set("status", "neq."+string(task.StatusCompleted))
	patch := map[string]interface{}{
		"status":       string(task.StatusCompleted),
		"completed_at": at.UTC().Format(time.RFC3339Nano),
		"updated_at":   at.UTC().Format(time.RFC3339Nano),
	}
	var rows []activityRow
	if err := c.write(ctx, http.MethodPatch, "activities", q, patch, &rows); err != nil {
		return nil, store.Wrap("set_completed", err)
	}
	if len(rows) == 0 {
		return c.GetTask(ctx, taskID)
	}
	t := rows[0].toTask()
	return &t, nil
}

// MarkRecurringCompleted appends date to the task's ledger. The update is
// conditioned on updated_at so a concurrent writer forces a re-read instead
// of a lost entry.
func (c *Client) MarkRecurringCompleted(ctx context.Context, taskID string, date calendar.Date) (*task.Task, error) {
	for attempt := 0; attempt < maxLedgerAttempts; attempt++ {
		q := url.Values{}
		q.Set("select", "id,description,updated_at")
		q.Set("id", "eq."+taskID)
		var rows []activityRow
		if err := c.get(ctx, "activities", q, &rows); err != nil {
			return nil, store.Wrap("mark_recurring_completed", err)
		}
		if len(rows) == 0 {
			return nil, store.ErrNotFound
		}

		desc := deref(rows[0].Description)
		ledger := task.ParseLedger(desc)
		if !ledger.Add(date) {
			return c.GetTask(ctx, taskID)
		}

		now := c.now().UTC().Format(time.RFC3339Nano)
		uq := selectOnly()
		uq.Set("id", "eq."+taskID)
		if rows[0].UpdatedAt != nil {
			uq.Set("updated_at", "eq."+rows[0].UpdatedAt.UTC().Format(time.RFC3339Nano))
		}
		patch := map[string]interface{}{
			"description": task.EmbedLedger(desc, ledger),
			"updated_at":  now,
		}
		var updated []activityRow
		if err := c.write(ctx, http.MethodPatch, "activities", uq, patch, &updated); err != nil {
			return nil, store.Wrap("mark_recurring_completed", err)
		}
		if len(updated) > 0 {
			t := updated[0].toTask()
			return &t, nil
		}
	}
	return nil, store.Wrap("mark_recurring_completed", fmt.Errorf("task %s changed concurrently", taskID))
}

// Ping checks that the REST endpoint answers
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	var rows []clientRow
	return store.Wrap("ping", c.get(ctx, "clients", q, &rows))
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) queryTasks(ctx context.Context, op string, q url.Values) ([]task.Task, error) {
	var rows []activityRow
	if err := c.get(ctx, "activities", q, &rows); err != nil {
		return nil, store.Wrap(op, err)
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (c *Client) get(ctx context.Context, table string, q url.Values, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, table, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, method, table string, q url.Values, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", table, err)
	}
	resp, err := c.doRequest(ctx, method, table, q, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return nil
}

// doRequest performs an HTTP request with the PostgREST headers and turns
// non-2xx answers into errors.
func (c *Client) doRequest(ctx context.Context, method, table string, q url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + "/" + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "taskbot/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ═══════════════════════════════════════════════════════════════════════════════

func ownedBy(userID string) url.Values {
	q := url.Values{}
	q.Set("select", taskSelect)
	q.Set("or", fmt.Sprintf("(assigned_to.eq.%s,assigned_users.cs.{%s})", userID, userID))
	return q
}

func selectOnly() url.Values {
	q := url.Values{}
	q.Set("select", taskSelect)
	return q
}

func inList(statuses []task.Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return "in.(" + strings.Join(parts, ",") + ")"
}

func (r userRow) toUser() *task.User {
	return &task.User{ID: r.ID, Name: r.Name, Phone: deref(r.Phone)}
}

func (r activityRow) toTask() task.Task {
	desc := deref(r.Description)
	t := task.Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    task.StripLedger(desc),
		Ledger:         task.ParseLedger(desc),
		AssignedTo:     deref(r.AssignedTo),
		AssignedToName: deref(r.AssignedToName),
		AssignedUsers:  r.AssignedUsers,
		ClientID:       deref(r.ClientID),
		ClientName:     deref(r.ClientName),
		Client:         r.Client,
		ClientAlt:      r.Clients,
		Date:           r.Date,
		Status:         task.Status(r.Status),
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
	if r.Estimated != nil {
		t.EstimatedMinutes = *r.Estimated
	}
	if r.Actual != nil {
		t.ActualMinutes = *r.Actual
	}
	if r.IsRecurring != nil && *r.IsRecurring {
		t.Recurrence = &task.Recurrence{Type: task.RecurrenceType(deref(r.RecurrenceType)), Anchor: r.Date}
	}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		t.UpdatedAt = *r.UpdatedAt
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
