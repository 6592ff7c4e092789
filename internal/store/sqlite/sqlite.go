// Package sqlite implements store.Repository on a local SQLite database.
// It uses modernc.org/sqlite for pure-Go, CGO-free access and mirrors the
// column layout of the hosted activities schema.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Repository = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// The special path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite works best with a single writer; it also keeps :memory: to
	// one shared connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("ping", s.db.PingContext(ctx))
}

// ═══════════════════════════════════════════════════════════════════════════════
// USERS AND CLIENTS
// ═══════════════════════════════════════════════════════════════════════════════

// UpsertUser inserts or replaces a user. An empty ID is generated.
func (s *Store) UpsertUser(ctx context.Context, u *task.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone`,
		u.ID, u.Name, nullString(u.Phone), formatTime(s.now()))
	return store.Wrap("upsert_user", err)
}

// UpsertClient inserts or replaces a client. An empty ID is generated.
func (s *Store) UpsertClient(ctx context.Context, c *task.Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, is_active, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_active = excluded.is_active`,
		c.ID, c.Name, boolInt(c.Active), formatTime(s.now()))
	return store.Wrap("upsert_client", err)
}

// FindUserByPhone resolves a user by phone number.
func (s *Store) FindUserByPhone(ctx context.Context, phone string) (*task.User, error) {
	var u task.User
	var ph sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, name, phone FROM users WHERE phone = ?`, phone).
		Scan(&u.ID, &u.Name, &ph)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("find_user_by_phone", err)
	}
	u.Phone = ph.String
	return &u, nil
}

// ListUsersWithPhone returns users that have a phone number.
func (s *Store) ListUsersWithPhone(ctx context.Context) ([]task.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone FROM users
		WHERE phone IS NOT NULL AND phone != ''
		ORDER BY name`)
	if err != nil {
		return nil, store.Wrap("list_users_with_phone", err)
	}
	defer rows.Close()

	var users []task.User
	for rows.Next() {
		var u task.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone); err != nil {
			return nil, store.Wrap("list_users_with_phone", err)
		}
		users = append(users, u)
	}
	return users, store.Wrap("list_users_with_phone", rows.Err())
}

// ListActiveClients returns active clients ordered by name.
func (s *Store) ListActiveClients(ctx context.Context) ([]task.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_active FROM clients
		WHERE is_active = 1
		ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, store.Wrap("list_active_clients", err)
	}
	defer rows.Close()

	var clients []task.Client
	for rows.Next() {
		var c task.Client
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &active); err != nil {
			return nil, store.Wrap("list_active_clients", err)
		}
		c.Active = active == 1
		clients = append(clients, c)
	}
	return clients, store.Wrap("list_active_clients", rows.Err())
}

// ═══════════════════════════════════════════════════════════════════════════════
// TASK QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

const selectTask = `
	SELECT a.id, a.title, a.description, a.client_id, a.client_name, c.name,
	       a.assigned_to, a.assigned_users, a.date, a.estimated_duration,
	       a.actual_duration, a.status, a.is_recurring, a.recurrence_type,
	       a.started_at, a.completed_at, a.created_at, a.updated_at
	FROM activities a
	LEFT JOIN clients c ON c.id = a.client_id`

// ownedBy is the OR rule over the single assignee and the assignee set.
const ownedBy = `(a.assigned_to = ? OR EXISTS (SELECT 1 FROM json_each(a.assigned_users) WHERE json_each.value = ?))`

// FindByDate returns the user's tasks dated on date.
func (s *Store) FindByDate(ctx context.Context, userID string, date calendar.Date) ([]task.Task, error) {
	return s.queryTasks(ctx, "find_by_date",
		selectTask+` WHERE a.date = ? AND `+ownedBy+` ORDER BY a.created_at, a.rowid`,
		date.String(), userID, userID)
}

// FindByStatusSet returns the user's tasks in any of statuses.
func (s *Store) FindByStatusSet(ctx context.Context, userID string, statuses ...task.Status) ([]task.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []interface{}{userID, userID}
	args = append(args, statusArgs(statuses)...)
	return s.queryTasks(ctx, "find_by_status_set",
		selectTask+` WHERE `+ownedBy+` AND a.status IN (`+placeholders(len(statuses))+`)
		ORDER BY a.date, a.created_at, a.rowid`,
		args...)
}

// FindOverdue returns open tasks dated before today.
func (s *Store) FindOverdue(ctx context.Context, userID string, today calendar.Date) ([]task.Task, error) {
	args := []interface{}{userID, userID, today.String()}
	args = append(args, statusArgs(task.OpenStatuses)...)
	return s.queryTasks(ctx, "find_overdue",
		selectTask+` WHERE `+ownedBy+` AND a.is_recurring = 0 AND a.date < ?
		AND a.status IN (`+placeholders(len(task.OpenStatuses))+`)
		ORDER BY a.date, a.created_at, a.rowid`,
		args...)
}

// FindRecurringByType returns the user's recurring tasks of typ.
func (s *Store) FindRecurringByType(ctx context.Context, userID string, typ task.RecurrenceType) ([]task.Task, error) {
	return s.queryTasks(ctx, "find_recurring_by_type",
		selectTask+` WHERE `+ownedBy+` AND a.is_recurring = 1 AND a.recurrence_type = ?
		ORDER BY a.created_at, a.rowid`,
		userID, userID, string(typ))
}

// FindOpenForCompletion returns open tasks, most recent date first.
func (s *Store) FindOpenForCompletion(ctx context.Context, userID string) ([]task.Task, error) {
	args := []interface{}{userID, userID}
	args = append(args, statusArgs(task.OpenStatuses)...)
	return s.queryTasks(ctx, "find_open_for_completion",
		selectTask+` WHERE `+ownedBy+` AND a.status IN (`+placeholders(len(task.OpenStatuses))+`)
		ORDER BY a.date DESC, a.created_at, a.rowid`,
		args...)
}

// GetTask loads a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	tasks, err := s.queryTasks(ctx, "get_task", selectTask+` WHERE a.id = ?`, taskID)
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

// CreateTask inserts a pending, non-recurring task for userID.
func (s *Store) CreateTask(ctx context.Context, userID string, draft task.Draft) (*task.Task, error) {
	if draft.ClientID == "" {
		return nil, store.ErrClientRequired
	}
	date := draft.Date
	if date.IsZero() {
		date = calendar.Of(s.now())
	}
	minutes := draft.EstimatedMinutes
	if minutes <= 0 {
		minutes = task.DefaultEstimateMinutes
	}
	users, _ := json.Marshal([]string{userID})
	now := formatTime(s.now())
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (
			id, title, description, client_id, assigned_to, assigned_users,
			date, estimated_duration, status, is_recurring, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, draft.Title, nullString(draft.Description), draft.ClientID, userID, string(users),
		date.String(), minutes, string(task.StatusPending), now, now)
	if err != nil {
		return nil, store.Wrap("create_task", err)
	}
	return s.GetTask(ctx, id)
}

// InsertTask stores a fully specified task. It is used for seeding and
// tests; recurring tasks and their ledgers round-trip through it.
func (s *Store) InsertTask(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	users, _ := json.Marshal(t.AssignedUsers)
	if t.AssignedUsers == nil {
		users = []byte("[]")
	}
	var recType interface{}
	if t.Recurrence != nil {
		recType = string(t.Recurrence.Type)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (
			id, title, description, client_id, client_name, assigned_to, assigned_users,
			date, estimated_duration, status, is_recurring, recurrence_type,
			completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullString(task.EmbedLedger(t.Description, t.Ledger)), nullString(t.ClientID),
		nullString(t.ClientName), nullString(t.AssignedTo), string(users),
		nullString(t.Date.String()), nullInt(t.EstimatedMinutes), string(t.Status),
		boolInt(t.Recurrence != nil), recType, nullTime(t.CompletedAt),
		formatTime(created), formatTime(created))
	return store.Wrap("insert_task", err)
}

// SetCompleted marks the task completed. A task already completed keeps its
// original completion time.
func (s *Store) SetCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET completed_at = CASE WHEN status = ? THEN COALESCE(completed_at, ?) ELSE ? END,
		    status = ?, updated_at = ?
		WHERE id = ?`,
		string(task.StatusCompleted), formatTime(at), formatTime(at),
		string(task.StatusCompleted), formatTime(at), taskID)
	if err != nil {
		return nil, store.Wrap("set_completed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTask(ctx, taskID)
}

// MarkRecurringCompleted appends date to the task's ledger inside a
// transaction so concurrent completions do not drop entries.
func (s *Store) MarkRecurringCompleted(ctx context.Context, taskID string, date calendar.Date) (*task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("mark_recurring_completed", err)
	}
	defer tx.Rollback()

	var desc sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT description FROM activities WHERE id = ?`, taskID).Scan(&desc)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("mark_recurring_completed", err)
	}

	ledger := task.ParseLedger(desc.String)
	if ledger.Add(date) {
		_, err = tx.ExecContext(ctx, `UPDATE activities SET description = ?, updated_at = ? WHERE id = ?`,
			task.EmbedLedger(desc.String, ledger), formatTime(s.now()), taskID)
		if err != nil {
			return nil, store.Wrap("mark_recurring_completed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Wrap("mark_recurring_completed", err)
	}
	return s.GetTask(ctx, taskID)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...interface{}) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, store.Wrap(op, rows.Err())
}

func scanTask(rows *sql.Rows) (task.Task, error) {
	var t task.Task
	var desc, clientID, clientName, joinedName, assignedTo, date, recType sql.NullString
	var startedAt, completedAt sql.NullString
	var estimated, actual sql.NullInt64
	var usersJSON, status, createdAt, updatedAt string
	var recurring int

	err := rows.Scan(&t.ID, &t.Title, &desc, &clientID, &clientName, &joinedName,
		&assignedTo, &usersJSON, &date, &estimated,
		&actual, &status, &recurring, &recType,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}

	t.Description = task.StripLedger(desc.String)
	t.Ledger = task.ParseLedger(desc.String)
	t.ClientID = clientID.String
	t.ClientName = clientName.String
	if joinedName.Valid {
		t.Client = &task.ClientRef{ID: clientID.String, Name: joinedName.String}
	}
	t.AssignedTo = assignedTo.String
	if usersJSON != "" {
		if err := json.Unmarshal([]byte(usersJSON), &t.AssignedUsers); err != nil {
			return t, fmt.Errorf("decode assigned_users: %w", err)
		}
	}
	if date.Valid && date.String != "" {
		d, err := calendar.Parse(date.String)
		if err != nil {
			return t, err
		}
		t.Date = d
	}
	t.EstimatedMinutes = int(estimated.Int64)
	t.ActualMinutes = int(actual.Int64)
	t.Status = task.Status(status)
	if recurring == 1 {
		t.Recurrence = &task.Recurrence{Type: task.RecurrenceType(recType.String), Anchor: t.Date}
	}
	t.StartedAt = parseNullTime(startedAt)
	t.CompletedAt = parseNullTime(completedAt)
	if ts := parseNullTime(sql.NullString{String: createdAt, Valid: true}); ts != nil {
		t.CreatedAt = *ts
	}
	if ts := parseNullTime(sql.NullString{String: updatedAt, Valid: true}); ts != nil {
		t.UpdatedAt = *ts
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func statusArgs(statuses []task.Status) []interface{} {
	out := make([]interface{}, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return &t
		}
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
