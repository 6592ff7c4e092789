package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(&config.SupabaseConfig{URL: srv.URL, AnonKey: "anon-key"})
	c.now = func() time.Time { return time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestFindByDateQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/activities", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "eq.2025-12-10", q.Get("date"))
		assert.Equal(t, "(assigned_to.eq.u1,assigned_users.cs.{u1})", q.Get("or"))
		assert.Equal(t, "created_at.asc", q.Get("order"))
		assert.Equal(t, taskSelect, q.Get("select"))

		io.WriteString(w, `[
			{"id":"a1","title":"Conciliação","description":"bancos\n\n<recurrence>{\"completed_dates\":[\"2025-12-09\"]}</recurrence>",
			 "client_id":"c1","assigned_to":"u1","assigned_users":["u1"],"date":"2025-12-10",
			 "estimated_duration":45,"status":"pending","is_recurring":true,"recurrence_type":"daily",
			 "created_at":"2025-12-01T10:00:00.123456+00:00","client":{"id":"c1","name":"Acme"}},
			{"id":"a2","title":"Relatório","description":null,"client_id":null,"assigned_to":null,
			 "assigned_users":null,"date":"2025-12-10","estimated_duration":null,"status":"weird","is_recurring":null}
		]`)
	})

	tasks, err := c.FindByDate(context.Background(), "u1", calendar.MustParse("2025-12-10"))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, "bancos", first.Description)
	assert.True(t, first.Ledger.Has(calendar.MustParse("2025-12-09")))
	assert.True(t, first.IsRecurring())
	assert.Equal(t, task.RecurrenceDaily, first.Recurrence.Type)
	assert.Equal(t, "Acme", first.DisplayClientName())
	assert.Equal(t, 45, first.EstimatedMinutes)
	assert.False(t, first.CreatedAt.IsZero())

	second := tasks[1]
	assert.False(t, second.IsRecurring())
	assert.Equal(t, 0, second.EstimatedMinutes)
	assert.Equal(t, task.StatusPending, second.EffectiveStatus())
}

func TestStatusFilters(t *testing.T) {
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	_, err := c.FindByStatusSet(ctx, "u1", task.PendingStatuses...)
	require.NoError(t, err)
	assert.Equal(t, "in.(pending,waiting-client,waiting-team)", query["status"])

	_, err = c.FindOverdue(ctx, "u1", calendar.MustParse("2025-12-10"))
	require.NoError(t, err)
	assert.Equal(t, "lt.2025-12-10", query["date"])
	assert.Equal(t, "not.is.true", query["is_recurring"])

	_, err = c.FindOpenForCompletion(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "date.desc,created_at.asc", query["order"])

	_, err = c.FindRecurringByType(ctx, "u1", task.RecurrenceWeekly)
	require.NoError(t, err)
	assert.Equal(t, "eq.weekly", query["recurrence_type"])
	assert.Equal(t, "is.true", query["is_recurring"])
}

func TestFindUserByPhone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/users", r.URL.Path)
		if r.URL.Query().Get("phone") == "eq.+5511999990000" {
			io.WriteString(w, `[{"id":"u1","name":"Ana","phone":"+5511999990000"}]`)
			return
		}
		io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	u, err := c.FindUserByPhone(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)

	_, err = c.FindUserByPhone(ctx, "+000")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCreateTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Relatório", body["title"])
		assert.Equal(t, "c1", body["client_id"])
		assert.Equal(t, "2025-12-10", body["date"])
		assert.Equal(t, float64(60), body["estimated_duration"])
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, []interface{}{"u1"}, body["assigned_users"])

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `[{"id":"new","title":"Relatório","client_id":"c1","assigned_to":"u1",
			"assigned_users":["u1"],"date":"2025-12-10","estimated_duration":60,"status":"pending",
			"client":{"id":"c1","name":"Acme"}}]`)
	})
	ctx := context.Background()

	_, err := c.CreateTask(ctx, "u1", task.Draft{Title: "Relatório"})
	assert.True(t, errors.Is(err, store.ErrClientRequired))

	created, err := c.CreateTask(ctx, "u1", task.Draft{Title: "Relatório", ClientID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)
	assert.Equal(t, "Acme", created.DisplayClientName())
}

func TestSetCompletedIsIdempotent(t *testing.T) {
	patches := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			patches++
		}
		io.WriteString(w, `[{"id":"t1","title":"x","status":"completed","completed_at":"2025-12-10T08:00:00Z"}]`)
	})

	got, err := c.SetCompleted(context.Background(), "t1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, patches)
	assert.Equal(t, 8, got.CompletedAt.Hour())
}

func TestSetCompletedGuardsPatch(t *testing.T) {
	at := time.Date(2025, 12, 10, 12, 0, 5, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `[{"id":"t1","title":"x","status":"pending"}]`)
		case http.MethodPatch:
			q := r.URL.Query()
			assert.Equal(t, "eq.t1", q.Get("id"))
			assert.Equal(t, "neq.completed", q.Get("status"))
			io.WriteString(w, `[{"id":"t1","title":"x","status":"completed","completed_at":"2025-12-10T12:00:05Z"}]`)
		}
	})

	got, err := c.SetCompleted(context.Background(), "t1", at)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.True(t, got.CompletedAt.Equal(at))
}

func TestSetCompletedLosingRaceReturnsStoredRow(t *testing.T) {
	gets := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets++
			if gets == 1 {
				io.WriteString(w, `[{"id":"t1","title":"x","status":"pending"}]`)
				return
			}
			io.WriteString(w, `[{"id":"t1","title":"x","status":"completed","completed_at":"2025-12-10T12:00:01Z"}]`)
		case http.MethodPatch:
			// another request completed it between the read and the write
			io.WriteString(w, `[]`)
		}
	})

	got, err := c.SetCompleted(context.Background(), "t1", time.Date(2025, 12, 10, 12, 0, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, gets)
	assert.Equal(t, 1, got.CompletedAt.Second(), "first completion time is kept")
}

func TestMarkRecurringCompletedRetriesOnConflict(t *testing.T) {
	reads, writes := 0, 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			reads++
			io.WriteString(w, `[{"id":"r1","title":"x","description":"texto","updated_at":"2025-12-10T09:00:00Z"}]`)
		case http.MethodPatch:
			writes++
			assert.Equal(t, "eq.2025-12-10T09:00:00Z", r.URL.Query().Get("updated_at"))
			if writes == 1 {
				io.WriteString(w, `[]`)
				return
			}
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "texto\n\n<recurrence>{\"completed_dates\":[\"2025-12-10\"]}</recurrence>", body["description"])
			io.WriteString(w, `[{"id":"r1","title":"x","description":`+quote(body["description"])+`,"is_recurring":true,"recurrence_type":"daily"}]`)
		}
	})

	got, err := c.MarkRecurringCompleted(context.Background(), "r1", calendar.MustParse("2025-12-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, reads)
	assert.Equal(t, 2, writes)
	assert.True(t, got.Ledger.Has(calendar.MustParse("2025-12-10")))
	assert.Equal(t, "texto", got.Description)
}

func TestHTTPErrorsBecomeRepositoryErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})

	_, err := c.ListActiveClients(context.Background())
	var re *store.RepositoryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "list_active_clients", re.Op)
	assert.Contains(t, err.Error(), "status 500")
	assert.Error(t, c.Ping(context.Background()))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
