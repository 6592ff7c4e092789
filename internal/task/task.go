// Package task holds the records the bot reads and writes through the
// repository: tasks (activities), clients and users.
package task

import (
	"strings"
	"time"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusDoing         Status = "doing"
	StatusCompleted     Status = "completed"
	StatusWaitingClient Status = "waiting-client"
	StatusWaitingTeam   Status = "waiting-team"
)

// OpenStatuses lists every status other than completed.
var OpenStatuses = []Status{StatusPending, StatusDoing, StatusWaitingClient, StatusWaitingTeam}

// PendingStatuses is the set shown by the "pendentes" command.
var PendingStatuses = []Status{StatusPending, StatusWaitingClient, StatusWaitingTeam}

// Open reports whether s is any status other than completed.
func (s Status) Open() bool {
	return s != StatusCompleted
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDoing, StatusCompleted, StatusWaitingClient, StatusWaitingTeam:
		return true
	}
	return false
}

// RecurrenceType names how a recurring task repeats.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceCustom  RecurrenceType = "custom"
)

// Recurrence describes a repeating task. Anchor is the date the pattern is
// measured from (the task's stored date).
type Recurrence struct {
	Type   RecurrenceType
	Anchor calendar.Date
}

// ClientRef is a client hydrated through a relation join.
type ClientRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is an activity record.
type Task struct {
	ID          string
	Title       string
	Description string

	AssignedTo     string
	AssignedToName string
	AssignedUsers  []string

	ClientID   string
	ClientName string     // denormalized name column
	Client     *ClientRef // joined relation
	ClientAlt  *ClientRef // alternate relation

	Date             calendar.Date
	Status           Status
	EstimatedMinutes int
	ActualMinutes    int

	Recurrence *Recurrence
	Ledger     Ledger

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// IsRecurring reports whether the task repeats.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// AssignedToUser applies the OR rule: a task belongs to a user when either
// the single-assignee field or the assignee set contains the user.
func (t *Task) AssignedToUser(userID string) bool {
	if userID == "" {
		return false
	}
	if t.AssignedTo == userID {
		return true
	}
	for _, u := range t.AssignedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// DisplayClientName picks the client label: denormalized name, then the
// joined relation, then the alternate relation.
func (t *Task) DisplayClientName() string {
	if n := strings.TrimSpace(t.ClientName); n != "" {
		return n
	}
	if t.Client != nil && strings.TrimSpace(t.Client.Name) != "" {
		return strings.TrimSpace(t.Client.Name)
	}
	if t.ClientAlt != nil && strings.TrimSpace(t.ClientAlt.Name) != "" {
		return strings.TrimSpace(t.ClientAlt.Name)
	}
	return ""
}

// EffectiveStatus returns the stored status, treating empty or unknown
// values as pending.
func (t *Task) EffectiveStatus() Status {
	if t.Status.Valid() {
		return t.Status
	}
	return StatusPending
}

// Client is a customer that tasks are billed against.
type Client struct {
	ID     string
	Name   string
	Active bool
}

// User is a team member. Phone, when set, is the chat identity key.
type User struct {
	ID    string
	Name  string
	Phone string
}

// Draft is a task about to be created.
type Draft struct {
	Title            string
	Description      string
	ClientName       string
	ClientID         string
	EstimatedMinutes int
	Date             calendar.Date
}

// DefaultEstimateMinutes is used when a draft carries no estimate.
const DefaultEstimateMinutes = 60
