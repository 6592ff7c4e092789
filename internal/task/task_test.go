package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
)

func TestAssignedToUser(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"single assignee", Task{AssignedTo: "u1"}, true},
		{"assignee set", Task{AssignedUsers: []string{"u2", "u1"}}, true},
		{"both fields, other user", Task{AssignedTo: "u2", AssignedUsers: []string{"u3"}}, false},
		{"unassigned", Task{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.task.AssignedToUser("u1"))
		})
	}
	assert.False(t, (&Task{AssignedTo: ""}).AssignedToUser(""))
}

func TestDisplayClientName(t *testing.T) {
	joined := &ClientRef{ID: "c1", Name: "EVO"}
	alt := &ClientRef{ID: "c1", Name: "EVO Alt"}

	assert.Equal(t, "Clínica", (&Task{ClientName: "Clínica", Client: joined, ClientAlt: alt}).DisplayClientName())
	assert.Equal(t, "EVO", (&Task{ClientName: "  ", Client: joined, ClientAlt: alt}).DisplayClientName())
	assert.Equal(t, "EVO Alt", (&Task{Client: &ClientRef{}, ClientAlt: alt}).DisplayClientName())
	assert.Equal(t, "", (&Task{}).DisplayClientName())
}

func TestEffectiveStatus(t *testing.T) {
	assert.Equal(t, StatusPending, (&Task{}).EffectiveStatus())
	assert.Equal(t, StatusPending, (&Task{Status: "archived"}).EffectiveStatus())
	assert.Equal(t, StatusDoing, (&Task{Status: StatusDoing}).EffectiveStatus())
	assert.True(t, StatusWaitingTeam.Open())
	assert.False(t, StatusCompleted.Open())
}

func TestLedgerAddKeepsOrderAndUniqueness(t *testing.T) {
	var l Ledger
	assert.True(t, l.Add(calendar.MustParse("2025-12-10")))
	assert.True(t, l.Add(calendar.MustParse("2025-12-08")))
	assert.False(t, l.Add(calendar.MustParse("2025-12-10")))
	assert.False(t, l.Add(calendar.Date{}))
	assert.Equal(t, []calendar.Date{calendar.MustParse("2025-12-08"), calendar.MustParse("2025-12-10")}, l.Dates())
	assert.True(t, l.Has(calendar.MustParse("2025-12-08")))
	assert.False(t, l.Has(calendar.MustParse("2025-12-09")))
}

func TestParseLedger(t *testing.T) {
	desc := "Conferir extratos\n\n<recurrence>{\"completed_dates\":[\"2025-12-10\",\"bad\",\"2025-12-09\",\"2025-12-10\"]}</recurrence>"
	l := ParseLedger(desc)
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Has(calendar.MustParse("2025-12-09")))

	for _, broken := range []string{
		"",
		"no markup here",
		"<recurrence>{not json}</recurrence>",
		"<recurrence>{\"completed_dates\":[\"2025-12-10\"]}",
	} {
		assert.Equal(t, 0, ParseLedger(broken).Len(), broken)
	}
}

func TestEmbedLedger(t *testing.T) {
	l := NewLedger(calendar.MustParse("2025-12-10"))
	out := EmbedLedger("Conferir extratos", l)
	assert.Equal(t, "Conferir extratos\n\n<recurrence>{\"completed_dates\":[\"2025-12-10\"]}</recurrence>", out)

	l.Add(calendar.MustParse("2025-12-11"))
	out = EmbedLedger(out, l)
	assert.Equal(t, 2, ParseLedger(out).Len())
	assert.Equal(t, "Conferir extratos", StripLedger(out))

	assert.Equal(t, "Conferir extratos", EmbedLedger(out, Ledger{}))
	assert.Equal(t, "<recurrence>{\"completed_dates\":[\"2025-12-10\"]}</recurrence>",
		EmbedLedger("", NewLedger(calendar.MustParse("2025-12-10"))))
}

func TestEmbedLedgerKeepsOtherKeys(t *testing.T) {
	desc := "Backup\n\n<recurrence>{\"completed_dates\":[\"2025-12-09\"],\"skip_weekends\":true}</recurrence>"

	out := EmbedLedger(desc, NewLedger(calendar.MustParse("2025-12-10")))
	assert.Equal(t, "Backup\n\n<recurrence>{\"completed_dates\":[\"2025-12-10\"],\"skip_weekends\":true}</recurrence>", out)

	assert.Equal(t, "Backup\n\n<recurrence>{\"skip_weekends\":true}</recurrence>", EmbedLedger(desc, Ledger{}))

	assert.Equal(t, "<recurrence>{\"completed_dates\":[\"2025-12-10\"]}</recurrence>",
		EmbedLedger("<recurrence>null</recurrence>", NewLedger(calendar.MustParse("2025-12-10"))))
}
