package task

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/calendar"
)

const (
	ledgerOpen  = "<recurrence>"
	ledgerClose = "</recurrence>"
)

// Ledger is the set of dates on which a recurring task was marked done.
// Dates are kept sorted and unique.
type Ledger struct {
	dates []calendar.Date
}

// NewLedger builds a ledger, dropping duplicates.
func NewLedger(dates ...calendar.Date) Ledger {
	var l Ledger
	for _, d := range dates {
		l.Add(d)
	}
	return l
}

// Has reports whether d is recorded.
func (l Ledger) Has(d calendar.Date) bool {
	i := sort.Search(len(l.dates), func(i int) bool { return !l.dates[i].Before(d) })
	return i < len(l.dates) && l.dates[i] == d
}

// Add records d and reports whether it was new.
func (l *Ledger) Add(d calendar.Date) bool {
	if d.IsZero() || l.Has(d) {
		return false
	}
	i := sort.Search(len(l.dates), func(i int) bool { return l.dates[i].After(d) })
	l.dates = append(l.dates, calendar.Date{})
	copy(l.dates[i+1:], l.dates[i:])
	l.dates[i] = d
	return true
}

// Dates returns a copy of the recorded dates in ascending order.
func (l Ledger) Dates() []calendar.Date {
	out := make([]calendar.Date, len(l.dates))
	copy(out, l.dates)
	return out
}

// Len returns the number of recorded dates.
func (l Ledger) Len() int {
	return len(l.dates)
}

type ledgerPayload struct {
	CompletedDates []string `json:"completed_dates"`
}

// ParseLedger extracts the ledger embedded in a description field. Missing
// or malformed markup yields an empty ledger; entries that are not valid
// dates are skipped.
func ParseLedger(description string) Ledger {
	body, ok := ledgerBody(description)
	if !ok {
		return Ledger{}
	}
	var p ledgerPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Ledger{}
	}
	var l Ledger
	for _, s := range p.CompletedDates {
		if d, err := calendar.Parse(s); err == nil {
			l.Add(d)
		}
	}
	return l
}

// StripLedger returns the description with the ledger markup removed.
func StripLedger(description string) string {
	start := strings.Index(description, ledgerOpen)
	if start < 0 {
		return description
	}
	end := strings.Index(description[start:], ledgerClose)
	if end < 0 {
		return description
	}
	end += start + len(ledgerClose)
	return strings.TrimSpace(description[:start] + description[end:])
}

// EmbedLedger writes l into description, replacing the completed_dates of
// any previous markup. Other keys in the markup are kept. The markup is
// removed when nothing is left in it.
func EmbedLedger(description string, l Ledger) string {
	fields := map[string]json.RawMessage{}
	if body, ok := ledgerBody(description); ok {
		// a fragment that is not an object is replaced wholesale
		if err := json.Unmarshal([]byte(body), &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	delete(fields, "completed_dates")
	if l.Len() > 0 {
		dates := make([]string, 0, l.Len())
		for _, d := range l.dates {
			dates = append(dates, d.String())
		}
		fields["completed_dates"], _ = json.Marshal(dates)
	}

	text := StripLedger(description)
	if len(fields) == 0 {
		return text
	}
	raw, _ := json.Marshal(fields)
	markup := ledgerOpen + string(raw) + ledgerClose
	if text == "" {
		return markup
	}
	return text + "\n\n" + markup
}

func ledgerBody(description string) (string, bool) {
	start := strings.Index(description, ledgerOpen)
	if start < 0 {
		return "", false
	}
	rest := description[start+len(ledgerOpen):]
	end := strings.Index(rest, ledgerClose)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
