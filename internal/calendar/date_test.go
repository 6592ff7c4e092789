package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("2025-12-10")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.December, Day: 10}, d)

	d, err = Parse("2025-12-10T23:30:00-03:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-10", d.String(), "time component must not shift the day")

	for _, bad := range []string{"", "10/12/2025", "2025-13-01", "2025-02-30", "25-01-01", "2025-xx-01"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestLeapYear(t *testing.T) {
	_, err := New(2024, time.February, 29)
	assert.NoError(t, err)
	_, err = New(2025, time.February, 29)
	assert.Error(t, err)
	assert.Equal(t, 28, DaysIn(1900, time.February))
	assert.Equal(t, 29, DaysIn(2000, time.February))
}

func TestWeekdayAndArithmetic(t *testing.T) {
	d := MustParse("2025-12-10")
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.Equal(t, "2026-01-01", MustParse("2025-12-31").AddDays(1).String())
	assert.Equal(t, "2024-02-29", MustParse("2024-03-01").AddDays(-1).String())
	assert.Equal(t, 3, MustParse("2025-12-07").DaysUntil(d))
	assert.True(t, MustParse("2025-12-09").Before(d))
	assert.True(t, MustParse("2026-01-01").After(d))
	assert.Equal(t, 0, d.Compare(MustParse("2025-12-10")))
}

func TestFormatting(t *testing.T) {
	d := MustParse("2025-01-05")
	assert.Equal(t, "05/01/2025", d.BR())
	assert.Equal(t, "", Date{}.String())
}

func TestJSON(t *testing.T) {
	var v struct {
		D Date `json:"d"`
		E Date `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-12-15","e":null}`), &v))
	assert.Equal(t, "2025-12-15", v.D.String())
	assert.True(t, v.E.IsZero())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-12-15","e":null}`, string(out))
}

func TestOfUsesLocation(t *testing.T) {
	sp := time.FixedZone("BRT", -3*3600)
	instant := time.Date(2025, 12, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-12-10", Of(instant.In(sp)).String())
	assert.Equal(t, "2025-12-11", Of(instant).String())
}
