// Package weekdate implements the calendar rules the planner is organised around:
// Sunday-based weeks, YYYY-MM-DD day keys and YYYY-NN week ids.
//
// All functions work in the location carried by their time.Time argument, so two
// instants on the same local calendar day always share a day key.
package weekdate

import (
	"fmt"
	"time"
)

// DateKeyLayout is the time layout of day keys.
const DateKeyLayout = "2006-01-02"

// midnight truncates t to the start of its calendar day in t's location.
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns the Sunday of the week containing t, at midnight.
func WeekStart(t time.Time) time.Time {
	day := midnight(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekEnd returns the Saturday of the week containing t, at midnight.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 6)
}

// DateKey formats t as YYYY-MM-DD in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// WeekID returns "{year}-{NN}" with
// NN = ceil((weekday(Jan 1) + 1 + days since Jan 1) / 7).
// This is not ISO-8601 numbering; stored ids depend on it staying exactly this.
func WeekID(t time.Time) string {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	n := int(jan1.Weekday()) + 1 + days
	week := (n + 6) / 7
	return fmt.Sprintf("%d-%02d", t.Year(), week)
}

// InRange reports whether t falls on a day within [start, end], both inclusive.
// Day keys are compared, never instants.
func InRange(t, start, end time.Time) bool {
	k := DateKey(t)
	return k >= DateKey(start) && k <= DateKey(end)
}

// SameDay reports whether a and b share a day key.
func SameDay(a, b time.Time) bool {
	return DateKey(a) == DateKey(b)
}

// WeekDates returns the seven midnights of the week containing t, Sunday first.
func WeekDates(t time.Time) []time.Time {
	start := WeekStart(t)
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

// PreviousWeek returns the Sunday seven days before the week start of t.
func PreviousWeek(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, -7)
}

// NextWeek returns the Sunday seven days after the week start of t.
func NextWeek(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 7)
}

// Days lists every midnight from start to end inclusive. Empty when end is before start.
func Days(start, end time.Time) []time.Time {
	from, to := midnight(start), midnight(end)
	if to.Before(from) {
		return nil
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// ParseDateKey parses a strict YYYY-MM-DD key as midnight in loc.
func ParseDateKey(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateKeyLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatRange renders "Jan 2 - Jan 8, 2024", or with both years when they differ.
func FormatRange(start, end time.Time) string {
	if start.Year() != end.Year() {
		return start.Format("Jan 2, 2006") + " - " + end.Format("Jan 2, 2006")
	}
	return start.Format("Jan 2") + " - " + end.Format("Jan 2, 2006")
}

// Week is the resolved calendar window of a meal plan.
type Week struct {
	ID       string    `json:"week_id"`
	Start    time.Time `json:"week_start"`
	End      time.Time `json:"week_end"`
	StartKey string    `json:"start_key"`
	EndKey   string    `json:"end_key"`
	Range    string    `json:"date_range"`
}

// For resolves the week containing t.
func For(t time.Time) Week {
	start := WeekStart(t)
	end := start.AddDate(0, 0, 6)
	return Week{
		ID:       WeekID(start),
		Start:    start,
		End:      end,
		StartKey: DateKey(start),
		EndKey:   DateKey(end),
		Range:    FormatRange(start, end),
	}
}
