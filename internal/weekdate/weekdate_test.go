package weekdate

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekStartAndEnd(t *testing.T) {
	tests := []struct {
		name      string
		in        time.Time
		wantStart string
		wantEnd   string
	}{
		{"monday", time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), "2023-12-31", "2024-01-06"},
		{"sunday is its own start", date(2024, 1, 7), "2024-01-07", "2024-01-13"},
		{"saturday late evening", time.Date(2024, 1, 13, 23, 59, 59, 0, time.UTC), "2024-01-07", "2024-01-13"},
		{"leap day", date(2024, 2, 29), "2024-02-25", "2024-03-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := WeekStart(tt.in)
			if DateKey(start) != tt.wantStart {
				t.Errorf("expected start %s, got %s", tt.wantStart, DateKey(start))
			}
			if start.Hour() != 0 || start.Minute() != 0 {
				t.Errorf("expected midnight, got %s", start)
			}
			if start.Weekday() != time.Sunday {
				t.Errorf("expected Sunday, got %s", start.Weekday())
			}
			if got := DateKey(WeekEnd(tt.in)); got != tt.wantEnd {
				t.Errorf("expected end %s, got %s", tt.wantEnd, got)
			}
		})
	}
}

func TestWeekStartKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// DST starts on Sunday 2024-03-10 in New York.
	in := time.Date(2024, 3, 12, 10, 0, 0, 0, loc)
	start := WeekStart(in)

	if start.Location() != loc {
		t.Errorf("expected location %s, got %s", loc, start.Location())
	}
	if DateKey(start) != "2024-03-10" || start.Hour() != 0 {
		t.Errorf("expected local midnight of 2024-03-10, got %s", start)
	}
	if got := DateKey(WeekEnd(in)); got != "2024-03-16" {
		t.Errorf("expected end 2024-03-16, got %s", got)
	}
}

func TestDateKeyIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 5, 6, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, 5, 6, 23, 59, 59, 0, time.UTC)
	if DateKey(a) != "2024-05-06" || !SameDay(a, b) {
		t.Errorf("expected same day key, got %s and %s", DateKey(a), DateKey(b))
	}
}

func TestWeekID(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{date(2024, 1, 1), "2024-01"},
		{date(2024, 1, 6), "2024-01"},
		{date(2024, 1, 7), "2024-02"},
		{date(2023, 12, 31), "2023-53"},
		{date(2023, 1, 1), "2023-01"},
		{date(2023, 1, 8), "2023-02"},
		{date(2024, 12, 29), "2024-53"},
	}

	for _, tt := range tests {
		if got := WeekID(tt.in); got != tt.want {
			t.Errorf("WeekID(%s): expected %s, got %s", DateKey(tt.in), tt.want, got)
		}
	}
}

func TestWeekIDIsDeterministic(t *testing.T) {
	in := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)
	first := WeekID(in)
	for i := 0; i < 10; i++ {
		if got := WeekID(in); got != first {
			t.Fatalf("expected %s on every call, got %s", first, got)
		}
	}
}

func TestInRangeInclusive(t *testing.T) {
	start := time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		in   time.Time
		want bool
	}{
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := InRange(tt.in, start, end); got != tt.want {
			t.Errorf("InRange(%s): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestWeekDatesAndNeighbours(t *testing.T) {
	dates := WeekDates(date(2024, 1, 3))
	if len(dates) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(dates))
	}
	if DateKey(dates[0]) != "2023-12-31" || DateKey(dates[6]) != "2024-01-06" {
		t.Errorf("unexpected week: %s .. %s", DateKey(dates[0]), DateKey(dates[6]))
	}
	if got := DateKey(PreviousWeek(date(2024, 1, 3))); got != "2023-12-24" {
		t.Errorf("expected previous week 2023-12-24, got %s", got)
	}
	if got := DateKey(NextWeek(date(2024, 1, 3))); got != "2024-01-07" {
		t.Errorf("expected next week 2024-01-07, got %s", got)
	}
}

func TestDays(t *testing.T) {
	days := Days(date(2024, 2, 27), date(2024, 3, 1))
	if len(days) != 4 {
		t.Fatalf("expected 4 days, got %d", len(days))
	}
	if DateKey(days[2]) != "2024-02-29" {
		t.Errorf("expected leap day, got %s", DateKey(days[2]))
	}
	if got := Days(date(2024, 3, 1), date(2024, 2, 1)); got != nil {
		t.Errorf("expected nil for inverted range, got %v", got)
	}
}

func TestParseDateKey(t *testing.T) {
	got, err := ParseDateKey("2024-01-01", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2024, 1, 1)) {
		t.Errorf("expected 2024-01-01 midnight, got %s", got)
	}

	for _, bad := range []string{"", "2024-1-1", "01/02/2024", "2024-02-30"} {
		if _, err := ParseDateKey(bad, time.UTC); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFor(t *testing.T) {
	w := For(date(2024, 1, 10))
	if w.ID != "2024-02" || w.StartKey != "2024-01-07" || w.EndKey != "2024-01-13" {
		t.Errorf("unexpected week: %+v", w)
	}
	if w.Range != "Jan 7 - Jan 13, 2024" {
		t.Errorf("unexpected range %q", w.Range)
	}

	w = For(date(2024, 1, 3))
	if w.ID != "2023-53" {
		t.Errorf("expected week id 2023-53, got %s", w.ID)
	}
	if w.Range != "Dec 31, 2023 - Jan 6, 2024" {
		t.Errorf("unexpected range %q", w.Range)
	}
}
