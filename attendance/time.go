package attendance

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day without a time of day (work dates, assignment bounds)
// =============================================================================

const DateLayout = "2006-01-02"

// Date is a calendar day. It carries no location: instants are only produced
// when a Date is combined with a ClockTime and a *time.Location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateIn returns the calendar day of t as seen in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	return DateOf(t.In(loc))
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) utc() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

// Comparison
func (d Date) Before(o Date) bool        { return d.utc().Before(o.utc()) }
func (d Date) After(o Date) bool         { return d.utc().After(o.utc()) }
func (d Date) Equal(o Date) bool         { return d == o }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.utc().AddDate(0, 0, n)) }

// Properties
func (d Date) IsZero() bool          { return d == Date{} }
func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }
func (d Date) String() string        { return d.utc().Format(DateLayout) }

// Midnight returns the first instant of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant at which the wall clock in loc shows c on this day.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of calendar days from `from` to `to`.
// Negative when to is before from.
func DaysBetween(from, to Date) int {
	return int(to.utc().Sub(from.utc()).Hours() / 24)
}

// =============================================================================
// CLOCK TIME - Day-local wall clock time ("09:00", "22:30")
// =============================================================================

// ClockTime is a wall clock time expressed in minutes after midnight.
type ClockTime int

const minutesPerDay = 24 * 60

func NewClockTime(hour, minute int) ClockTime { return ClockTime(hour*60 + minute) }

// ParseClockTime accepts "15:04" and "15:04:05" (seconds are dropped).
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q (use HH:MM)", s)
}

func (c ClockTime) Hour() int      { return int(c) / 60 }
func (c ClockTime) Minute() int    { return int(c) % 60 }
func (c ClockTime) Valid() bool    { return c >= 0 && c < minutesPerDay }
func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Clock is a convenience for building optional clock fields in literals.
func Clock(hour, minute int) *ClockTime {
	c := NewClockTime(hour, minute)
	return &c
}

// =============================================================================
// DATE RANGE - Inclusive span of work dates (sweeps, record queries)
// =============================================================================

type DateRange struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.From) && d.BeforeOrEqual(r.To)
}

// Days returns every date in the range in ascending order.
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.From; d.BeforeOrEqual(r.To); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) Valid() bool { return !r.From.IsZero() && r.From.BeforeOrEqual(r.To) }

func (r DateRange) String() string { return "[" + r.From.String() + ", " + r.To.String() + "]" }

// =============================================================================
// INTERVAL - Span of instants [Start, End)
// =============================================================================

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) IsZero() bool            { return i.Start.IsZero() && i.End.IsZero() }
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Covers reports whether t lies inside the closed interval [Start, End].
// Punch windows are closed on both ends.
func (i Interval) Covers(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// Intersect returns the overlapping part of two intervals, or a zero Interval.
func (i Interval) Intersect(o Interval) Interval {
	start, end := i.Start, i.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return Interval{}
	}
	return Interval{Start: start, End: end}
}

// Union returns the smallest interval containing both.
func (i Interval) Union(o Interval) Interval {
	if i.IsZero() {
		return o
	}
	if o.IsZero() {
		return i
	}
	start, end := i.Start, i.End
	if o.Start.Before(start) {
		start = o.Start
	}
	if o.End.After(end) {
		end = o.End
	}
	return Interval{Start: start, End: end}
}

// wholeMinutes truncates a duration to whole minutes.
func wholeMinutes(d time.Duration) int { return int(d / time.Minute) }

func minutesDuration(n int) time.Duration { return time.Duration(n) * time.Minute }
