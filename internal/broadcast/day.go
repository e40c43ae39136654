// Package broadcast implements the broadcaster's calendar: the programming day
// that rolls over at 05:00 local time, the timefree retention window, and the
// compact timestamp encodings used by the catalog API.
package broadcast

import (
	"fmt"
	"time"
)

const (
	// DayOffset is how far the programming day lags civil midnight.
	DayOffset = 5 * time.Hour
	// RetentionDays is the number of days a program stays playable upstream.
	RetentionDays = 7
	// ProcessingLagDays is how many days behind now the newest complete listing is.
	ProcessingLagDays = 1

	graceWindowHour    = 5
	graceWindowMinutes = 15

	timestampLayout = "20060102150405"
	dateLayout      = "20060102"
	isoDateLayout   = "2006-01-02"
)

// JST is the broadcaster's local zone.
var JST = time.FixedZone("JST", 9*60*60)

// Date is a civil calendar date without a time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate normalizes the given fields into a Date (e.g. day 32 rolls over).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Time returns midnight UTC of the date, suitable for DATE columns.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// DaysSince returns the number of days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()) / (24 * time.Hour))
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(isoDateLayout)
}

// Encode formats the date as YYYYMMDD, the form used in listing URLs.
func (d Date) Encode() string {
	return d.Time().Format(dateLayout)
}

// DecodeDate parses a YYYYMMDD string.
func DecodeDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("decode date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// EncodeTime formats t as YYYYMMDDhhmmss in JST.
func EncodeTime(t time.Time) string {
	return t.In(JST).Format(timestampLayout)
}

// DecodeTime parses a YYYYMMDDhhmmss string as a JST instant.
func DecodeTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, s, JST)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}

// DayOf returns the programming day t belongs to.
func DayOf(t time.Time) Date {
	return DateOf(t.Add(-DayOffset))
}

// SameDay reports whether a and b fall on the same programming day.
func SameDay(a, b time.Time) bool {
	return DayOf(a) == DayOf(b)
}

// OldestFetchableDate is the earliest programming day still available upstream.
func OldestFetchableDate(now time.Time) Date {
	return DateOf(now.Add(-RetentionDays*24*time.Hour - DayOffset))
}

// NewestCompleteDate is the latest programming day whose listing is final.
func NewestCompleteDate(now time.Time) Date {
	return DateOf(now.Add(-ProcessingLagDays*24*time.Hour - DayOffset))
}

// Window returns the inclusive, ascending list of fetchable days for now.
func Window(now time.Time) []Date {
	return Range(OldestFetchableDate(now), NewestCompleteDate(now))
}

// Range returns every date in [from, to], ascending. It is empty when to is before from.
func Range(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	days := make([]Date, 0, to.DaysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// InGraceWindow reports whether t is within 05:00–05:15 JST, right after the
// day rolls over while the newest listing may still be settling.
func InGraceWindow(t time.Time) bool {
	local := t.In(JST)
	return local.Hour() == graceWindowHour && local.Minute() <= graceWindowMinutes
}

// Now returns the current instant in JST.
func Now() time.Time {
	return time.Now().In(JST)
}
