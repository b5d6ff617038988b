package utils

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/julianstephens/habitual/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}

// FormatDate returns the calendar date of t in its own location (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// Today returns the local date string for now in loc.
func Today(now time.Time, loc *time.Location) string {
	return FormatDate(now.In(loc))
}

// ParseDate parses a YYYY-MM-DD string as midnight in loc.
func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// ValidateDate reports whether s is a YYYY-MM-DD calendar date.
func ValidateDate(s string) bool {
	_, err := time.Parse(constants.DateFormat, s)
	return err == nil
}

// AddDays shifts a YYYY-MM-DD string by n calendar days.
// The arithmetic is done on the calendar (time.Date normalisation), so DST
// transitions never skip or repeat a day.
func AddDays(dateStr string, n int) (string, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return "", err
	}
	return FormatDate(time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, time.UTC)), nil
}

// DaysBetween returns the number of calendar days from a to b (b - a).
func DaysBetween(a, b string) (int, error) {
	ta, err := time.Parse(constants.DateFormat, a)
	if err != nil {
		return 0, err
	}
	tb, err := time.Parse(constants.DateFormat, b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// DaysInMonth returns the number of days in the calendar month of dateStr.
func DaysInMonth(dateStr string) (int, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return 0, err
	}
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day(), nil
}

// ValidateTimeFormat checks if the string matches HH:MM.
func ValidateTimeFormat(timeStr string) bool {
	_, err := time.Parse(constants.TimeFormat, timeStr)
	return err == nil
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ResolveDate turns user input into a local date string. Empty input means
// today; YYYY-MM-DD is taken as-is; anything else goes through natural
// language parsing ("yesterday", "last friday", "3 days ago").
func ResolveDate(input string, now time.Time, loc *time.Location) (string, error) {
	if input == "" {
		return Today(now, loc), nil
	}
	if ValidateDate(input) {
		return input, nil
	}

	r, err := dateParser.Parse(input, now.In(loc))
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if r == nil {
		return "", fmt.Errorf("invalid date %q (expected YYYY-MM-DD or a phrase like \"yesterday\")", input)
	}
	return FormatDate(r.Time.In(loc)), nil
}
