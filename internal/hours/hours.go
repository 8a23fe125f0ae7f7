// Package hours resolves a business's weekly schedule to the open interval
// for a concrete date.
package hours

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marge-app/booking/internal/model"
)

// Closed is the literal schedule entry marking a day with no hours.
const Closed = "closed"

var ErrMalformed = errors.New("malformed business hours")

// Range is an open interval within a single day, in minutes since midnight.
// Open is inclusive, Close exclusive.
type Range struct {
	Open  int
	Close int
}

// Resolve maps a calendar date to the open interval on that weekday.
// The second return is false when the business is closed that day. A
// malformed entry returns ErrMalformed; callers must treat that as closed
// rather than inventing hours from broken configuration.
func Resolve(week model.WeekSchedule, date time.Time) (Range, bool, error) {
	entry := strings.TrimSpace(week[date.Weekday()])
	if strings.EqualFold(entry, Closed) {
		return Range{}, false, nil
	}
	if entry == "" {
		return Range{}, false, fmt.Errorf("%w: empty entry for %s", ErrMalformed, date.Weekday())
	}

	openPart, closePart, found := strings.Cut(entry, "-")
	if !found {
		return Range{}, false, fmt.Errorf("%w: %q", ErrMalformed, entry)
	}
	open, err := ParseClock(openPart)
	if err != nil {
		return Range{}, false, fmt.Errorf("%w: %q", ErrMalformed, entry)
	}
	close, err := ParseClock(closePart)
	if err != nil {
		return Range{}, false, fmt.Errorf("%w: %q", ErrMalformed, entry)
	}
	if close <= open {
		return Range{}, false, fmt.Errorf("%w: %q closes before it opens", ErrMalformed, entry)
	}
	return Range{Open: open, Close: close}, true, nil
}

// ParseClock parses "HH:MM" (a single-digit hour is accepted, as in "9:00")
// into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := atoiStrict(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	m, err := atoiStrict(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}

// Clock formats minutes since midnight as zero-padded "HH:MM".
func Clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func atoiStrict(s string) (int, error) {
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
