package qc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a calendar-aware time step, as expressed by an ISO-8601
// duration string. The month component steps by calendar month, so "P1M"
// from Jan 31 lands on Feb 28/29; the remainder is a fixed duration.
type Duration struct {
	Months int
	Fixed  time.Duration
}

func (d Duration) IsZero() bool {
	return d.Months == 0 && d.Fixed == 0
}

func (d Duration) Neg() Duration {
	return Duration{Months: -d.Months, Fixed: -d.Fixed}
}

// AddTo steps t forward by one resolution unit: calendar months first,
// then the fixed part.
func (d Duration) AddTo(t time.Time) time.Time {
	if d.Months != 0 {
		t = t.AddDate(0, d.Months, 0)
	}
	return t.Add(d.Fixed)
}

// ParseISODuration parses durations of the form PnYnMnDTnHnMnS. Weeks are
// not supported, matching the upstream observation APIs this system
// integrates with.
func ParseISODuration(input string) (Duration, error) {
	rest, ok := strings.CutPrefix(input, "P")
	if !ok {
		return Duration{}, fmt.Errorf("duration %q is not prefixed with P", input)
	}

	datespec, timespec, _ := strings.Cut(rest, "T")

	years, datespec, err := cutTerminated(datespec, 'Y')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	months, datespec, err := cutTerminated(datespec, 'M')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	days, datespec, err := cutTerminated(datespec, 'D')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	if datespec != "" {
		return Duration{}, fmt.Errorf("duration %q: trailing characters %q in date part", input, datespec)
	}

	hours, timespec, err := cutTerminated(timespec, 'H')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	mins, timespec, err := cutTerminated(timespec, 'M')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	secs, timespec, err := cutTerminated(timespec, 'S')
	if err != nil {
		return Duration{}, fmt.Errorf("duration %q: %w", input, err)
	}
	if timespec != "" {
		return Duration{}, fmt.Errorf("duration %q: trailing characters %q in time part", input, timespec)
	}

	d := Duration{
		Months: years*12 + months,
		Fixed: time.Duration(days)*24*time.Hour +
			time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second,
	}
	if d.IsZero() {
		return Duration{}, fmt.Errorf("duration %q is zero", input)
	}
	return d, nil
}

func cutTerminated(input string, terminator byte) (int, string, error) {
	intStr, rest, found := strings.Cut(input, string(terminator))
	if !found {
		return 0, input, nil
	}
	n, err := strconv.Atoi(intStr)
	if err != nil {
		return 0, "", fmt.Errorf("%q is not a valid integer before %q", intStr, string(terminator))
	}
	if n < 0 {
		return 0, "", fmt.Errorf("negative component %d before %q", n, string(terminator))
	}
	return n, rest, nil
}
