// Package relativetime parses human-readable durations such as "60 minutes"
// or "1 hour 30 minutes".
package relativetime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is wrapped by every parse failure.
var ErrInvalidDuration = errors.New("invalid duration")

// Months and years have fixed lengths.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var units = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "wk": week, "wks": week, "week": week, "weeks": week,
	"mo": month, "mos": month, "month": month, "months": month,
	"y": year, "yr": year, "yrs": year, "year": year, "years": year,
}

var words = map[string]int64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "twelve": 12,
	"fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
}

// Parse converts expr into a duration. The empty string, "none" and "never"
// mean no duration and return 0. Go duration syntax ("1h30m") is accepted, as
// are sequences of "<number> <unit>" pairs optionally joined by "and" or
// commas. A month is 30 days and a year 365. Failures wrap ErrInvalidDuration,
// including expressions longer than a time.Duration can hold.
func Parse(expr string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	switch s {
	case "", "none", "never", "0":
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, expr)
		}
		return d, nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})

	var total time.Duration
	pairs := 0
	for i := 0; i < len(fields); i++ {
		if fields[i] == "and" {
			continue
		}

		n, unit, err := splitQuantity(fields[i])
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, expr, err)
		}
		if unit == "" {
			if i+1 >= len(fields) {
				return 0, fmt.Errorf("%w: %q: missing unit after %s", ErrInvalidDuration, expr, fields[i])
			}
			i++
			unit = fields[i]
		}

		size, ok := units[unit]
		if !ok {
			return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidDuration, expr, unit)
		}
		part := n * float64(size)
		if part >= math.MaxInt64 || float64(total)+part >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDuration, expr)
		}
		total += time.Duration(part)
		pairs++
	}

	if pairs == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, expr)
	}
	return total, nil
}

// splitQuantity splits "90", "1.5", "ten" or "30min" into a number and an
// optional attached unit.
func splitQuantity(field string) (float64, string, error) {
	if n, ok := words[field]; ok {
		return float64(n), "", nil
	}

	end := 0
	for end < len(field) && (field[end] >= '0' && field[end] <= '9' || field[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, "", fmt.Errorf("expected a number, got %q", field)
	}

	n, err := strconv.ParseFloat(field[:end], 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad number %q", field[:end])
	}
	return n, field[end:], nil
}
