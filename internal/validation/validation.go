// Package validation parses and checks dashboard query parameters and CLI
// date arguments.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrNameEmpty is returned when a sensor or area name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("name is required")

// ErrNameTooLong is returned when a name exceeds the maximum length.
var ErrNameTooLong = errors.New("name too long")

// ErrNameInvalidChars is returned when a name contains control characters.
var ErrNameInvalidChars = errors.New("name contains invalid characters")

// ErrInvalidYear is returned when a year path segment is not a four-digit year.
var ErrInvalidYear = errors.New("year must have four digits")

// ErrInvalidDay is returned when a CLI date does not match the expected layout.
var ErrInvalidDay = errors.New("invalid date")

// ErrRangeReversed is returned when a date range ends before it starts.
var ErrRangeReversed = errors.New("start date is after end date")

// ErrRangeTooLong is returned when a date range spans more days than allowed.
var ErrRangeTooLong = errors.New("date range too long")

// DayLayout is the DD-MM-YYYY layout accepted by the enrichment CLI.
const DayLayout = "02-01-2006"

// ISODayLayout is the YYYY-MM-DD layout accepted by the ingest CLI.
const ISODayLayout = "2006-01-02"

// ValidateName trims a sensor or area name and enforces a maximum length in
// runes. Registry names contain slashes and underscores, so only control
// characters are rejected.
func ValidateName(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrNameEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrNameTooLong
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", ErrNameInvalidChars
		}
	}
	return s, nil
}

// ParseList parses a dashboard multi-value parameter. Empty input and "all"
// (any case) mean no filter and yield nil. An enclosing {...} is stripped,
// values are split on commas and trimmed, and one layer of matching single
// or double quotes is removed. Empty elements are dropped.
func ParseList(raw string) []string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	if s == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = unquote(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseEpochMillis parses an epoch-milliseconds timestamp into a UTC time.
// Empty or unparseable input yields nil, which callers treat as an open bound.
func ParseEpochMillis(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// ParseYear parses a four-digit year.
func ParseYear(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if len(s) != 4 {
		return 0, ErrInvalidYear
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 {
		return 0, ErrInvalidYear
	}
	return y, nil
}

// ParseDay parses a calendar day in the given layout as UTC midnight.
func ParseDay(raw, layout string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidDay, err)
	}
	return t, nil
}

// ValidateRange checks that start is not after end and that the inclusive
// range covers at most maxDays days. maxDays <= 0 disables the length check.
func ValidateRange(start, end time.Time, maxDays int) error {
	if start.After(end) {
		return ErrRangeReversed
	}
	if maxDays > 0 {
		days := int(end.Sub(start).Hours()/24) + 1
		if days > maxDays {
			return ErrRangeTooLong
		}
	}
	return nil
}
