package query

import (
	"strings"
	"time"
)

// Predicate reports whether a record passes a filter. Field accessors
// passed to the constructors return nil for missing values.
type Predicate[T any] func(T) bool

// TextContains matches when the lower-cased term is a substring of any of
// the lower-cased fields. An empty term matches everything.
func TextContains[T any](term string, fields ...func(T) string) Predicate[T] {
	if term == "" {
		return Always[T]
	}
	needle := strings.ToLower(term)
	return func(r T) bool {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field(r)), needle) {
				return true
			}
		}
		return false
	}
}

// DateRangeContains matches when start >= from and end <= to. Records with
// either date missing never match.
func DateRangeContains[T any](start, end func(T) *time.Time, from, to time.Time) Predicate[T] {
	return func(r T) bool {
		s, e := start(r), end(r)
		if s == nil || e == nil {
			return false
		}
		return !s.Before(from) && !e.After(to)
	}
}

// NumericRangeContains matches low <= value <= high. Missing values never match.
func NumericRangeContains[T any](field func(T) *float64, low, high float64) Predicate[T] {
	window := Bounds{Low: low, High: high}
	return func(r T) bool {
		v := field(r)
		return v != nil && window.Contains(*v)
	}
}

// AtMost matches value <= high. It is the outlier clip: only the upper
// bound is applied, and missing values are dropped along with the outliers.
func AtMost[T any](field func(T) *float64, high float64) Predicate[T] {
	return func(r T) bool {
		v := field(r)
		return v != nil && *v <= high
	}
}

// Always matches every record
func Always[T any](T) bool { return true }

// Filter returns the records matching p, preserving order. A nil predicate
// returns records unchanged.
func Filter[T any](records []T, p Predicate[T]) []T {
	if p == nil {
		return records
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		if p(r) {
			out = append(out, r)
		}
	}
	return out
}
