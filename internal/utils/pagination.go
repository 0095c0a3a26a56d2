// Package utils provides small, generic helpers for parsing and bounding
// query parameters. They carry no domain knowledge.
package utils

import "strconv"

// AtoiDefault converts s to an int, returning def when s is empty or not a
// valid integer.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // 42
//	n = utils.AtoiDefault("", 10)   // 10
//	n = utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Limit parses a page size: values below 1 (or unparsable) become def, and
// larger values are capped at max.
func Limit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Offset parses a non-negative row offset.
func Offset(s string) int {
	n := AtoiDefault(s, 0)
	if n < 0 {
		return 0
	}
	return n
}
