// Package strings provides string slice utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// UniqueList accumulates strings in insertion order, dropping exact
// (case-sensitive) duplicates, up to an optional cap. A cap <= 0 means
// unbounded.
type UniqueList struct {
	limit int
	seen  map[string]struct{}
	items []string
}

// NewUniqueList creates a list that holds at most limit items.
func NewUniqueList(limit int) *UniqueList {
	return &UniqueList{limit: limit, seen: make(map[string]struct{})}
}

// Add appends v unless it is already present or the list is full.
// Returns true when v was appended.
func (l *UniqueList) Add(v string) bool {
	if l.Full() {
		return false
	}
	if _, ok := l.seen[v]; ok {
		return false
	}
	l.seen[v] = struct{}{}
	l.items = append(l.items, v)
	return true
}

// Full reports whether the cap has been reached.
func (l *UniqueList) Full() bool {
	return l.limit > 0 && len(l.items) >= l.limit
}

// Items returns a copy of the accumulated values; never nil.
func (l *UniqueList) Items() []string {
	out := make([]string, len(l.items))
	copy(out, l.items)
	return out
}

// SampleDistinct returns up to n distinct non-empty values in first-seen order.
func SampleDistinct(values []string, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, v := range values {
		if len(out) >= n {
			break
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
