package callbus

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority orders subscriptions within one emission. Lower values run first.
type Priority int

// Priority levels.
const (
	Critical Priority = iota
	High
	Normal
	Low
	Background
)

var priorityNames = [...]string{
	Critical:   "critical",
	High:       "high",
	Normal:     "normal",
	Low:        "low",
	Background: "background",
}

// String returns the lower-case name of the priority.
func (p Priority) String() string {
	if p >= Critical && p <= Background {
		return priorityNames[p]
	}
	return "priority(" + strconv.Itoa(int(p)) + ")"
}

// Valid reports whether p is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= Critical && p <= Background
}

// ParsePriority accepts a level name (case-insensitive) or its numeric value.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && Priority(n).Valid() {
		return Priority(n), nil
	}
	return Normal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}
