package storage

import (
	"time"

	"insight/pkg/platform/sentinel"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = sentinel.ErrNotFound

// WeekKey normalises a week start to the date used as the brief key.
func WeekKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
