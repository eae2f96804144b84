package logger

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status values shared by every record that reports an outcome.
const (
	StatusOK        = "ok"
	StatusFail      = "fail"
	StatusCancelled = "cancelled"
)

// Status classifies err for the status field.
func Status(err error) string {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, context.Canceled) {
		return StatusCancelled
	}
	return StatusFail
}

// Took is the time since start, rounded like RoundMS.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds and clamps negatives to zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// SummarizeStrings joins up to limit values with ", ". The flag reports
// whether the list was cut.
func SummarizeStrings(values []string, limit int) (string, bool) {
	limit = max(limit, 0)
	cut := len(values) > limit
	if cut {
		values = values[:limit]
	}
	return strings.Join(values, ", "), cut
}
