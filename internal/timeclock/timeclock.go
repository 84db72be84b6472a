// Package timeclock holds the time accounting arithmetic for work orders.
// Flush is the single path that folds a running segment into the persisted
// total; Displayed is the read-only render-time variant and never writes.
package timeclock

import (
	"fmt"
	"math"
	"time"
)

// Flush converts a running segment into accumulated whole seconds.
// With no start timestamp it returns the total unchanged and reports false,
// making a second flush without an intervening start a no-op. Elapsed time
// is rounded half away from zero and clamped at zero under clock skew, so
// the result never decreases.
func Flush(totalSeconds int64, startTime *string, now time.Time) (int64, bool, error) {
	if startTime == nil || *startTime == "" {
		return totalSeconds, false, nil
	}
	start, err := time.Parse(time.RFC3339, *startTime)
	if err != nil {
		return totalSeconds, false, fmt.Errorf("invalid start time %q: %w", *startTime, err)
	}
	return totalSeconds + elapsedSeconds(start, now), true, nil
}

// Displayed is the elapsed time shown while a work order runs: the persisted
// total plus the current segment. Pass a nil start for anything not running.
func Displayed(totalSeconds int64, startTime *string, now time.Time) int64 {
	if startTime == nil || *startTime == "" {
		return totalSeconds
	}
	start, err := time.Parse(time.RFC3339, *startTime)
	if err != nil {
		return totalSeconds
	}
	return totalSeconds + elapsedSeconds(start, now)
}

func elapsedSeconds(start, now time.Time) int64 {
	if now.Before(start) {
		return 0
	}
	return int64(math.Round(now.Sub(start).Seconds()))
}

// FormatHoursMinutes renders accumulated seconds as HH:MM for thread titles
// and list views.
func FormatHoursMinutes(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
