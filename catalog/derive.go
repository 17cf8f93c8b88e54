/*
derive.go - point-in-time fact derivation

Every function here is a pure computation of (entity state, reference
timestamp) -> derived value. Re-running at a different instant yields
different, correct answers without re-ingestion. None of these touch
storage or the process clock.
*/
package catalog

import (
	"math"
	"strings"
	"time"
)

// Derived open-status and hour-range values.
const (
	StatusOpenNow   = "Open now"
	StatusClosedNow = "Closed now"

	HoursClosed       = "Closed"
	HoursNotAvailable = "Not available"
)

// Busyness categories.
const (
	BusynessClosed   = "Closed"
	BusynessQuiet    = "Quiet"
	BusynessModerate = "Moderate"
	BusynessBusy     = "Busy"
	BusynessVeryBusy = "Very Busy"
)

// Uncategorized is the level-1 fallback for empty category paths.
const Uncategorized = "Uncategorized"

// CategoryDelimiter separates levels in an offer's category path.
const CategoryDelimiter = ">"

// =============================================================================
// HOURS & OPEN STATUS
// =============================================================================

// FormatHours renders a window as "HH:MM–HH:MM". A closed day renders
// "Closed"; a missing window or missing open/close renders
// "Not available".
func FormatHours(w *HourWindow) string {
	if w == nil {
		return HoursNotAvailable
	}
	if w.Closed {
		return HoursClosed
	}
	if w.Open == nil || w.Close == nil {
		return HoursNotAvailable
	}
	open, okOpen := parseClock(*w.Open)
	close, okClose := parseClock(*w.Close)
	if !okOpen || !okClose {
		return HoursNotAvailable
	}
	return clockString(open) + "–" + clockString(close)
}

// OpenStatus reports whether the store is open at ref, judged against
// its window for ref's calendar date. Missing window, closed flag, or
// unparseable times all mean "Closed now".
//
// The upstream gives same-day ranges only and never disambiguates a
// close time earlier than open as "next day", so close < open is
// treated as the store being closed. Known limitation, kept on
// purpose rather than guessing a midnight rollover rule.
func OpenStatus(w *HourWindow, ref time.Time) string {
	if w == nil || w.Closed || w.Open == nil || w.Close == nil {
		return StatusClosedNow
	}
	open, okOpen := parseClock(*w.Open)
	close, okClose := parseClock(*w.Close)
	if !okOpen || !okClose {
		return StatusClosedNow
	}
	if close < open {
		return StatusClosedNow
	}
	now := ref.Hour()*60 + ref.Minute()
	if now >= open && now <= close {
		return StatusOpenNow
	}
	return StatusClosedNow
}

// parseClock parses "HH:MM" (or "HH:MM:SS") into minutes past
// midnight.
func parseClock(s string) (int, bool) {
	if len(s) > 5 {
		s = s[:5]
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func clockString(minutes int) string {
	return time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format("15:04")
}

// =============================================================================
// BUSYNESS
// =============================================================================

// Busyness buckets the occupancy fraction for ref's hour. A closed
// store is "Closed" regardless of samples. A missing sample is
// treated as 0, i.e. "Quiet" - the source's own policy, preserved for
// compatibility even though it conflates "no data" with "confirmed
// empty".
func Busyness(status string, samples []OccupancySample, ref time.Time) string {
	if status != StatusOpenNow {
		return BusynessClosed
	}
	value := 0.0
	hour := ref.Hour()
	for _, s := range samples {
		if s.Hour == hour {
			value = s.Value
			break
		}
	}
	switch {
	case value < 0.25:
		return BusynessQuiet
	case value < 0.50:
		return BusynessModerate
	case value < 0.75:
		return BusynessBusy
	default:
		return BusynessVeryBusy
	}
}

// =============================================================================
// CATEGORY DECOMPOSITION
// =============================================================================

// CategoryLevels is the ordered decomposition of a category path.
// Levels beyond what the path provides are nil, never empty strings.
type CategoryLevels struct {
	Level1 *string
	Level2 *string
	Level3 *string
	Level4 *string
}

// SplitCategoryPath decomposes a ">"-delimited category path into up
// to four levels. Blank segments are skipped, so malformed paths
// degrade to fewer levels rather than erroring. A nil or empty path
// yields level 1 = "Uncategorized".
func SplitCategoryPath(path *string) CategoryLevels {
	var levels CategoryLevels
	if path == nil || strings.TrimSpace(*path) == "" {
		u := Uncategorized
		levels.Level1 = &u
		return levels
	}
	slots := []**string{&levels.Level1, &levels.Level2, &levels.Level3, &levels.Level4}
	i := 0
	for _, seg := range strings.Split(*path, CategoryDelimiter) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if i == len(slots) {
			break
		}
		s := seg
		*slots[i] = &s
		i++
	}
	if levels.Level1 == nil {
		u := Uncategorized
		levels.Level1 = &u
	}
	return levels
}

// =============================================================================
// EXPIRY
// =============================================================================

// HoursToExpiry returns (end - ref) in hours rounded to one decimal.
// Negative results are valid - already-expired offers are surfaced,
// not clamped, so consumers can flag urgency.
func HoursToExpiry(end, ref time.Time) float64 {
	return math.Round(end.Sub(ref).Hours()*10) / 10
}
