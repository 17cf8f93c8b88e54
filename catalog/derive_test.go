package catalog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spildspotter/clearance-engine/catalog"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func str(s string) *string { return &s }

func window(open, close string, closed bool) *catalog.HourWindow {
	w := &catalog.HourWindow{
		Date:   "2026-08-31",
		Type:   catalog.WindowStore,
		Closed: closed,
	}
	if open != "" {
		w.Open = str(open)
	}
	if close != "" {
		w.Close = str(close)
	}
	return w
}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.August, 31, hour, minute, 0, 0, time.UTC)
}

// =============================================================================
// HOURS FORMATTING
// =============================================================================

func TestFormatHours(t *testing.T) {
	tests := []struct {
		name string
		w    *catalog.HourWindow
		want string
	}{
		{"open and close present", window("09:00", "18:00", false), "09:00–18:00"},
		{"seconds trimmed", window("07:00:00", "21:30:00", false), "07:00–21:30"},
		{"closed flag wins", window("09:00", "18:00", true), "Closed"},
		{"missing close", window("09:00", "", false), "Not available"},
		{"missing open", window("", "18:00", false), "Not available"},
		{"no window at all", nil, "Not available"},
		{"garbage time", window("late", "18:00", false), "Not available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.FormatHours(tt.w))
		})
	}
}

// =============================================================================
// OPEN STATUS
// =============================================================================

func TestOpenStatus(t *testing.T) {
	w := window("09:00", "18:00", false)

	assert.Equal(t, catalog.StatusOpenNow, catalog.OpenStatus(w, at(12, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(20, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(8, 59)))

	// Boundaries are inclusive.
	assert.Equal(t, catalog.StatusOpenNow, catalog.OpenStatus(w, at(9, 0)))
	assert.Equal(t, catalog.StatusOpenNow, catalog.OpenStatus(w, at(18, 0)))
}

func TestOpenStatus_ClosedFlagWinsAtAllTimes(t *testing.T) {
	w := window("00:00", "23:59", true)
	for hour := 0; hour < 24; hour++ {
		assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(hour, 30)))
	}
}

func TestOpenStatus_MissingWindowOrTimes(t *testing.T) {
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(nil, at(12, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(window("", "18:00", false), at(12, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(window("09:00", "", false), at(12, 0)))
}

// Close earlier than open is never disambiguated as "next day" by the
// source, so it means closed - at every reference time.
func TestOpenStatus_CloseBeforeOpenTreatedAsClosed(t *testing.T) {
	w := window("22:00", "06:00", false)
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(23, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(3, 0)))
	assert.Equal(t, catalog.StatusClosedNow, catalog.OpenStatus(w, at(12, 0)))
}

// =============================================================================
// BUSYNESS
// =============================================================================

func TestBusyness_Buckets(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0.0, catalog.BusynessQuiet},
		{0.24, catalog.BusynessQuiet},
		{0.25, catalog.BusynessModerate},
		{0.49, catalog.BusynessModerate},
		{0.50, catalog.BusynessBusy},
		{0.74, catalog.BusynessBusy},
		{0.75, catalog.BusynessVeryBusy},
		{1.0, catalog.BusynessVeryBusy},
	}
	for _, tt := range tests {
		samples := []catalog.OccupancySample{{Hour: 12, Value: tt.value}}
		assert.Equal(t, tt.want, catalog.Busyness(catalog.StatusOpenNow, samples, at(12, 15)), "value=%v", tt.value)
	}
}

func TestBusyness_ClosedStore(t *testing.T) {
	samples := []catalog.OccupancySample{{Hour: 12, Value: 0.9}}
	assert.Equal(t, catalog.BusynessClosed, catalog.Busyness(catalog.StatusClosedNow, samples, at(12, 0)))
}

func TestBusyness_MissingSampleDefaultsToQuiet(t *testing.T) {
	// Partial day: only hour 8 reported, querying hour 12.
	samples := []catalog.OccupancySample{{Hour: 8, Value: 0.9}}
	assert.Equal(t, catalog.BusynessQuiet, catalog.Busyness(catalog.StatusOpenNow, samples, at(12, 0)))
	assert.Equal(t, catalog.BusynessQuiet, catalog.Busyness(catalog.StatusOpenNow, nil, at(12, 0)))
}

// =============================================================================
// CATEGORY DECOMPOSITION
// =============================================================================

func TestSplitCategoryPath(t *testing.T) {
	levels := catalog.SplitCategoryPath(str("A>B>C"))
	assert.Equal(t, "A", *levels.Level1)
	assert.Equal(t, "B", *levels.Level2)
	assert.Equal(t, "C", *levels.Level3)
	assert.Nil(t, levels.Level4)
}

func TestSplitCategoryPath_EmptyAndNil(t *testing.T) {
	for _, path := range []*string{nil, str(""), str("   ")} {
		levels := catalog.SplitCategoryPath(path)
		assert.Equal(t, catalog.Uncategorized, *levels.Level1)
		assert.Nil(t, levels.Level2)
		assert.Nil(t, levels.Level3)
		assert.Nil(t, levels.Level4)
	}
}

func TestSplitCategoryPath_MalformedDegradesGracefully(t *testing.T) {
	// Leading/blank segments are dropped, not kept as empty strings.
	levels := catalog.SplitCategoryPath(str(">Meat>>Beef"))
	assert.Equal(t, "Meat", *levels.Level1)
	assert.Equal(t, "Beef", *levels.Level2)
	assert.Nil(t, levels.Level3)

	// Deeper than four levels: extra segments are discarded.
	levels = catalog.SplitCategoryPath(str("A>B>C>D>E"))
	assert.Equal(t, "D", *levels.Level4)
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestHoursToExpiry(t *testing.T) {
	ref := at(12, 0)

	assert.Equal(t, 2.0, catalog.HoursToExpiry(ref.Add(2*time.Hour), ref))
	assert.Equal(t, -2.0, catalog.HoursToExpiry(ref.Add(-2*time.Hour), ref))
	assert.Equal(t, 0.5, catalog.HoursToExpiry(ref.Add(30*time.Minute), ref))
	assert.Equal(t, 1.3, catalog.HoursToExpiry(ref.Add(75*time.Minute), ref))
	assert.Equal(t, 0.0, catalog.HoursToExpiry(ref, ref))
}
