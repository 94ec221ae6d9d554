package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/schedule"
)

func businessHours() *model.TimeWindow {
	return &model.TimeWindow{
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{1, 2, 3, 4, 5}, // Mon-Fri
	}
}

func TestNextEligibleNilWindow(t *testing.T) {
	candidate := time.Date(2025, 3, 15, 3, 30, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, nil, time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}

func TestNextEligibleInsideWindow(t *testing.T) {
	// Wednesday 10:00, already valid.
	candidate := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, businessHours(), time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}

func TestNextEligibleBeforeStart(t *testing.T) {
	// Wednesday 06:15 advances to 09:00 the same day.
	candidate := time.Date(2025, 3, 12, 6, 15, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, businessHours(), time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), got)
}

func TestNextEligibleAfterEnd(t *testing.T) {
	// Wednesday 17:00 is past the half-open window, advances to Thursday 09:00.
	candidate := time.Date(2025, 3, 12, 17, 0, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, businessHours(), time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC), got)
}

func TestNextEligibleWeekendRollsToMonday(t *testing.T) {
	// Saturday 10:00 -> Monday 09:00.
	candidate := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, businessHours(), time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.Monday, got.Weekday())
}

func TestNextEligibleExcludedDayName(t *testing.T) {
	// Monday excluded by name, Tuesday is next.
	candidate := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) // Saturday
	got, err := schedule.NextEligible(candidate, businessHours(), time.UTC, []string{"Monday"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC), got)
}

func TestNextEligibleTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 12:00 UTC on a Wednesday is 07:00/08:00 in New York, before the window
	// opens, so the result is 09:00 local.
	candidate := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, businessHours(), loc, nil)
	require.NoError(t, err)

	local := got.In(loc)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.Equal(t, 12, local.Day())
}

func TestNextEligibleNoValidDay(t *testing.T) {
	window := &model.TimeWindow{
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{6}, // Saturday only
	}
	candidate := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	_, err := schedule.NextEligible(candidate, window, time.UTC, []string{"saturday"})
	require.Error(t, err)
	var schedErr *appErrors.SchedulingError
	assert.ErrorAs(t, err, &schedErr)
}

func TestNextEligibleInvalidWindow(t *testing.T) {
	window := &model.TimeWindow{StartTime: "17:00", EndTime: "09:00"}
	_, err := schedule.NextEligible(time.Now(), window, time.UTC, nil)
	require.Error(t, err)
	var schedErr *appErrors.SchedulingError
	assert.ErrorAs(t, err, &schedErr)
}

func TestNextEligibleEmptyDaysPermitsAll(t *testing.T) {
	window := &model.TimeWindow{StartTime: "09:00", EndTime: "17:00"}
	// Sunday inside the clock range stays put.
	candidate := time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC)
	got, err := schedule.NextEligible(candidate, window, time.UTC, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}
