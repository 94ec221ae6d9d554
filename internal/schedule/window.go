// Package schedule computes the next legal dispatch instant for a sending
// window, timezone, day-of-week allow-list, and excluded day names.
package schedule

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// maxSearchDays bounds the forward walk. A window that permits no day within
// two weeks is a configuration problem, not something to loop on.
const maxSearchDays = 14

// NextEligible returns the earliest instant at or after candidate that falls
// inside the window in the given location and on a permitted, non-excluded
// day. A nil window means no constraint and the candidate is returned as is.
func NextEligible(candidate time.Time, window *model.TimeWindow, loc *time.Location, excludedDays []string) (time.Time, error) {
	if window == nil {
		return candidate, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if !window.Valid() {
		return time.Time{}, appErrors.NewSchedulingError(
			"invalid window %s-%s", window.StartTime, window.EndTime)
	}

	start, _ := model.Minutes(window.StartTime)
	end, _ := model.Minutes(window.EndTime)

	local := candidate.In(loc)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case minute < start:
		local = atMinute(local, start)
	case minute >= end:
		local = atMinute(local.AddDate(0, 0, 1), start)
	}

	excluded := make(map[string]struct{}, len(excludedDays))
	for _, d := range excludedDays {
		excluded[strings.ToLower(d)] = struct{}{}
	}

	for i := 0; i < maxSearchDays; i++ {
		day := strings.ToLower(local.Weekday().String())
		_, isExcluded := excluded[day]
		if window.PermitsDay(int(local.Weekday())) && !isExcluded {
			return local, nil
		}
		local = atMinute(local.AddDate(0, 0, 1), start)
	}

	return time.Time{}, appErrors.NewSchedulingError(
		"no permitted day within %d days of %s", maxSearchDays, candidate.Format(time.RFC3339))
}

// atMinute keeps the date of t but sets the clock to the given minute of day.
func atMinute(t time.Time, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minute/60, minute%60, 0, 0, t.Location())
}
