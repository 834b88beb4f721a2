package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DoseInstants resolves a frequency encoding against the configured reminder
// times and returns today's concrete dose timestamps, ascending. A slot
// contributes an instant only when its flag is "1" and a clock time exists at
// the same index; extra flags are ignored and malformed encodings yield an
// empty result, never an error — a medicine with no parseable schedule simply
// takes no part in reminders that day.
func DoseInstants(frequency string, referenceDate time.Time, slotTimes []string) []time.Time {
	var instants []time.Time
	for i, flag := range strings.Split(frequency, "-") {
		n, err := strconv.Atoi(strings.TrimSpace(flag))
		if err != nil || n != 1 {
			continue
		}
		if i >= len(slotTimes) {
			continue
		}
		hour, minute, ok := parseClockTime(slotTimes[i])
		if !ok {
			continue
		}
		instants = append(instants, time.Date(
			referenceDate.Year(), referenceDate.Month(), referenceDate.Day(),
			hour, minute, 0, 0, referenceDate.Location(),
		))
	}
	sort.Slice(instants, func(a, b int) bool { return instants[a].Before(instants[b]) })
	return instants
}

// parseClockTime parses "HH:MM" wall-clock strings.
func parseClockTime(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// PeriodName maps an hour of day to the human-readable dose period used in
// notification text. Boundaries are a documented policy choice: 5-11 Morning,
// 12-17 Afternoon, everything else Evening.
func PeriodName(hour int) string {
	switch {
	case hour >= 5 && hour <= 11:
		return "Morning"
	case hour >= 12 && hour <= 17:
		return "Afternoon"
	default:
		return "Evening"
	}
}
