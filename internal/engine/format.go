package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"progresspal-web/internal/models"
)

const maxClockHours = math.MaxInt64/3600 - 1

var clockPattern = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})$`)

// FormatDuration renders seconds as H:MM:SS. Hours are not padded or capped.
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// ParseClock is the inverse of FormatDuration. It accepts H:MM:SS and H:M:S
// with minutes and seconds in [0,59]; zero is a valid result.
func ParseClock(text string) (int64, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}

	hours, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || hours > maxClockHours {
		return 0, false
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if minutes > 59 || seconds > 59 {
		return 0, false
	}

	return hours*3600 + int64(minutes)*60 + int64(seconds), true
}

// ParseTimeGoalTarget converts an H:M:S goal target into minutes, the unit
// TIME goals are stored in. A zero duration does not match.
func ParseTimeGoalTarget(text string) (float64, bool) {
	total, ok := ParseClock(text)
	if !ok || total <= 0 {
		return 0, false
	}
	return float64(total) / 60, true
}

// FormatTimeFromMinutes renders a stored TIME target back as H:MM:SS,
// rounded to the nearest second.
func FormatTimeFromMinutes(minutes float64) string {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return FormatDuration(0)
	}
	return FormatDuration(int64(math.Round(minutes * 60)))
}

// FormatNumber prints at most two fraction digits and drops trailing zeros,
// so 12 prints as "12" and 2.50 as "2.5".
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(math.Round(v*100)/100, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// FormatGoalValue renders a goal target, done or remaining amount for display.
func FormatGoalValue(value *float64, goalType models.GoalType, metricLabel string) string {
	if value == nil {
		return "-"
	}

	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	switch goalType {
	case models.GoalTypeTime:
		return FormatTimeFromMinutes(v)
	case models.GoalTypeMetric:
		label := strings.TrimSpace(metricLabel)
		if label == "" {
			label = "units"
		}
		return FormatNumber(v) + " " + label
	default:
		return FormatNumber(v)
	}
}
