package engine

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"progresspal-web/internal/models"
)

const maxGoalNoteLength = 255

// Progress is the goal state derived from a session snapshot at one instant.
// Done, Target and Remaining share the goal's unit: minutes for TIME goals,
// metric units for METRIC goals. Percent is nil when no positive target is
// set, which is distinct from 0%.
type Progress struct {
	GoalType  models.GoalType
	Target    *float64
	Done      float64
	Percent   *float64
	Remaining *float64
	Achieved  bool
}

// GoalProgress evaluates the session's goal as of now. currentMetricDraft is
// the user's unsaved progress text; it wins over stored values when numeric.
// The second result is false when the session has no goal.
func GoalProgress(s *models.LiveSession, now time.Time, currentMetricDraft string) (Progress, bool) {
	goalType := s.EffectiveGoalType()

	p := Progress{GoalType: goalType, Target: s.GoalTarget}

	switch goalType {
	case models.GoalTypeTime:
		active := ElapsedActiveSeconds(s, now)
		p.Done = float64(active) / 60
		if target, ok := positiveTarget(s.GoalTarget); ok {
			p.Percent = percentOf(float64(active), target*60)
		}
	case models.GoalTypeMetric:
		p.Done = metricDone(s, currentMetricDraft)
		if target, ok := positiveTarget(s.GoalTarget); ok {
			p.Percent = percentOf(p.Done, target)
		}
	default:
		return Progress{}, false
	}

	if s.GoalTarget != nil && isFinite(*s.GoalTarget) {
		remaining := math.Max(0, *s.GoalTarget-p.Done)
		p.Remaining = &remaining
		p.Achieved = *s.GoalTarget > 0 && p.Done >= *s.GoalTarget
	}

	return p, true
}

func metricDone(s *models.LiveSession, draft string) float64 {
	if v, ok := parseDraft(draft); ok {
		return v
	}
	if s.MetricCurrentValue != nil {
		return *s.MetricCurrentValue
	}
	if s.MetricValue != nil {
		return *s.MetricValue
	}
	return 0
}

func parseDraft(draft string) (float64, bool) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(draft, 64)
	if err != nil || !isFinite(v) {
		return 0, false
	}
	return v, true
}

func positiveTarget(target *float64) (float64, bool) {
	if target == nil || !isFinite(*target) || *target <= 0 {
		return 0, false
	}
	return *target, true
}

func percentOf(done, whole float64) *float64 {
	pct := math.Min(100, math.Max(0, done/whole*100))
	return &pct
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseGoalType accepts goal types case-insensitively; blank means NONE.
func ParseGoalType(raw string) (models.GoalType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(models.GoalTypeNone):
		return models.GoalTypeNone, nil
	case string(models.GoalTypeTime):
		return models.GoalTypeTime, nil
	case string(models.GoalTypeMetric):
		return models.GoalTypeMetric, nil
	}
	return "", invalid("goalType", "Goal type must be NONE, TIME, or METRIC")
}

// BuildGoalSubmission turns goal form input into the payload the API stores.
// A TIME target that does not parse is an error; a blank target with a goal
// type selected is accepted as "no target yet".
func BuildGoalSubmission(goalType models.GoalType, rawTarget, rawNote string) (models.GoalSubmission, error) {
	goalType, err := ParseGoalType(string(goalType))
	if err != nil {
		return models.GoalSubmission{}, err
	}

	note, err := normalizeNote(rawNote)
	if err != nil {
		return models.GoalSubmission{}, err
	}

	sub := models.GoalSubmission{GoalType: goalType, GoalNote: note}
	target := strings.TrimSpace(rawTarget)

	switch goalType {
	case models.GoalTypeNone:
		return sub, nil
	case models.GoalTypeTime:
		if target == "" {
			return sub, nil
		}
		minutes, ok := ParseTimeGoalTarget(target)
		if !ok {
			return models.GoalSubmission{}, invalid("goalTarget", "Time target must be in H:M:S format")
		}
		sub.GoalTarget = &minutes
	case models.GoalTypeMetric:
		if target == "" {
			return sub, nil
		}
		v, err := strconv.ParseFloat(target, 64)
		if err != nil || !isFinite(v) {
			return models.GoalSubmission{}, invalid("goalTarget", "Metric target must be a number")
		}
		if v < 0 {
			return models.GoalSubmission{}, invalid("goalTarget", "Metric target must be a non-negative number")
		}
		sub.GoalTarget = &v
	}

	return sub, nil
}

func normalizeNote(raw string) (*string, error) {
	note := strings.TrimSpace(raw)
	if note == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(note) > maxGoalNoteLength {
		return nil, invalid("goalNote", "Goal note must be at most 255 characters")
	}
	return &note, nil
}

// CheckGoalAgainstActivity rejects a METRIC goal on an activity type that
// does not track a metric. Callers run it before BuildGoalSubmission.
func CheckGoalAgainstActivity(goalType models.GoalType, kind models.MetricKind) error {
	if goalType == models.GoalTypeMetric && (kind == "" || kind == models.MetricKindNone) {
		return invalid("goalType", "A metric goal needs an activity type that tracks a metric")
	}
	return nil
}
