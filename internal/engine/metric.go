package engine

import (
	"math"
	"strconv"
	"strings"

	"progresspal-web/internal/models"
)

// ParseMetricKind accepts metric kinds case-insensitively; blank means NONE.
func ParseMetricKind(raw string) (models.MetricKind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(models.MetricKindNone):
		return models.MetricKindNone, nil
	case string(models.MetricKindInteger):
		return models.MetricKindInteger, nil
	case string(models.MetricKindDecimal):
		return models.MetricKindDecimal, nil
	}
	return "", invalid("metricKind", "Metric kind must be NONE, INTEGER, or DECIMAL")
}

func progressMessage(kind models.MetricKind) string {
	if kind == models.MetricKindInteger {
		return "Progress must be a non-negative whole number"
	}
	return "Progress must be a non-negative number"
}

// ValidateMetricProgress checks a live progress value against the activity's
// metric kind.
func ValidateMetricProgress(value float64, kind models.MetricKind) error {
	if kind == "" || kind == models.MetricKindNone {
		return invalid("metricCurrentValue", "This activity type does not track a metric")
	}
	if !isFinite(value) || value < 0 {
		return invalid("metricCurrentValue", progressMessage(kind))
	}
	if kind == models.MetricKindInteger && value != math.Trunc(value) {
		return invalid("metricCurrentValue", progressMessage(kind))
	}
	return nil
}

// ParseMetricProgress parses progress typed by the user and validates it.
func ParseMetricProgress(raw string, kind models.MetricKind) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		if kind == "" || kind == models.MetricKindNone {
			return 0, ValidateMetricProgress(0, kind)
		}
		return 0, invalid("metricCurrentValue", progressMessage(kind))
	}
	if err := ValidateMetricProgress(v, kind); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateStopMetric checks the final metric recorded when a session stops.
// A nil value is always accepted.
func ValidateStopMetric(value *float64, kind models.MetricKind) error {
	if value == nil {
		return nil
	}
	if kind == "" || kind == models.MetricKindNone {
		return invalid("metricValue", "This activity type does not accept a metric value")
	}
	if !isFinite(*value) || *value < 0 {
		return invalid("metricValue", "metricValue must be a non-negative number")
	}
	if kind == models.MetricKindInteger && *value != math.Trunc(*value) {
		return invalid("metricValue", "metricValue must be a whole number for INTEGER metrics")
	}
	return nil
}
