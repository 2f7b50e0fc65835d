package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type GoalType string

const (
	GoalTypeNone   GoalType = "NONE"
	GoalTypeTime   GoalType = "TIME"
	GoalTypeMetric GoalType = "METRIC"
)

type MetricKind string

const (
	MetricKindNone    MetricKind = "NONE"
	MetricKindInteger MetricKind = "INTEGER"
	MetricKindDecimal MetricKind = "DECIMAL"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// LiveSession mirrors the session record returned by the ProgressPal API.
// metricCurrentValue is the in-progress counter while live; metricValue is
// the value recorded at stop.
type LiveSession struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"userId"`
	ActivityTypeID        uuid.UUID  `json:"activityTypeId"`
	Title                 string     `json:"title,omitempty"`
	Description           string     `json:"description,omitempty"`
	Visibility            Visibility `json:"visibility,omitempty"`
	StartedAt             time.Time  `json:"startedAt"`
	EndedAt               *time.Time `json:"endedAt"`
	PausedAt              *time.Time `json:"pausedAt"`
	PausedDurationSeconds int64      `json:"pausedDurationSeconds"`
	MetricValue           *float64   `json:"metricValue"`
	MetricCurrentValue    *float64   `json:"metricCurrentValue"`
	GoalType              GoalType   `json:"goalType"`
	GoalTarget            *float64   `json:"goalTarget"`
	GoalNote              *string    `json:"goalNote"`
	GoalDone              *float64   `json:"goalDone,omitempty"`
	GoalAchieved          *bool      `json:"goalAchieved,omitempty"`
	Paused                bool       `json:"paused"`
	Ongoing               bool       `json:"ongoing"`
}

func (s *LiveSession) IsLive() bool {
	return s != nil && s.EndedAt == nil
}

func (s *LiveSession) IsPaused() bool {
	return s.IsLive() && s.PausedAt != nil
}

// EffectiveGoalType treats a missing goal type as NONE.
func (s *LiveSession) EffectiveGoalType() GoalType {
	if s == nil || s.GoalType == "" {
		return GoalTypeNone
	}
	return GoalType(strings.ToUpper(string(s.GoalType)))
}

type ActivityType struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Custom      bool       `json:"custom"`
	CreatedBy   *uuid.UUID `json:"createdBy,omitempty"`
	MetricKind  MetricKind `json:"metricKind"`
	MetricLabel *string    `json:"metricLabel,omitempty"`
}

// EffectiveMetricKind treats a missing metric kind as NONE.
func (a *ActivityType) EffectiveMetricKind() MetricKind {
	if a == nil || a.MetricKind == "" {
		return MetricKindNone
	}
	return MetricKind(strings.ToUpper(string(a.MetricKind)))
}

func (a *ActivityType) Label() string {
	if a == nil || a.MetricLabel == nil {
		return ""
	}
	return *a.MetricLabel
}

// GoalSubmission is the normalized goal payload sent on start and on goal edits.
type GoalSubmission struct {
	GoalType   GoalType `json:"goalType"`
	GoalTarget *float64 `json:"goalTarget"`
	GoalNote   *string  `json:"goalNote"`
}

type StartSessionRequest struct {
	ActivityTypeID uuid.UUID  `json:"activityTypeId"`
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	Visibility     Visibility `json:"visibility"`
	GoalType       GoalType   `json:"goalType"`
	GoalTarget     *float64   `json:"goalTarget"`
	GoalNote       *string    `json:"goalNote"`
}

type StopSessionRequest struct {
	MetricValue *float64 `json:"metricValue,omitempty"`
}

type ProgressUpdateRequest struct {
	MetricCurrentValue float64 `json:"metricCurrentValue"`
}
