package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the last-known-good live session held for a user, together
// with any progress the user has drafted but not yet persisted.
type Snapshot struct {
	Session      *LiveSession  `json:"session"`
	ActivityType *ActivityType `json:"activityType,omitempty"`
	MetricDraft  string        `json:"metricDraft,omitempty"`
	FetchedAt    time.Time     `json:"fetchedAt"`
}

// UndoEntry records the committed progress value that preceded the most
// recent successful progress update.
type UndoEntry struct {
	SessionID     uuid.UUID `json:"sessionId"`
	PreviousValue *float64  `json:"previousValue"`
	AppliedValue  float64   `json:"appliedValue"`
	CreatedAt     time.Time `json:"createdAt"`
}

type UndoOffer struct {
	PreviousValue *float64  `json:"previousValue"`
	Label         string    `json:"label"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type GoalView struct {
	Type           GoalType `json:"type"`
	Target         *float64 `json:"target"`
	TargetLabel    string   `json:"targetLabel"`
	Done           *float64 `json:"done"`
	DoneLabel      string   `json:"doneLabel"`
	Remaining      *float64 `json:"remaining"`
	RemainingLabel string   `json:"remainingLabel"`
	Percent        *float64 `json:"percent"`
	Achieved       bool     `json:"achieved"`
	Note           *string  `json:"note,omitempty"`
}

// LiveView is what the UI renders on every tick.
type LiveView struct {
	Session        *LiveSession `json:"session"`
	ElapsedSeconds int64        `json:"elapsedSeconds"`
	ElapsedLabel   string       `json:"elapsedLabel"`
	Paused         bool         `json:"paused"`
	MetricLabel    string       `json:"metricLabel,omitempty"`
	MetricDraft    string       `json:"metricDraft,omitempty"`
	Goal           *GoalView    `json:"goal,omitempty"`
	Stale          bool         `json:"stale"`
	ComputedAt     time.Time    `json:"computedAt"`
}
