package services

import (
	"time"

	"progresspal-web/internal/engine"
	"progresspal-web/internal/models"
)

// BuildView evaluates a snapshot at now. It is called on every tick and
// never modifies the snapshot.
func BuildView(snap *models.Snapshot, stale bool, now time.Time) models.LiveView {
	session := snap.Session
	elapsed := engine.ElapsedActiveSeconds(session, now)
	label := snap.ActivityType.Label()

	view := models.LiveView{
		Session:        session,
		ElapsedSeconds: elapsed,
		ElapsedLabel:   engine.FormatDuration(elapsed),
		Paused:         session.IsPaused(),
		MetricLabel:    label,
		MetricDraft:    snap.MetricDraft,
		Stale:          stale,
		ComputedAt:     now,
	}

	progress, ok := engine.GoalProgress(session, now, snap.MetricDraft)
	if !ok {
		return view
	}

	done := progress.Done
	view.Goal = &models.GoalView{
		Type:           progress.GoalType,
		Target:         progress.Target,
		TargetLabel:    engine.FormatGoalValue(progress.Target, progress.GoalType, label),
		Done:           &done,
		DoneLabel:      engine.FormatGoalValue(&done, progress.GoalType, label),
		Remaining:      progress.Remaining,
		RemainingLabel: engine.FormatGoalValue(progress.Remaining, progress.GoalType, label),
		Percent:        progress.Percent,
		Achieved:       progress.Achieved,
		Note:           session.GoalNote,
	}
	return view
}
