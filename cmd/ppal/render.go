package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"progresspal-web/internal/engine"
	"progresspal-web/internal/models"
)

func renderView(w io.Writer, view models.LiveView) {
	s := view.Session
	status := "running"
	switch {
	case !s.IsLive():
		status = "stopped"
	case view.Paused:
		status = "paused"
	}

	title := s.Title
	if title == "" {
		title = "(untitled)"
	}
	_, _ = fmt.Fprintf(w, "%s  %s  [%s]\n", title, view.ElapsedLabel, status)
	_, _ = fmt.Fprintf(w, "  started %s\n", humanize.RelTime(s.StartedAt, view.ComputedAt, "ago", "from now"))

	if view.MetricLabel != "" {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", view.MetricLabel, metricText(view))
	}
	if view.Goal != nil {
		renderGoal(w, view.Goal)
	}
	if view.Stale {
		_, _ = fmt.Fprintln(w, "  (offline: showing last known state)")
	}
}

func metricText(view models.LiveView) string {
	if view.MetricDraft != "" {
		return view.MetricDraft + " (unsaved)"
	}
	if v := view.Session.MetricCurrentValue; v != nil {
		return engine.FormatNumber(*v)
	}
	return "-"
}

func renderGoal(w io.Writer, g *models.GoalView) {
	line := fmt.Sprintf("  goal %s / %s", g.DoneLabel, g.TargetLabel)
	if g.Percent != nil {
		line += fmt.Sprintf(" (%.0f%%)", *g.Percent)
	}
	switch {
	case g.Achieved:
		line += "  achieved"
	case g.Remaining != nil:
		line += "  " + g.RemainingLabel + " to go"
	}
	_, _ = fmt.Fprintln(w, line)
	if g.Note != nil && strings.TrimSpace(*g.Note) != "" {
		_, _ = fmt.Fprintf(w, "  note: %s\n", *g.Note)
	}
}

func renderUndo(w io.Writer, offer *models.UndoOffer, now time.Time) {
	if offer == nil {
		return
	}
	left := offer.ExpiresAt.Sub(now).Round(time.Second)
	if left < 0 {
		left = 0
	}
	_, _ = fmt.Fprintf(w, "  %s (run `ppal undo` within %s)\n", offer.Label, left)
}
