package engine

import (
	"time"

	"progresspal-web/internal/models"
)

// ElapsedActiveSeconds returns the whole seconds the session has been active
// as of now, net of completed pauses and of the pause in progress. Ended
// sessions are measured up to EndedAt. The result is never negative.
func ElapsedActiveSeconds(s *models.LiveSession, now time.Time) int64 {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}

	raw := floorSeconds(end.Sub(s.StartedAt))

	paused := s.PausedDurationSeconds
	if s.PausedAt != nil {
		paused += floorSeconds(end.Sub(*s.PausedAt))
	}

	active := raw - paused
	if active < 0 {
		return 0
	}
	return active
}

// floorSeconds rounds toward negative infinity, unlike a plain division.
func floorSeconds(d time.Duration) int64 {
	secs := d / time.Second
	if d%time.Second < 0 {
		secs--
	}
	return int64(secs)
}
