package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progresspal-web/internal/models"
)

func TestTickerStopsWhenCallbackReturnsFalse(t *testing.T) {
	ticker := NewTicker(5 * time.Millisecond)

	calls := 0
	ticker.Run(context.Background(), func(now time.Time) bool {
		calls++
		return calls < 3
	})

	assert.Equal(t, 3, calls)
}

func TestTickerStop(t *testing.T) {
	ticker := NewTicker(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		ticker.Run(context.Background(), func(now time.Time) bool { return true })
		close(done)
	}()

	ticker.Stop()
	ticker.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
}

func TestTickerConcurrentStop(t *testing.T) {
	ticker := NewTicker(5 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker.Stop()
		}()
	}
	wg.Wait()

	calls := 0
	ticker.Run(context.Background(), func(now time.Time) bool {
		calls++
		return true
	})
	assert.Equal(t, 1, calls)
}

func TestTickerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	NewTicker(time.Hour).Run(ctx, func(now time.Time) bool {
		calls++
		return true
	})
	assert.Equal(t, 1, calls)
}

func TestWatchRendersUntilStopped(t *testing.T) {
	f := newFixture(t)
	ticker := NewTicker(5 * time.Millisecond)

	var views []models.LiveView
	err := f.svc.Watch(context.Background(), f.userID, ticker, func(v models.LiveView) {
		views = append(views, v)
		if len(views) == 3 {
			ticker.Stop()
		}
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(views), 3)
	assert.Equal(t, f.session.ID, views[0].Session.ID)
	assert.Equal(t, "pages", views[0].MetricLabel)
}

func TestWatchWithoutLiveSession(t *testing.T) {
	f := newFixture(t)
	f.api.live = nil

	err := f.svc.Watch(context.Background(), f.userID, NewTicker(time.Millisecond), func(models.LiveView) {
		t.Error("nothing to render")
	})
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestBuildViewTimeGoal(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	target := 10.0
	snap := &models.Snapshot{
		Session: &models.LiveSession{
			StartedAt:             start,
			PausedDurationSeconds: 50,
			GoalType:              models.GoalTypeTime,
			GoalTarget:            &target,
		},
	}

	view := BuildView(snap, false, start.Add(620*time.Second))
	assert.Equal(t, int64(570), view.ElapsedSeconds)
	assert.Equal(t, "0:09:30", view.ElapsedLabel)
	require.NotNil(t, view.Goal)
	assert.Equal(t, "0:10:00", view.Goal.TargetLabel)
	assert.Equal(t, "0:09:30", view.Goal.DoneLabel)
	assert.Equal(t, "0:00:30", view.Goal.RemainingLabel)
	require.NotNil(t, view.Goal.Percent)
	assert.InDelta(t, 95.0, *view.Goal.Percent, 1e-9)
	assert.False(t, view.Goal.Achieved)
}

func TestBuildViewMetricDraft(t *testing.T) {
	current := 4.0
	target := 10.0
	label := "pages"
	snap := &models.Snapshot{
		Session: &models.LiveSession{
			StartedAt:          time.Now(),
			GoalType:           models.GoalTypeMetric,
			GoalTarget:         &target,
			MetricCurrentValue: &current,
		},
		ActivityType: &models.ActivityType{MetricKind: models.MetricKindInteger, MetricLabel: &label},
		MetricDraft:  "6",
	}

	view := BuildView(snap, true, time.Now())
	assert.True(t, view.Stale)
	require.NotNil(t, view.Goal)
	assert.Equal(t, "6 pages", view.Goal.DoneLabel)
	assert.Equal(t, "4 pages", view.Goal.RemainingLabel)
	assert.InDelta(t, 60.0, *view.Goal.Percent, 1e-9)
	assert.Equal(t, 4.0, *snap.Session.MetricCurrentValue, "snapshot is not modified")
}

func TestBuildViewNoGoal(t *testing.T) {
	snap := &models.Snapshot{Session: &models.LiveSession{StartedAt: time.Now()}}
	view := BuildView(snap, false, time.Now())
	assert.Nil(t, view.Goal)
}
