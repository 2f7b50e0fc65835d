package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progresspal-web/internal/apiclient"
	"progresspal-web/internal/models"
	"progresspal-web/internal/repository"
)

type stubAPI struct {
	mu sync.Mutex

	live    *models.LiveSession
	liveErr error

	// liveEntered is closed on the first live fetch, which then waits for
	// liveGate when it is set.
	liveEntered chan struct{}
	liveGate    chan struct{}
	enterOnce   sync.Once

	types    []models.ActivityType
	typesErr error

	startFn    func(req models.StartSessionRequest) (*models.LiveSession, error)
	stopFn     func(req models.StopSessionRequest) (*models.LiveSession, error)
	pauseFn    func() (*models.LiveSession, error)
	resumeFn   func() (*models.LiveSession, error)
	goalFn     func(goal models.GoalSubmission) (*models.LiveSession, error)
	progressFn func(req models.ProgressUpdateRequest) (*models.LiveSession, error)

	calls []string
}

func (a *stubAPI) record(name string) {
	a.mu.Lock()
	a.calls = append(a.calls, name)
	a.mu.Unlock()
}

func (a *stubAPI) called(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (a *stubAPI) GetLiveSession(ctx context.Context, userID uuid.UUID) (*models.LiveSession, error) {
	a.record("live")
	if a.liveEntered != nil {
		a.enterOnce.Do(func() { close(a.liveEntered) })
	}
	if a.liveGate != nil {
		<-a.liveGate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.live, a.liveErr
}

func (a *stubAPI) StartSession(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.LiveSession, error) {
	a.record("start")
	return a.startFn(req)
}

func (a *stubAPI) StopSession(ctx context.Context, userID, sessionID uuid.UUID, req models.StopSessionRequest) (*models.LiveSession, error) {
	a.record("stop")
	return a.stopFn(req)
}

func (a *stubAPI) PauseSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error) {
	a.record("pause")
	return a.pauseFn()
}

func (a *stubAPI) ResumeSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error) {
	a.record("resume")
	return a.resumeFn()
}

func (a *stubAPI) UpdateGoal(ctx context.Context, userID, sessionID uuid.UUID, goal models.GoalSubmission) (*models.LiveSession, error) {
	a.record("goal")
	return a.goalFn(goal)
}

func (a *stubAPI) UpdateProgress(ctx context.Context, userID, sessionID uuid.UUID, req models.ProgressUpdateRequest) (*models.LiveSession, error) {
	a.record("progress")
	return a.progressFn(req)
}

func (a *stubAPI) ListActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error) {
	a.record("types")
	return a.types, a.typesErr
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

type fixture struct {
	api       *stubAPI
	svc       *LiveSessionService
	snapshots *repository.MemorySnapshotRepo
	userID    uuid.UUID
	session   *models.LiveSession
	reading   models.ActivityType
	yoga      models.ActivityType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	userID := uuid.New()
	reading := models.ActivityType{ID: uuid.New(), Name: "Reading", MetricKind: models.MetricKindInteger, MetricLabel: strPtr("pages")}
	yoga := models.ActivityType{ID: uuid.New(), Name: "Yoga", MetricKind: models.MetricKindNone}
	session := &models.LiveSession{
		ID:             uuid.New(),
		UserID:         userID,
		ActivityTypeID: reading.ID,
		StartedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		GoalType:       models.GoalTypeMetric,
		GoalTarget:     floatPtr(20),
		Ongoing:        true,
	}

	api := &stubAPI{live: session, types: []models.ActivityType{reading, yoga}}
	snapshots := repository.NewMemorySnapshotRepo(time.Hour)
	svc := NewLiveSessionService(api, snapshots, repository.NewMemoryUndoRepo(time.Minute), zerolog.Nop())

	return &fixture{api: api, svc: svc, snapshots: snapshots, userID: userID, session: session, reading: reading, yoga: yoga}
}

func (f *fixture) withProgress(v *float64) *models.LiveSession {
	s := *f.session
	s.MetricCurrentValue = v
	return &s
}

func TestLiveCachesSnapshotWithActivityType(t *testing.T) {
	f := newFixture(t)

	state, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Stale)
	assert.Equal(t, f.session.ID, state.Snapshot.Session.ID)
	require.NotNil(t, state.Snapshot.ActivityType)
	assert.Equal(t, "pages", state.Snapshot.ActivityType.Label())

	cached, err := f.snapshots.Get(context.Background(), f.userID)
	require.NoError(t, err)
	require.NotNil(t, cached)

	// A second load reuses the cached activity type.
	_, err = f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.api.called("types"))
}

func TestLiveNoSessionClearsCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)

	f.api.live = nil
	state, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Nil(t, state)

	cached, _ := f.snapshots.Get(context.Background(), f.userID)
	assert.Nil(t, cached)
}

func TestLiveServesStaleSnapshotOnRemoteFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)

	f.api.liveErr = &apiclient.Error{Message: "Failed to load live session"}
	state, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Stale)
	assert.Equal(t, f.session.ID, state.Snapshot.Session.ID)
}

func TestLiveRemoteFailureWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.api.liveErr = &apiclient.Error{Status: http.StatusServiceUnavailable, Message: "down"}

	_, err := f.svc.Live(context.Background(), f.userID)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusServiceUnavailable, remote.Status)
	assert.Equal(t, "down", remote.Message)
}

func TestLiveSharedFetchOutlivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.api.liveEntered = make(chan struct{})
	f.api.liveGate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.svc.Live(ctx, f.userID)
		first <- err
	}()
	<-f.api.liveEntered

	type outcome struct {
		state *LiveState
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		state, err := f.svc.Live(context.Background(), f.userID)
		second <- outcome{state, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	close(f.api.liveGate)

	got := <-second
	require.NoError(t, got.err)
	require.NotNil(t, got.state)
	assert.False(t, got.state.Stale)
	assert.Equal(t, f.session.ID, got.state.Snapshot.Session.ID)
	assert.Equal(t, 1, f.api.called("live"))
}

func TestConcurrentMutationIsRejected(t *testing.T) {
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	paused := *f.session
	pausedAt := paused.StartedAt.Add(time.Minute)
	paused.PausedAt = &pausedAt

	f.api.pauseFn = func() (*models.LiveSession, error) {
		close(entered)
		<-release
		return &paused, nil
	}
	f.api.resumeFn = func() (*models.LiveSession, error) {
		t.Error("resume must not reach the API while pause is in flight")
		return nil, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Pause(context.Background(), f.userID)
		done <- err
	}()

	<-entered
	_, err := f.svc.Resume(context.Background(), f.userID)
	var busy *BusyError
	require.True(t, errors.As(err, &busy))

	close(release)
	require.NoError(t, <-done)

	cached, _ := f.snapshots.Get(context.Background(), f.userID)
	require.NotNil(t, cached)
	assert.True(t, cached.Session.IsPaused())
}

func TestPauseConflictLeavesSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Live(context.Background(), f.userID)
	require.NoError(t, err)

	f.api.pauseFn = func() (*models.LiveSession, error) {
		return nil, &apiclient.Error{Status: http.StatusConflict, Message: "Session is already paused"}
	}

	_, err = f.svc.Pause(context.Background(), f.userID)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusConflict, remote.Status)
	assert.Equal(t, "Session is already paused", remote.Message)

	cached, _ := f.snapshots.Get(context.Background(), f.userID)
	require.NotNil(t, cached)
	assert.False(t, cached.Session.IsPaused())
}

func TestUpdateProgressOffersUndo(t *testing.T) {
	f := newFixture(t)
	f.api.live = f.withProgress(floatPtr(3))

	var submitted []float64
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		submitted = append(submitted, req.MetricCurrentValue)
		return f.withProgress(floatPtr(req.MetricCurrentValue)), nil
	}

	result, err := f.svc.UpdateProgress(context.Background(), f.userID, " 8 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{8}, submitted)
	assert.Equal(t, 8.0, *result.Snapshot.Session.MetricCurrentValue)
	assert.Empty(t, result.Snapshot.MetricDraft)
	require.NotNil(t, result.Undo)
	assert.Equal(t, 3.0, *result.Undo.PreviousValue)
	assert.Equal(t, "3 pages", result.Undo.Label)

	undone, err := f.svc.UndoProgress(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 3}, submitted)
	assert.Equal(t, 3.0, *undone.Snapshot.Session.MetricCurrentValue)
	assert.Nil(t, undone.Undo)

	_, err = f.svc.UndoProgress(context.Background(), f.userID)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestUndoWithoutPriorProgressSubmitsZero(t *testing.T) {
	f := newFixture(t)

	var submitted []float64
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		submitted = append(submitted, req.MetricCurrentValue)
		return f.withProgress(floatPtr(req.MetricCurrentValue)), nil
	}

	result, err := f.svc.UpdateProgress(context.Background(), f.userID, "5")
	require.NoError(t, err)
	assert.Nil(t, result.Undo.PreviousValue)
	assert.Equal(t, "0 pages", result.Undo.Label)

	_, err = f.svc.UndoProgress(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0}, submitted)
}

func TestUpdateProgressFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	f.api.live = f.withProgress(floatPtr(3))
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		return nil, &apiclient.Error{Status: http.StatusConflict, Message: "Session is paused"}
	}

	_, err := f.svc.UpdateProgress(context.Background(), f.userID, "9")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "Session is paused", remote.Message)

	cached, _ := f.snapshots.Get(context.Background(), f.userID)
	require.NotNil(t, cached)
	assert.Equal(t, "9", cached.MetricDraft)
	assert.Equal(t, 3.0, *cached.Session.MetricCurrentValue, "committed value is not reverted or replaced")

	_, err = f.svc.UndoProgress(context.Background(), f.userID)
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestUpdateProgressValidatesLocally(t *testing.T) {
	f := newFixture(t)
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		t.Error("invalid progress must not reach the API")
		return nil, nil
	}

	_, err := f.svc.UpdateProgress(context.Background(), f.userID, "2.5")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Progress must be a non-negative whole number", verr.Fields["metricCurrentValue"])
}

func TestStartRejectsMetricGoalOnActivityWithoutMetric(t *testing.T) {
	f := newFixture(t)
	f.api.startFn = func(req models.StartSessionRequest) (*models.LiveSession, error) {
		t.Error("start must not reach the API")
		return nil, nil
	}

	_, err := f.svc.Start(context.Background(), f.userID, StartInput{
		ActivityTypeID: f.yoga.ID,
		Goal:           GoalInput{Type: "METRIC", Target: "10"},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "goalType")
}

func TestStartNormalizesGoal(t *testing.T) {
	f := newFixture(t)

	var sent models.StartSessionRequest
	f.api.startFn = func(req models.StartSessionRequest) (*models.LiveSession, error) {
		sent = req
		s := *f.session
		s.ActivityTypeID = req.ActivityTypeID
		s.GoalType = req.GoalType
		s.GoalTarget = req.GoalTarget
		return &s, nil
	}

	snap, err := f.svc.Start(context.Background(), f.userID, StartInput{
		ActivityTypeID: f.yoga.ID,
		Title:          "  Morning flow ",
		Goal:           GoalInput{Type: "time", Target: "0:45:00", Note: " stretch "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Morning flow", sent.Title)
	assert.Equal(t, models.VisibilityPublic, sent.Visibility)
	assert.Equal(t, models.GoalTypeTime, sent.GoalType)
	assert.Equal(t, 45.0, *sent.GoalTarget)
	assert.Equal(t, "stretch", *sent.GoalNote)
	assert.Equal(t, f.yoga.ID, snap.ActivityType.ID)
}

func TestStartUnknownActivityType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), f.userID, StartInput{ActivityTypeID: uuid.New()})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "activityTypeId")
}

func TestUpdateGoalRejectsBadTimeTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateGoal(context.Background(), f.userID, GoalInput{Type: "TIME", Target: "1:75:00"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Time target must be in H:M:S format", verr.Message)
	assert.Equal(t, 0, f.api.called("goal"))
}

func TestStopValidatesMetricAndClearsSnapshot(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Stop(context.Background(), f.userID, floatPtr(4.5))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "metricValue must be a whole number for INTEGER metrics", verr.Message)

	f.api.stopFn = func(req models.StopSessionRequest) (*models.LiveSession, error) {
		s := *f.session
		ended := s.StartedAt.Add(time.Hour)
		s.EndedAt = &ended
		s.MetricValue = req.MetricValue
		s.GoalAchieved = new(bool)
		return &s, nil
	}

	stopped, err := f.svc.Stop(context.Background(), f.userID, floatPtr(12))
	require.NoError(t, err)
	assert.Equal(t, 12.0, *stopped.Session.MetricValue)
	assert.False(t, stopped.Session.IsLive())

	cached, _ := f.snapshots.Get(context.Background(), f.userID)
	assert.Nil(t, cached)
}

func TestMutationWithoutLiveSession(t *testing.T) {
	f := newFixture(t)
	f.api.live = nil

	_, err := f.svc.Pause(context.Background(), f.userID)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "No live session", notFound.Message)
}

func TestRemoteUnauthorizedMapsToUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.api.liveErr = &apiclient.Error{Status: http.StatusUnauthorized, Message: "Missing user"}

	_, err := f.svc.Live(context.Background(), f.userID)
	var unauthorized *UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
}

func TestUndoSurvivesSnapshotLoadFailure(t *testing.T) {
	f := newFixture(t)

	var submitted []float64
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		submitted = append(submitted, req.MetricCurrentValue)
		return f.withProgress(floatPtr(req.MetricCurrentValue)), nil
	}

	result, err := f.svc.UpdateProgress(context.Background(), f.userID, "7")
	require.NoError(t, err)
	require.NotNil(t, result.Undo)

	require.NoError(t, f.snapshots.Delete(context.Background(), f.userID))
	f.api.liveErr = errors.New("connection refused")

	_, err = f.svc.UndoProgress(context.Background(), f.userID)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))

	f.api.liveErr = nil
	f.api.live = f.withProgress(floatPtr(7))

	undone, err := f.svc.UndoProgress(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 0}, submitted)
	assert.Equal(t, 0.0, *undone.Snapshot.Session.MetricCurrentValue)
}

type ttlRecorder struct {
	UndoStore
	ttls []time.Duration
}

func (r *ttlRecorder) Put(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry, ttl time.Duration) error {
	r.ttls = append(r.ttls, ttl)
	return r.UndoStore.Put(ctx, userID, entry, ttl)
}

func TestFailedUndoKeepsOriginalDeadline(t *testing.T) {
	f := newFixture(t)
	undo := &ttlRecorder{UndoStore: repository.NewMemoryUndoRepo(time.Minute)}
	svc := NewLiveSessionService(f.api, f.snapshots, undo, zerolog.Nop())
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		return f.withProgress(floatPtr(req.MetricCurrentValue)), nil
	}
	result, err := svc.UpdateProgress(context.Background(), f.userID, "4")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), result.Undo.ExpiresAt)

	now = now.Add(50 * time.Second)
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		return nil, &apiclient.Error{Status: http.StatusServiceUnavailable, Message: "Failed to update progress"}
	}
	_, err = svc.UndoProgress(context.Background(), f.userID)
	require.Error(t, err)

	assert.Equal(t, []time.Duration{time.Minute, 10 * time.Second}, undo.ttls)
}

func TestFailedUndoAfterWindowIsNotRestored(t *testing.T) {
	f := newFixture(t)
	undo := &ttlRecorder{UndoStore: repository.NewMemoryUndoRepo(time.Minute)}
	svc := NewLiveSessionService(f.api, f.snapshots, undo, zerolog.Nop())
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		return f.withProgress(floatPtr(req.MetricCurrentValue)), nil
	}
	_, err := svc.UpdateProgress(context.Background(), f.userID, "4")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	f.api.progressFn = func(req models.ProgressUpdateRequest) (*models.LiveSession, error) {
		return nil, &apiclient.Error{Status: http.StatusServiceUnavailable, Message: "Failed to update progress"}
	}
	_, err = svc.UndoProgress(context.Background(), f.userID)
	require.Error(t, err)

	_, err = svc.UndoProgress(context.Background(), f.userID)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Nothing to undo", notFound.Message)
}
