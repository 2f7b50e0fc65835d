package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"progresspal-web/internal/engine"
	"progresspal-web/internal/models"
)

// SessionAPI is the subset of the ProgressPal API the live view needs.
type SessionAPI interface {
	GetLiveSession(ctx context.Context, userID uuid.UUID) (*models.LiveSession, error)
	StartSession(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.LiveSession, error)
	StopSession(ctx context.Context, userID, sessionID uuid.UUID, req models.StopSessionRequest) (*models.LiveSession, error)
	PauseSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error)
	ResumeSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error)
	UpdateGoal(ctx context.Context, userID, sessionID uuid.UUID, goal models.GoalSubmission) (*models.LiveSession, error)
	UpdateProgress(ctx context.Context, userID, sessionID uuid.UUID, req models.ProgressUpdateRequest) (*models.LiveSession, error)
	ListActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error)
}

type SnapshotStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error)
	Save(ctx context.Context, userID uuid.UUID, snap *models.Snapshot) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type UndoStore interface {
	Put(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry, ttl time.Duration) error
	Take(ctx context.Context, userID uuid.UUID) (*models.UndoEntry, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Window() time.Duration
}

// LiveState is the caller's view of its live session. Stale is set when the
// API could not be reached and the cached snapshot was served instead.
type LiveState struct {
	Snapshot *models.Snapshot
	Stale    bool
}

type StartInput struct {
	ActivityTypeID uuid.UUID
	Title          string
	Description    string
	Visibility     models.Visibility
	Goal           GoalInput
}

// GoalInput is goal form text as typed by the user.
type GoalInput struct {
	Type   string
	Target string
	Note   string
}

type ProgressResult struct {
	Snapshot *models.Snapshot
	Undo     *models.UndoOffer
}

// LiveSessionService keeps one last-known-good snapshot per user and
// serializes that user's mutations against the ProgressPal API.
type LiveSessionService struct {
	api       SessionAPI
	snapshots SnapshotStore
	undo      UndoStore
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	fetches  singleflight.Group
}

func NewLiveSessionService(api SessionAPI, snapshots SnapshotStore, undo UndoStore, logger zerolog.Logger) *LiveSessionService {
	return &LiveSessionService{
		api:       api,
		snapshots: snapshots,
		undo:      undo,
		logger:    logger.With().Str("component", "live_session").Logger(),
		now:       time.Now,
		inflight:  make(map[uuid.UUID]struct{}),
	}
}

// Live fetches the authoritative live session. When the API fails, the
// cached snapshot is returned marked stale; with nothing cached the error is
// returned. A nil state means the user has no live session. Concurrent
// callers share one fetch, which outlives any single caller's cancellation.
func (s *LiveSessionService) Live(ctx context.Context, userID uuid.UUID) (*LiveState, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.fetches.DoChan(userID.String(), func() (any, error) {
		return s.refresh(fetchCtx, userID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	err := res.Err
	if err == nil {
		snap, _ := res.Val.(*models.Snapshot)
		if snap == nil {
			return nil, nil
		}
		return &LiveState{Snapshot: snap}, nil
	}

	cached, cacheErr := s.snapshots.Get(ctx, userID)
	if cacheErr != nil || cached == nil {
		return nil, err
	}

	s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("serving cached live session")
	return &LiveState{Snapshot: cached, Stale: true}, nil
}

func (s *LiveSessionService) refresh(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	session, err := s.api.GetLiveSession(ctx, userID)
	if err != nil {
		return nil, remoteFrom(err)
	}

	if session == nil {
		s.forget(ctx, userID)
		return nil, nil
	}

	cached, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read cached snapshot")
		cached = nil
	}

	snap := &models.Snapshot{Session: session, FetchedAt: s.now()}
	if cached != nil && cached.Session != nil && cached.Session.ID == session.ID {
		snap.MetricDraft = cached.MetricDraft
		if cached.ActivityType != nil && cached.ActivityType.ID == session.ActivityTypeID {
			snap.ActivityType = cached.ActivityType
		}
	}

	if snap.ActivityType == nil {
		activity, err := s.findActivityType(ctx, userID, session.ActivityTypeID)
		if err != nil {
			s.logger.Warn().Err(err).Str("activity_type_id", session.ActivityTypeID.String()).Msg("failed to resolve activity type")
		}
		snap.ActivityType = activity
	}

	s.save(ctx, userID, snap)
	return snap, nil
}

// ActivityTypes proxies the caller's activity type list.
func (s *LiveSessionService) ActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error) {
	types, err := s.api.ListActivityTypes(ctx, userID)
	if err != nil {
		return nil, remoteFrom(err)
	}
	return types, nil
}

func (s *LiveSessionService) Start(ctx context.Context, userID uuid.UUID, in StartInput) (*models.Snapshot, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	activity, err := s.findActivityType(ctx, userID, in.ActivityTypeID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, &ValidationError{
			Fields:  map[string]string{"activityTypeId": "Unknown activity type"},
			Message: "Unknown activity type",
		}
	}

	goal, err := buildGoal(in.Goal, activity.EffectiveMetricKind())
	if err != nil {
		return nil, err
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	session, err := s.api.StartSession(ctx, userID, models.StartSessionRequest{
		ActivityTypeID: activity.ID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Visibility:     visibility,
		GoalType:       goal.GoalType,
		GoalTarget:     goal.GoalTarget,
		GoalNote:       goal.GoalNote,
	})
	if err != nil {
		return nil, remoteFrom(err)
	}

	s.clearUndo(ctx, userID)
	snap := &models.Snapshot{Session: session, ActivityType: activity, FetchedAt: s.now()}
	s.save(ctx, userID, snap)

	s.logger.Info().Str("user_id", userID.String()).Str("session_id", session.ID.String()).Msg("session started")
	return snap, nil
}

func (s *LiveSessionService) Pause(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	return s.transition(ctx, userID, s.api.PauseSession)
}

func (s *LiveSessionService) Resume(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	return s.transition(ctx, userID, s.api.ResumeSession)
}

func (s *LiveSessionService) transition(
	ctx context.Context,
	userID uuid.UUID,
	call func(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error),
) (*models.Snapshot, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := call(ctx, userID, current.Session.ID)
	if err != nil {
		return nil, remoteFrom(err)
	}

	return s.commit(ctx, userID, current, session, current.MetricDraft), nil
}

// Stop ends the live session. metricValue is optional and is checked
// against the activity's metric kind before the API is called. The returned
// snapshot holds the ended session with the server's goal feedback.
func (s *LiveSessionService) Stop(ctx context.Context, userID uuid.UUID, metricValue *float64) (*models.Snapshot, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	if current.ActivityType != nil {
		if err := engine.ValidateStopMetric(metricValue, current.ActivityType.EffectiveMetricKind()); err != nil {
			return nil, validationFrom(err)
		}
	}

	stopped, err := s.api.StopSession(ctx, userID, current.Session.ID, models.StopSessionRequest{MetricValue: metricValue})
	if err != nil {
		return nil, remoteFrom(err)
	}

	s.forget(ctx, userID)
	s.logger.Info().Str("user_id", userID.String()).Str("session_id", stopped.ID.String()).Msg("session stopped")
	return &models.Snapshot{Session: stopped, ActivityType: current.ActivityType, FetchedAt: s.now()}, nil
}

func (s *LiveSessionService) UpdateGoal(ctx context.Context, userID uuid.UUID, in GoalInput) (*models.Snapshot, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	goal, err := buildGoal(in, current.ActivityType.EffectiveMetricKind())
	if err != nil {
		return nil, err
	}

	session, err := s.api.UpdateGoal(ctx, userID, current.Session.ID, goal)
	if err != nil {
		return nil, remoteFrom(err)
	}

	return s.commit(ctx, userID, current, session, current.MetricDraft), nil
}

// UpdateProgress records raw as the draft, submits it, and on success
// offers to undo back to the previously committed value. On failure the
// draft is kept and the committed session is left untouched.
func (s *LiveSessionService) UpdateProgress(ctx context.Context, userID uuid.UUID, raw string) (*ProgressResult, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	value, err := engine.ParseMetricProgress(raw, current.ActivityType.EffectiveMetricKind())
	if err != nil {
		return nil, validationFrom(err)
	}

	drafted := *current
	drafted.MetricDraft = strings.TrimSpace(raw)
	s.save(ctx, userID, &drafted)

	previous := current.Session.MetricCurrentValue

	session, err := s.api.UpdateProgress(ctx, userID, current.Session.ID, models.ProgressUpdateRequest{MetricCurrentValue: value})
	if err != nil {
		return nil, remoteFrom(err)
	}

	snap := s.commit(ctx, userID, &drafted, session, "")

	now := s.now()
	entry := &models.UndoEntry{
		SessionID:     session.ID,
		PreviousValue: previous,
		AppliedValue:  value,
		CreatedAt:     now,
	}
	if err := s.undo.Put(ctx, userID, entry, s.undo.Window()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record undo entry")
		return &ProgressResult{Snapshot: snap}, nil
	}

	return &ProgressResult{
		Snapshot: snap,
		Undo: &models.UndoOffer{
			PreviousValue: previous,
			Label:         engine.FormatGoalValue(undoValue(previous), models.GoalTypeMetric, snap.ActivityType.Label()),
			ExpiresAt:     now.Add(s.undo.Window()),
		},
	}, nil
}

// UndoProgress re-submits the value that preceded the last progress update
// as a new mutation. When the undo fails the offer is restored for whatever
// is left of its window.
func (s *LiveSessionService) UndoProgress(ctx context.Context, userID uuid.UUID) (*ProgressResult, error) {
	release, err := s.acquire(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := s.undo.Take(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errNothingToUndo
	}

	result, err := s.applyUndo(ctx, userID, entry)
	if err != nil {
		if !errors.Is(err, errNothingToUndo) {
			s.restoreUndo(ctx, userID, entry)
		}
		return nil, err
	}
	return result, nil
}

func (s *LiveSessionService) applyUndo(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry) (*ProgressResult, error) {
	current, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The offer belongs to a session that has since ended.
	if current.Session.ID != entry.SessionID {
		return nil, errNothingToUndo
	}

	value := *undoValue(entry.PreviousValue)
	if err := engine.ValidateMetricProgress(value, current.ActivityType.EffectiveMetricKind()); err != nil {
		return nil, validationFrom(err)
	}

	session, err := s.api.UpdateProgress(ctx, userID, current.Session.ID, models.ProgressUpdateRequest{MetricCurrentValue: value})
	if err != nil {
		return nil, remoteFrom(err)
	}

	return &ProgressResult{Snapshot: s.commit(ctx, userID, current, session, "")}, nil
}

func (s *LiveSessionService) restoreUndo(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry) {
	left := entry.CreatedAt.Add(s.undo.Window()).Sub(s.now())
	if err := s.undo.Put(ctx, userID, entry, left); err != nil {
		s.logger.Warn().Err(err).Msg("failed to restore undo entry")
	}
}

// DiscardDraft drops unsaved progress text from the cached snapshot.
func (s *LiveSessionService) DiscardDraft(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Session == nil {
		return nil, errNoLiveSession
	}
	snap.MetricDraft = ""
	s.save(ctx, userID, snap)
	return snap, nil
}

func (s *LiveSessionService) acquire(userID uuid.UUID) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[userID]; busy {
		return nil, errBusy
	}
	s.inflight[userID] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, userID)
		s.mu.Unlock()
	}, nil
}

// current returns the cached snapshot, fetching it when nothing is cached.
func (s *LiveSessionService) current(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read cached snapshot")
		snap = nil
	}
	if snap == nil || snap.Session == nil {
		snap, err = s.refresh(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	if snap == nil || !snap.Session.IsLive() {
		return nil, errNoLiveSession
	}
	if snap.ActivityType == nil {
		activity, err := s.findActivityType(ctx, userID, snap.Session.ActivityTypeID)
		if err != nil {
			return nil, err
		}
		snap.ActivityType = activity
	}
	return snap, nil
}

func (s *LiveSessionService) commit(ctx context.Context, userID uuid.UUID, prev *models.Snapshot, session *models.LiveSession, draft string) *models.Snapshot {
	snap := &models.Snapshot{
		Session:      session,
		ActivityType: prev.ActivityType,
		MetricDraft:  draft,
		FetchedAt:    s.now(),
	}
	if !session.IsLive() {
		s.forget(ctx, userID)
		return snap
	}
	s.save(ctx, userID, snap)
	return snap
}

func (s *LiveSessionService) save(ctx context.Context, userID uuid.UUID, snap *models.Snapshot) {
	if err := s.snapshots.Save(ctx, userID, snap); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to cache snapshot")
	}
}

func (s *LiveSessionService) forget(ctx context.Context, userID uuid.UUID) {
	if err := s.snapshots.Delete(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to drop cached snapshot")
	}
	s.clearUndo(ctx, userID)
}

func (s *LiveSessionService) clearUndo(ctx context.Context, userID uuid.UUID) {
	if err := s.undo.Clear(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear undo entry")
	}
}

func (s *LiveSessionService) findActivityType(ctx context.Context, userID, activityTypeID uuid.UUID) (*models.ActivityType, error) {
	types, err := s.api.ListActivityTypes(ctx, userID)
	if err != nil {
		return nil, remoteFrom(err)
	}
	for i := range types {
		if types[i].ID == activityTypeID {
			return &types[i], nil
		}
	}
	return nil, nil
}

func buildGoal(in GoalInput, kind models.MetricKind) (models.GoalSubmission, error) {
	goalType, err := engine.ParseGoalType(in.Type)
	if err != nil {
		return models.GoalSubmission{}, validationFrom(err)
	}
	if err := engine.CheckGoalAgainstActivity(goalType, kind); err != nil {
		return models.GoalSubmission{}, validationFrom(err)
	}
	goal, err := engine.BuildGoalSubmission(goalType, in.Target, in.Note)
	if err != nil {
		return models.GoalSubmission{}, validationFrom(err)
	}
	return goal, nil
}

// undoValue treats a session that never recorded progress as zero.
func undoValue(previous *float64) *float64 {
	if previous == nil {
		zero := 0.0
		return &zero
	}
	return previous
}
