package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"progresspal-web/internal/middleware"
	"progresspal-web/internal/models"
	"progresspal-web/internal/services"
)

type liveSessionService interface {
	Live(ctx context.Context, userID uuid.UUID) (*services.LiveState, error)
	Start(ctx context.Context, userID uuid.UUID, in services.StartInput) (*models.Snapshot, error)
	Pause(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error)
	Resume(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error)
	Stop(ctx context.Context, userID uuid.UUID, metricValue *float64) (*models.Snapshot, error)
	UpdateGoal(ctx context.Context, userID uuid.UUID, in services.GoalInput) (*models.Snapshot, error)
	UpdateProgress(ctx context.Context, userID uuid.UUID, raw string) (*services.ProgressResult, error)
	UndoProgress(ctx context.Context, userID uuid.UUID) (*services.ProgressResult, error)
	DiscardDraft(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error)
	ActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error)
}

type LiveSessionHandler struct {
	service liveSessionService
	now     func() time.Time
}

func NewLiveSessionHandler(service *services.LiveSessionService) *LiveSessionHandler {
	return &LiveSessionHandler{service: service, now: time.Now}
}

type liveResponse struct {
	View         models.LiveView      `json:"view"`
	ActivityType *models.ActivityType `json:"activityType,omitempty"`
	Undo         *models.UndoOffer    `json:"undo,omitempty"`
}

func (h *LiveSessionHandler) respond(w http.ResponseWriter, status int, snap *models.Snapshot, stale bool, undo *models.UndoOffer) {
	writeJSON(w, status, liveResponse{
		View:         services.BuildView(snap, stale, h.now()),
		ActivityType: snap.ActivityType,
		Undo:         undo,
	})
}

// GET /api/v1/live
func (h *LiveSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	state, err := h.service.Live(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if state == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.respond(w, http.StatusOK, state.Snapshot, state.Stale, nil)
}

// POST /api/v1/live
func (h *LiveSessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req startRequest
	if msg, fields := decodeRequest(r, &req, false); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, fields, r))
		return
	}

	snap, err := h.service.Start(r.Context(), userID, services.StartInput{
		ActivityTypeID: uuid.MustParse(req.ActivityTypeID),
		Title:          req.Title,
		Description:    req.Description,
		Visibility:     models.Visibility(req.Visibility),
		Goal: services.GoalInput{
			Type:   req.GoalType,
			Target: string(req.GoalTarget),
			Note:   req.GoalNote,
		},
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, snap, false, nil)
}

// POST /api/v1/live/pause
func (h *LiveSessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Pause(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, snap, false, nil)
}

// POST /api/v1/live/resume
func (h *LiveSessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Resume(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, snap, false, nil)
}

// POST /api/v1/live/stop
func (h *LiveSessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req stopRequest
	if msg, fields := decodeRequest(r, &req, true); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, fields, r))
		return
	}

	snap, err := h.service.Stop(r.Context(), userID, req.MetricValue)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, snap, false, nil)
}

// PUT /api/v1/live/goal
func (h *LiveSessionHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req goalRequest
	if msg, fields := decodeRequest(r, &req, false); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, fields, r))
		return
	}

	snap, err := h.service.UpdateGoal(r.Context(), userID, services.GoalInput{
		Type:   req.GoalType,
		Target: string(req.GoalTarget),
		Note:   req.GoalNote,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, snap, false, nil)
}

// PUT /api/v1/live/progress
func (h *LiveSessionHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req progressRequest
	if msg, fields := decodeRequest(r, &req, false); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, fields, r))
		return
	}

	result, err := h.service.UpdateProgress(r.Context(), userID, string(req.MetricCurrentValue))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, result.Snapshot, false, result.Undo)
}

// POST /api/v1/live/progress/undo
func (h *LiveSessionHandler) UndoProgress(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.UndoProgress(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, result.Snapshot, false, nil)
}

// DELETE /api/v1/live/progress/draft
func (h *LiveSessionHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.DiscardDraft(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, snap, false, nil)
}

// GET /api/v1/activity-types
func (h *LiveSessionHandler) ActivityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ActivityTypes(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if types == nil {
		types = []models.ActivityType{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activityTypes": types})
}
