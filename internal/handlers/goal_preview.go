package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"progresspal-web/internal/engine"
	"progresspal-web/internal/middleware"
	"progresspal-web/internal/models"
)

type goalPreviewResponse struct {
	Submission  models.GoalSubmission `json:"submission"`
	TargetLabel string                `json:"targetLabel"`
}

// GoalPreview validates goal form text on each keystroke without touching
// the live session. POST /api/v1/goals/preview
func (h *LiveSessionHandler) GoalPreview(w http.ResponseWriter, r *http.Request) {
	var req goalPreviewRequest
	if msg, fields := decodeRequest(r, &req, false); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, fields, r))
		return
	}

	goalType, err := engine.ParseGoalType(req.GoalType)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	label := ""
	if req.ActivityTypeID != "" {
		activity, err := h.findActivityType(r, uuid.MustParse(req.ActivityTypeID))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if activity == nil {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Unknown activity type",
				map[string]string{"activityTypeId": "Unknown activity type"}, r))
			return
		}
		if err := engine.CheckGoalAgainstActivity(goalType, activity.EffectiveMetricKind()); err != nil {
			writeEngineError(w, r, err)
			return
		}
		label = activity.Label()
	}

	sub, err := engine.BuildGoalSubmission(goalType, string(req.GoalTarget), req.GoalNote)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, goalPreviewResponse{
		Submission:  sub,
		TargetLabel: engine.FormatGoalValue(sub.GoalTarget, sub.GoalType, label),
	})
}

func (h *LiveSessionHandler) findActivityType(r *http.Request, id uuid.UUID) (*models.ActivityType, error) {
	types, err := h.service.ActivityTypes(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		return nil, err
	}
	for i := range types {
		if types[i].ID == id {
			return &types[i], nil
		}
	}
	return nil, nil
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", verr.Message,
			map[string]string{verr.Field: verr.Message}, r))
		return
	}
	handleServiceError(w, r, err)
}
