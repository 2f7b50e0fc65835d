package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"progresspal-web/internal/models"
)

func TestGoalPreview(t *testing.T) {
	pages := "pages"
	reading := models.ActivityType{ID: uuid.New(), Name: "Reading", MetricKind: models.MetricKindInteger, MetricLabel: &pages}
	yoga := models.ActivityType{ID: uuid.New(), Name: "Yoga"}
	svc := &stubLiveService{types: []models.ActivityType{reading, yoga}}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLabel  string
		wantField  string
	}{
		{"time target", `{"goalType":"TIME","goalTarget":"1:30:00"}`, http.StatusOK, "1:30:00", ""},
		{"bad time target", `{"goalType":"TIME","goalTarget":"1:75:00"}`, http.StatusBadRequest, "", "goalTarget"},
		{"metric with label", `{"goalType":"METRIC","goalTarget":"12","activityTypeId":"` + reading.ID.String() + `"}`, http.StatusOK, "12 pages", ""},
		{"metric on activity without metric", `{"goalType":"METRIC","goalTarget":"12","activityTypeId":"` + yoga.ID.String() + `"}`, http.StatusBadRequest, "", "goalType"},
		{"unknown activity", `{"goalType":"TIME","goalTarget":"0:10:00","activityTypeId":"` + uuid.NewString() + `"}`, http.StatusBadRequest, "", "activityTypeId"},
		{"no goal", `{"goalType":"NONE"}`, http.StatusOK, "-", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(svc)
			rr := httptest.NewRecorder()
			h.GoalPreview(rr, newRequest(http.MethodPost, "/api/v1/goals/preview", tc.body, uuid.New()))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}

			if tc.wantStatus == http.StatusOK {
				var resp goalPreviewResponse
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.TargetLabel != tc.wantLabel {
					t.Fatalf("expected label %q, got %q", tc.wantLabel, resp.TargetLabel)
				}
				return
			}

			apiErr := decodeError(t, rr)
			if _, ok := apiErr.Fields[tc.wantField]; !ok {
				t.Fatalf("expected field %s in %v", tc.wantField, apiErr.Fields)
			}
		})
	}
}
