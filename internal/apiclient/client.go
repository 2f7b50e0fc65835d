package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"progresspal-web/internal/models"
)

// UserIDHeader carries the caller identity on every API request.
const UserIDHeader = "X-User-Id"

const maxErrorBody = 64 << 10

type tokenKey struct{}

// WithBearerToken attaches a token that will be forwarded as
// "Authorization: Bearer <token>" on calls made with ctx.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func bearerToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Error is a non-2xx answer from the API, or a failure to reach it
// (Status 0). Message is the server's message when it sent one.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the ProgressPal REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetLiveSession returns the caller's live session, or nil when the API
// answers 204 No Content or an empty body.
func (c *Client) GetLiveSession(ctx context.Context, userID uuid.UUID) (*models.LiveSession, error) {
	var session models.LiveSession
	status, err := c.do(ctx, userID, http.MethodGet, "/sessions/live", nil, &session, "Failed to load live session")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}

func (c *Client) StartSession(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPost, "/sessions", req, "Failed to start session")
}

func (c *Client) StopSession(ctx context.Context, userID, sessionID uuid.UUID, req models.StopSessionRequest) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPatch, sessionPath(sessionID, "stop"), req, "Failed to stop session")
}

func (c *Client) PauseSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPatch, sessionPath(sessionID, "pause"), nil, "Failed to pause session")
}

func (c *Client) ResumeSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPatch, sessionPath(sessionID, "resume"), nil, "Failed to resume session")
}

func (c *Client) UpdateGoal(ctx context.Context, userID, sessionID uuid.UUID, goal models.GoalSubmission) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPatch, sessionPath(sessionID, "goal"), goal, "Failed to update goal")
}

func (c *Client) UpdateProgress(ctx context.Context, userID, sessionID uuid.UUID, req models.ProgressUpdateRequest) (*models.LiveSession, error) {
	return c.sessionCall(ctx, userID, http.MethodPatch, sessionPath(sessionID, "progress"), req, "Failed to update progress")
}

// ListActivityTypes returns built-in and the caller's custom activity types.
func (c *Client) ListActivityTypes(ctx context.Context, userID uuid.UUID) ([]models.ActivityType, error) {
	var types []models.ActivityType
	if _, err := c.do(ctx, userID, http.MethodGet, "/activity-types?scope=ALL", nil, &types, "Failed to load activity types"); err != nil {
		return nil, err
	}
	return types, nil
}

func (c *Client) sessionCall(ctx context.Context, userID uuid.UUID, method, path string, body any, fallback string) (*models.LiveSession, error) {
	var session models.LiveSession
	if _, err := c.do(ctx, userID, method, path, body, &session, fallback); err != nil {
		return nil, err
	}
	return &session, nil
}

func sessionPath(sessionID uuid.UUID, action string) string {
	return "/sessions/" + url.PathEscape(sessionID.String()) + "/" + action
}

func (c *Client) do(ctx context.Context, userID uuid.UUID, method, path string, body, out any, fallback string) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(UserIDHeader, userID.String())
	if token := bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &Error{Status: resp.StatusCode, Message: errorMessage(resp.Body, fallback)}
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}

	return resp.StatusCode, nil
}

// errorMessage reads the server's {"message": "..."} body, falling back when
// the body is empty, not JSON, or carries no message.
func errorMessage(body io.Reader, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return fallback
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return fallback
}
