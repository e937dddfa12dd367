package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"dcode-agent/internal/dialogue"
	"dcode-agent/internal/domain"
	"dcode-agent/internal/scenario"
	"dcode-agent/internal/usecase"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, _ string, input domain.UserInput, _ []domain.Turn) (domain.BotTurnDraft, error) {
	return domain.BotTurnDraft{Text: "echo: " + input.Value}, nil
}

type stubStore struct {
	profiles      map[string]domain.UserProfile
	notifications []domain.Notification
	trip          domain.Trip
	tripFound     bool
	err           error

	seededFor    []string
	savedUser    string
	savedNick    string
	addedTitles  []string
	readIDs      []string
	readAllUsers []string
	deletedIDs   []string
}

func (s *stubStore) GetProfile(_ context.Context, userID string) (domain.UserProfile, bool, error) {
	if s.err != nil {
		return domain.UserProfile{}, false, s.err
	}
	p, ok := s.profiles[userID]
	return p, ok, nil
}

func (s *stubStore) SaveNickname(_ context.Context, userID, nickname string) error {
	s.savedUser, s.savedNick = userID, nickname
	return s.err
}

func (s *stubStore) SeedNotifications(_ context.Context, userID string) error {
	s.seededFor = append(s.seededFor, userID)
	return s.err
}

func (s *stubStore) ListNotifications(_ context.Context, _ string) ([]domain.Notification, error) {
	return s.notifications, s.err
}

func (s *stubStore) AddNotification(_ context.Context, _, title, _, _ string) error {
	s.addedTitles = append(s.addedTitles, title)
	return s.err
}

func (s *stubStore) MarkNotificationRead(_ context.Context, _, id string) error {
	s.readIDs = append(s.readIDs, id)
	return s.err
}

func (s *stubStore) MarkAllNotificationsRead(_ context.Context, userID string) error {
	s.readAllUsers = append(s.readAllUsers, userID)
	return s.err
}

func (s *stubStore) DeleteNotification(_ context.Context, _, id string) error {
	s.deletedIDs = append(s.deletedIDs, id)
	return s.err
}

func (s *stubStore) GetLatestTrip(_ context.Context, _ string) (domain.Trip, bool, error) {
	return s.trip, s.tripFound, s.err
}

func newTestHandler(t *testing.T, store *stubStore) (*Handler, *dialogue.Manager) {
	t.Helper()
	m, err := dialogue.NewManager(stubResolver{}, dialogue.HandoffFunc(func(context.Context, dialogue.HandoffPayload) error {
		return nil
	}))
	require.NoError(t, err)
	h, err := NewHandler(m, store)
	require.NoError(t, err)
	return h, m
}

func invoke(t *testing.T, h *Handler, method, path, body string, query map[string]string) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            method,
		Path:                  path,
		Body:                  body,
		QueryStringParameters: query,
	})
	require.NoError(t, err, "the lambda contract never surfaces errors")
	return resp
}

func decodeSession(t *testing.T, body string) sessionResponse {
	t.Helper()
	var out sessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func decodeError(t *testing.T, body string) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, &stubStore{})
	require.Error(t, err)

	m, err := dialogue.NewManager(stubResolver{}, dialogue.HandoffFunc(func(context.Context, dialogue.HandoffPayload) error { return nil }))
	require.NoError(t, err)
	_, err = NewHandler(m, nil)
	require.Error(t, err)
}

func TestHandle_StartSession(t *testing.T) {
	store := &stubStore{}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodPost, "/chat/session", `{"destination":"Expo Park","nickname":"Mina"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := decodeSession(t, resp.Body)
	require.NotEmpty(t, out.SessionID)
	require.Len(t, out.Turns, 1)
	require.Contains(t, out.Turns[0].Text, "Mina")
	require.Equal(t, scenario.GreetingOptions(), out.Options)
	require.False(t, out.Ended)
	require.Empty(t, store.seededFor, "no userId, nothing to seed")
}

func TestHandle_StartSession_LoadsNicknameAndSeeds(t *testing.T) {
	store := &stubStore{profiles: map[string]domain.UserProfile{
		"u-1": {UserID: "u-1", Nickname: "Explorer"},
	}}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodPost, "/chat/session", `{"destination":"Expo Park","userId":"u-1"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decodeSession(t, resp.Body)
	require.Contains(t, out.Turns[0].Text, "Explorer")
	require.Equal(t, []string{"u-1"}, store.seededFor)
}

func TestHandle_StartSession_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, &stubStore{})

	resp := invoke(t, h, http.MethodPost, "/chat/session", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "malformed_body", decodeError(t, resp.Body).Reason)

	resp = invoke(t, h, http.MethodPost, "/chat/session", `{"nickname":"Mina"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "empty_destination", decodeError(t, resp.Body).Reason)
}

func TestHandle_SubmitMessage(t *testing.T) {
	h, m := newTestHandler(t, &stubStore{})
	s, err := m.Start("Expo Park", "Mina", "u-1")
	require.NoError(t, err)

	resp := invoke(t, h, http.MethodPost, "/chat/message", `{"sessionId":"`+s.ID()+`","kind":"text","value":"hello"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeSession(t, resp.Body)
	require.Len(t, out.Turns, 2)
	require.Equal(t, "hello", out.Turns[0].Text)
	require.Equal(t, "echo: hello", out.Turns[1].Text)
	require.False(t, out.Ended)
}

func TestHandle_SubmitMessage_UnknownKind(t *testing.T) {
	h, m := newTestHandler(t, &stubStore{})
	s, err := m.Start("Expo Park", "Mina", "u-1")
	require.NoError(t, err)

	resp := invoke(t, h, http.MethodPost, "/chat/message", `{"sessionId":"`+s.ID()+`","kind":"voice","value":"hello"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "unknown_input_kind", decodeError(t, resp.Body).Reason)
}

func TestHandle_SubmitMessage_UnknownSession(t *testing.T) {
	h, _ := newTestHandler(t, &stubStore{})

	resp := invoke(t, h, http.MethodPost, "/chat/message", `{"sessionId":"nope","kind":"text","value":"hello"}`, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "session_not_found", decodeError(t, resp.Body).Reason)
}

func TestHandle_ScanThenTerminal(t *testing.T) {
	h, m := newTestHandler(t, &stubStore{})
	s, err := m.Start("Expo Park", "Mina", "u-1")
	require.NoError(t, err)

	resp := invoke(t, h, http.MethodPost, "/chat/scan", `{"sessionId":"`+s.ID()+`","artifact":"qr-1"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeSession(t, resp.Body)
	require.Equal(t, []string{scenario.TerminalOption}, out.Options)

	body, err := json.Marshal(submitRequest{SessionID: s.ID(), Kind: "option", Value: scenario.TerminalOption})
	require.NoError(t, err)
	resp = invoke(t, h, http.MethodPost, "/chat/message", string(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decodeSession(t, resp.Body)
	require.True(t, out.Ended)
	require.Len(t, out.Turns, 1)
}

func TestHandle_TerminalHandoffKeyedOnUserID(t *testing.T) {
	var captured dialogue.HandoffPayload
	m, err := dialogue.NewManager(stubResolver{}, dialogue.HandoffFunc(func(_ context.Context, p dialogue.HandoffPayload) error {
		captured = p
		return nil
	}))
	require.NoError(t, err)
	h, err := NewHandler(m, &stubStore{profiles: map[string]domain.UserProfile{
		"u-1": {UserID: "u-1", Nickname: "Mina"},
	}})
	require.NoError(t, err)

	resp := invoke(t, h, http.MethodPost, "/chat/session", `{"destination":"Expo Park","userId":"u-1"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := decodeSession(t, resp.Body).SessionID

	body, err := json.Marshal(submitRequest{SessionID: sessionID, Kind: "option", Value: scenario.TerminalOption})
	require.NoError(t, err)
	resp = invoke(t, h, http.MethodPost, "/chat/message", string(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "u-1", captured.UserID, "the trip record and trip lookups must share a key")
	require.Equal(t, "Mina", captured.Nickname)
}

func TestHandle_GetAndCloseSession(t *testing.T) {
	h, m := newTestHandler(t, &stubStore{})
	s, err := m.Start("Expo Park", "Mina", "u-1")
	require.NoError(t, err)

	resp := invoke(t, h, http.MethodGet, "/chat/session", "", map[string]string{"sessionId": s.ID()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, s.ID(), decodeSession(t, resp.Body).SessionID)

	resp = invoke(t, h, http.MethodDelete, "/chat/session/", "", map[string]string{"sessionId": s.ID()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Body)

	resp = invoke(t, h, http.MethodGet, "/chat/session", "", map[string]string{"sessionId": s.ID()})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_Profile(t *testing.T) {
	store := &stubStore{profiles: map[string]domain.UserProfile{
		"u-1": {UserID: "u-1", Nickname: "Explorer"},
	}}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodGet, "/profile", "", map[string]string{"userId": "u-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile profileResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &profile))
	require.Equal(t, profileResponse{UserID: "u-1", Nickname: "Explorer"}, profile)

	resp = invoke(t, h, http.MethodGet, "/profile", "", map[string]string{"userId": "ghost"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = invoke(t, h, http.MethodGet, "/profile", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_SaveNickname(t *testing.T) {
	store := &stubStore{}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodPut, "/profile/nickname", `{"userId":"u-1","nickname":"Explorer"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "u-1", store.savedUser)
	require.Equal(t, "Explorer", store.savedNick)

	resp = invoke(t, h, http.MethodPut, "/profile/nickname", `{"userId":"u-1"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_Notifications(t *testing.T) {
	store := &stubStore{notifications: []domain.Notification{
		{SK: "NOTIF#seed-1", Title: "Arrival alert", Kind: "info", Read: false},
		{SK: "NOTIF#seed-3", Title: "Weather alert", Kind: "warning", Read: true},
	}}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodGet, "/notifications", "", map[string]string{"userId": "u-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out notificationsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	require.Len(t, out.Notifications, 2)
	require.Equal(t, 1, out.Unread)
	require.Equal(t, "NOTIF#seed-1", out.Notifications[0].ID)

	resp = invoke(t, h, http.MethodPost, "/notifications/read", `{"userId":"u-1","id":"NOTIF#seed-1"}`, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"NOTIF#seed-1"}, store.readIDs)

	resp = invoke(t, h, http.MethodPost, "/notifications/read-all", `{"userId":"u-1"}`, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"u-1"}, store.readAllUsers)

	resp = invoke(t, h, http.MethodDelete, "/notifications", "", map[string]string{"userId": "u-1", "id": "NOTIF#seed-3"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"NOTIF#seed-3"}, store.deletedIDs)
}

func TestHandle_AddNotification(t *testing.T) {
	store := &stubStore{}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodPost, "/notifications", `{"userId":"u-1","title":"Scan reminder","message":"Two records left to find.","kind":"info"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, []string{"Scan reminder"}, store.addedTitles)

	resp = invoke(t, h, http.MethodPost, "/notifications", `{"userId":"u-1"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_user_or_title", decodeError(t, resp.Body).Reason)
}

func TestHandle_LatestTrip(t *testing.T) {
	store := &stubStore{
		trip: domain.Trip{
			TripID:        "trip-1",
			Nickname:      "Explorer",
			VisitedPlaces: []string{"Expo Park"},
			ScanArtifact:  "qr-1",
			CompletedAt:   "2026-08-30T12:00:00Z",
		},
		tripFound: true,
	}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodGet, "/trip/latest", "", map[string]string{"userId": "u-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out tripResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	require.Equal(t, "trip-1", out.TripID)
	require.Equal(t, []string{"Expo Park"}, out.VisitedPlaces)

	store.tripFound = false
	resp = invoke(t, h, http.MethodGet, "/trip/latest", "", map[string]string{"userId": "u-1"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_StoreErrorMapsToInternal(t *testing.T) {
	store := &stubStore{err: errors.New("dynamodb down")}
	h, _ := newTestHandler(t, store)

	resp := invoke(t, h, http.MethodGet, "/notifications", "", map[string]string{"userId": "u-1"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorInternal), decodeError(t, resp.Body).Error)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t, &stubStore{})

	resp := invoke(t, h, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "unknown_route", decodeError(t, resp.Body).Reason)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid input", err: usecase.NewError(usecase.ErrorInvalidInput, "r", nil), wantStatus: http.StatusBadRequest},
		{name: "not found", err: usecase.NewError(usecase.ErrorNotFound, "r", nil), wantStatus: http.StatusNotFound},
		{name: "busy", err: usecase.NewError(usecase.ErrorBusy, "r", nil), wantStatus: http.StatusTooManyRequests},
		{name: "upstream", err: usecase.NewError(usecase.ErrorUpstream, "r", nil), wantStatus: http.StatusBadGateway},
		{name: "internal", err: usecase.NewError(usecase.ErrorInternal, "r", nil), wantStatus: http.StatusInternalServerError},
		{name: "untyped", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			require.Equal(t, tc.wantStatus, status)
		})
	}
}
