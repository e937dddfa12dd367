// Package handler exposes the tour-guide chat over an API Gateway
// proxy Lambda.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"dcode-agent/internal/dialogue"
	"dcode-agent/internal/domain"
	"dcode-agent/internal/repository"
	"dcode-agent/internal/usecase"
)

// SessionService is the chat-session surface consumed by the handler.
type SessionService interface {
	Start(destination, nickname, userID string) (*dialogue.Session, error)
	Get(id string) (*dialogue.Session, error)
	Close(id string)
}

// VisitorStore is the persisted visitor-state surface consumed by the
// handler.
type VisitorStore interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error)
	SaveNickname(ctx context.Context, userID, nickname string) error
	SeedNotifications(ctx context.Context, userID string) error
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	AddNotification(ctx context.Context, userID, title, message, kind string) error
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, userID, id string) error
	GetLatestTrip(ctx context.Context, userID string) (domain.Trip, bool, error)
}

type Handler struct {
	sessions SessionService
	store    VisitorStore
}

func NewHandler(sessions SessionService, store VisitorStore) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("handler: session service must not be nil")
	}
	if store == nil {
		return nil, errors.New("handler: visitor store must not be nil")
	}
	return &Handler{sessions: sessions, store: store}, nil
}

// ---------------------------------------------------------------------------
// Request / response shapes
// ---------------------------------------------------------------------------

type startSessionRequest struct {
	Destination string `json:"destination"`
	Nickname    string `json:"nickname"`
	UserID      string `json:"userId"`
}

type submitRequest struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
}

type scanRequest struct {
	SessionID string `json:"sessionId"`
	Artifact  string `json:"artifact"`
}

type nicknameRequest struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

type notificationActionRequest struct {
	UserID string `json:"userId"`
	ID     string `json:"id"`
}

type addNotificationRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type sessionResponse struct {
	SessionID string        `json:"sessionId"`
	Turns     []domain.Turn `json:"turns"`
	Options   []string      `json:"options"`
	Ended     bool          `json:"ended"`
}

type profileResponse struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

type notificationView struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Read    bool   `json:"read"`
}

type notificationsResponse struct {
	Notifications []notificationView `json:"notifications"`
	Unread        int                `json:"unread"`
}

type tripResponse struct {
	TripID        string   `json:"tripId"`
	Nickname      string   `json:"nickname,omitempty"`
	VisitedPlaces []string `json:"visitedPlaces"`
	ScanArtifact  string   `json:"scanArtifact,omitempty"`
	CompletedAt   string   `json:"completedAt"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := uuid.NewString()
	route := req.HTTPMethod + " " + strings.TrimRight(req.Path, "/")

	var (
		status  int
		payload any
		err     error
	)
	switch route {
	case "POST /chat/session":
		status, payload, err = h.startSession(ctx, req.Body)
	case "GET /chat/session":
		status, payload, err = h.getSession(req.QueryStringParameters["sessionId"])
	case "DELETE /chat/session":
		status, payload, err = h.closeSession(req.QueryStringParameters["sessionId"])
	case "POST /chat/message":
		status, payload, err = h.submit(ctx, req.Body)
	case "POST /chat/scan":
		status, payload, err = h.scan(req.Body)
	case "GET /profile":
		status, payload, err = h.getProfile(ctx, req.QueryStringParameters["userId"])
	case "PUT /profile/nickname":
		status, payload, err = h.saveNickname(ctx, req.Body)
	case "GET /notifications":
		status, payload, err = h.listNotifications(ctx, req.QueryStringParameters["userId"])
	case "POST /notifications":
		status, payload, err = h.addNotification(ctx, req.Body)
	case "POST /notifications/read":
		status, payload, err = h.markNotificationRead(ctx, req.Body)
	case "POST /notifications/read-all":
		status, payload, err = h.markAllNotificationsRead(ctx, req.Body)
	case "DELETE /notifications":
		status, payload, err = h.deleteNotification(ctx, req.QueryStringParameters["userId"], req.QueryStringParameters["id"])
	case "GET /trip/latest":
		status, payload, err = h.latestTrip(ctx, req.QueryStringParameters["userId"])
	default:
		status, payload = http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"}
	}

	if err != nil {
		status, payload = mapError(err)
		if status >= http.StatusInternalServerError {
			slog.Error("request failed", "route", route, "correlationId", correlationID, "err", err)
		}
	}

	return jsonResponse(status, correlationID, payload), nil
}

// ---------------------------------------------------------------------------
// Chat routes
// ---------------------------------------------------------------------------

func (h *Handler) startSession(ctx context.Context, body string) (int, any, error) {
	var in startSessionRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}
	if strings.TrimSpace(in.Destination) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_destination", nil)
	}

	nickname := strings.TrimSpace(in.Nickname)
	userID := strings.TrimSpace(in.UserID)
	if userID != "" {
		if nickname == "" {
			if profile, found, err := h.store.GetProfile(ctx, userID); err == nil && found {
				nickname = profile.Nickname
			}
		}
		// Best effort; a seeding failure must not block the chat.
		if err := h.store.SeedNotifications(ctx, userID); err != nil {
			slog.Warn("seed notifications failed", "err", err)
		}
	}

	s, err := h.sessions.Start(in.Destination, nickname, userID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, sessionView(s), nil
}

func (h *Handler) getSession(sessionID string) (int, any, error) {
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionView(s), nil
}

func (h *Handler) closeSession(sessionID string) (int, any, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_session_id", nil)
	}
	h.sessions.Close(sessionID)
	return http.StatusNoContent, nil, nil
}

func (h *Handler) submit(ctx context.Context, body string) (int, any, error) {
	var in submitRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}

	var kind domain.InputKind
	switch in.Kind {
	case string(domain.InputOption):
		kind = domain.InputOption
	case string(domain.InputFreeText):
		kind = domain.InputFreeText
	default:
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "unknown_input_kind", nil)
	}

	s, err := h.sessions.Get(in.SessionID)
	if err != nil {
		return 0, nil, err
	}
	result, err := s.Submit(ctx, domain.UserInput{Kind: kind, Value: in.Value})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionResponse{
		SessionID: s.ID(),
		Turns:     result.Turns,
		Options:   s.CurrentOptions(),
		Ended:     result.Ended,
	}, nil
}

func (h *Handler) scan(body string) (int, any, error) {
	var in scanRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}

	s, err := h.sessions.Get(in.SessionID)
	if err != nil {
		return 0, nil, err
	}
	result, err := s.CompleteScan(in.Artifact)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionResponse{
		SessionID: s.ID(),
		Turns:     result.Turns,
		Options:   s.CurrentOptions(),
		Ended:     result.Ended,
	}, nil
}

// ---------------------------------------------------------------------------
// Profile, notifications, trips
// ---------------------------------------------------------------------------

func (h *Handler) getProfile(ctx context.Context, userID string) (int, any, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_user_id", nil)
	}
	profile, found, err := h.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "profile_read_error", err)
	}
	if !found {
		return 0, nil, usecase.NewError(usecase.ErrorNotFound, "profile_not_found", nil)
	}
	return http.StatusOK, profileResponse{UserID: profile.UserID, Nickname: profile.Nickname}, nil
}

func (h *Handler) saveNickname(ctx context.Context, body string) (int, any, error) {
	var in nicknameRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Nickname) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "missing_user_or_nickname", nil)
	}
	if err := h.store.SaveNickname(ctx, in.UserID, in.Nickname); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "nickname_write_error", err)
	}
	return http.StatusOK, profileResponse{UserID: in.UserID, Nickname: in.Nickname}, nil
}

func (h *Handler) listNotifications(ctx context.Context, userID string) (int, any, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_user_id", nil)
	}
	notifs, err := h.store.ListNotifications(ctx, userID)
	if err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "notifications_read_error", err)
	}

	views := make([]notificationView, 0, len(notifs))
	for _, n := range notifs {
		views = append(views, notificationView{
			ID:      n.SK,
			Title:   n.Title,
			Message: n.Message,
			Kind:    n.Kind,
			Read:    n.Read,
		})
	}
	return http.StatusOK, notificationsResponse{Notifications: views, Unread: repository.CountUnread(notifs)}, nil
}

func (h *Handler) addNotification(ctx context.Context, body string) (int, any, error) {
	var in addNotificationRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Title) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "missing_user_or_title", nil)
	}
	if err := h.store.AddNotification(ctx, in.UserID, in.Title, in.Message, in.Kind); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "notification_write_error", err)
	}
	return http.StatusCreated, nil, nil
}

func (h *Handler) markNotificationRead(ctx context.Context, body string) (int, any, error) {
	var in notificationActionRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "missing_user_or_id", nil)
	}
	if err := h.store.MarkNotificationRead(ctx, in.UserID, in.ID); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "notification_write_error", err)
	}
	return http.StatusNoContent, nil, nil
}

func (h *Handler) markAllNotificationsRead(ctx context.Context, body string) (int, any, error) {
	var in notificationActionRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "malformed_body", err)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_user_id", nil)
	}
	if err := h.store.MarkAllNotificationsRead(ctx, in.UserID); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "notification_write_error", err)
	}
	return http.StatusNoContent, nil, nil
}

func (h *Handler) deleteNotification(ctx context.Context, userID, id string) (int, any, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(id) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "missing_user_or_id", nil)
	}
	if err := h.store.DeleteNotification(ctx, userID, id); err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "notification_write_error", err)
	}
	return http.StatusNoContent, nil, nil
}

func (h *Handler) latestTrip(ctx context.Context, userID string) (int, any, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil, usecase.NewError(usecase.ErrorInvalidInput, "empty_user_id", nil)
	}
	trip, found, err := h.store.GetLatestTrip(ctx, userID)
	if err != nil {
		return 0, nil, usecase.NewError(usecase.ErrorInternal, "trip_read_error", err)
	}
	if !found {
		return 0, nil, usecase.NewError(usecase.ErrorNotFound, "trip_not_found", nil)
	}
	return http.StatusOK, tripResponse{
		TripID:        trip.TripID,
		Nickname:      trip.Nickname,
		VisitedPlaces: trip.VisitedPlaces,
		ScanArtifact:  trip.ScanArtifact,
		CompletedAt:   trip.CompletedAt,
	}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func sessionView(s *dialogue.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID(),
		Turns:     s.Transcript(),
		Options:   s.CurrentOptions(),
		Ended:     s.Ended(),
	}
}

// mapError translates error codes to HTTP statuses; anything untyped
// is an internal error.
func mapError(err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorBusy:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	}
	return status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

func jsonResponse(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": correlationID,
	}
	if payload == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal response", "err", err)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}
