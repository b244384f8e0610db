package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/notify"
)

// handleListNotifications returns the caller's notification feed,
// message content flattened in.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	feed, err := s.notifications.ListFeed(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("listing notifications failed",
			"user_id", claims.Subject, "error", err)
		writeInternalError(w, "listing notifications failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": feed})
}

// createNotificationRequest is the body for broadcasting a message.
type createNotificationRequest struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data"`
	UserIDs []string          `json:"user_ids"`
}

// handleCreateNotification stores a message and fans it out. With no
// user_ids the message goes to every known user.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" && req.Body == "" && len(req.Data) == 0 {
		writeBadRequest(w, "at least one of title, body, or data is required")
		return
	}

	recipients, err := s.resolveRecipients(r, req.UserIDs)
	if err != nil {
		s.logger.Error("resolving recipients failed", "error", err)
		writeInternalError(w, "resolving recipients failed")
		return
	}

	msg := &notify.Message{
		Title:     req.Title,
		Body:      req.Body,
		Data:      req.Data,
		CreatedBy: claims.Subject,
	}
	deliveries, err := s.relay.Broadcast(r.Context(), msg, recipients)
	if err != nil {
		s.logger.Error("broadcast failed", "error", err)
		writeInternalError(w, "broadcast failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message_id": msg.ID,
		"deliveries": deliveries,
	})
}

// resolveRecipients maps requested user IDs to accounts, skipping
// unknown IDs. An empty request means all users.
func (s *Server) resolveRecipients(r *http.Request, userIDs []string) ([]identity.User, error) {
	if len(userIDs) == 0 {
		return s.users.List(r.Context())
	}

	recipients := make([]identity.User, 0, len(userIDs))
	for _, id := range userIDs {
		user, err := s.users.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				s.logger.Warn("broadcast recipient unknown, skipped", "user_id", id)
				continue
			}
			return nil, err
		}
		recipients = append(recipients, *user)
	}
	return recipients, nil
}

// handleAckNotification marks one of the caller's notifications as
// acknowledged. Replays succeed without moving the timestamp.
func (s *Server) handleAckNotification(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := chi.URLParam(r, "id")

	err := s.notifications.Acknowledge(r.Context(), id, claims.Subject)
	if err != nil {
		if errors.Is(err, notify.ErrNotificationNotFound) {
			writeNotFound(w, "notification not found")
			return
		}
		s.logger.Error("acknowledging notification failed",
			"notification_id", id, "error", err)
		writeInternalError(w, "acknowledge failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
