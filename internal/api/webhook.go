package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// Webhook event names EMQX is configured to deliver.
const (
	eventClientConnected    = "client.connected"
	eventClientDisconnected = "client.disconnected"
)

// webhookRequest is the body EMQX posts for connection events.
type webhookRequest struct {
	Event     string `json:"event"`
	ClientID  string `json:"clientid"`
	UserID    string `json:"user_id"`
	IPAddress string `json:"ip_address"`
}

// handleWebhook ingests EMQX connection events.
//
// The shared secret is checked before the body is read; a mismatch is
// 403 regardless of payload. Unknown event names are 400 so a broker
// misconfiguration routing other hooks here surfaces immediately
// instead of being swallowed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookSecret)) != 1 {
		writeForbidden(w, "invalid webhook token")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.ClientID == "" || req.UserID == "" {
		writeBadRequest(w, "clientid and user_id are required")
		return
	}

	switch req.Event {
	case eventClientConnected:
		created, err := s.reconciler.OnConnected(r.Context(), req.UserID, req.ClientID, req.IPAddress)
		if err != nil {
			s.logger.Error("webhook connect reconciliation failed",
				"client_id", req.ClientID, "error", err)
			writeInternalError(w, "reconciliation failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "created": created})

	case eventClientDisconnected:
		updated, err := s.reconciler.OnDisconnected(r.Context(), req.UserID, req.ClientID, req.IPAddress)
		if err != nil {
			s.logger.Error("webhook disconnect reconciliation failed",
				"client_id", req.ClientID, "error", err)
			writeInternalError(w, "reconciliation failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": updated})

	default:
		writeBadRequest(w, "unknown event: "+req.Event)
	}
}
