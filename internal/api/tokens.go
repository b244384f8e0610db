package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quartzlab/emqx-bridge/internal/credential"
	"github.com/quartzlab/emqx-bridge/internal/identity"
)

// tokenResponse carries a minted credential pair. The access token is
// named mqtt_token because its purpose is the broker handshake, not
// general API auth.
type tokenResponse struct {
	MQTTToken    string `json:"mqtt_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

// handleIssueToken mints a fresh credential pair for the caller.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			writeUnauthorized(w, "unknown subject")
			return
		}
		s.logger.Error("resolving token subject failed", "error", err)
		writeInternalError(w, "token issuance failed")
		return
	}

	pair, err := s.issuer.IssueUserCredential(user)
	if err != nil {
		s.logger.Error("issuing credential failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "token issuance failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		MQTTToken:    pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       user.ID,
	})
}

// refreshRequest is the body for the refresh endpoint.
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// refreshResponse carries only the new access token. The refresh token
// is never rotated, so handing one back here would turn its fixed
// lifetime into an indefinitely sliding session.
type refreshResponse struct {
	MQTTToken string `json:"mqtt_token"`
}

// handleRefreshToken exchanges a refresh token for a new access token.
// Every validation failure is a plain 401; the response does not reveal
// whether the signature, expiry, or subject was the problem.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeBadRequest(w, "refresh token is required")
		return
	}

	access, err := s.issuer.RefreshAccessToken(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredential) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.logger.Error("refreshing credential failed", "error", err)
		writeInternalError(w, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{MQTTToken: access})
}
