package app

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/papo/internal/observe"
)

// sessionInfo is the body of GET /v1/session.
type sessionInfo struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleSession lets the dashboard check the token handed out on
// completion. The token travels as "Authorization: Bearer <jwt>".
func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="papo"`)
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := a.tokens.Verify(raw)
	if err != nil {
		observe.Logger(r.Context()).Debug("session: token rejected", "err", err)
		w.Header().Set("WWW-Authenticate", `Bearer realm="papo", error="invalid_token"`)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	info := sessionInfo{
		UserID: claims.Subject,
		Name:   claims.Name,
		Phone:  claims.Phone,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(info)
}
