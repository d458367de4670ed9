package server

import (
	"net/http"

	"github.com/google/uuid"
)

const stateCookieName = "vb_oauth_state"

// HandleOAuthLogin handles GET /oauth/login. It sends the operator to the
// upstream authorize endpoint with a one-shot state value.
func (h *Handlers) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/oauth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuthCallback handles GET /oauth/callback. It verifies the state
// cookie, exchanges the authorization code, and persists the credential.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeError(w, r, http.StatusBadRequest, "authorization denied: "+errCode)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "missing authorization code")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/oauth", MaxAge: -1})

	if err := h.oauth.Exchange(r.Context(), code); err != nil {
		writeAppError(w, r, err)
		return
	}

	h.logger.Info("delegated credential stored", "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "authorized"})
}
