package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

const sessionCookieName = "escashop_session"

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	User    models.User
}

// AuthMiddleware resolves the caller's session and stashes it on the
// request context. Public endpoints pass through untouched; everything
// else requires a valid session.
func AuthMiddleware(st store.AuthStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, user, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			if errors.Is(err, store.ErrAccessDenied) {
				writeError(w, http.StatusForbidden, "access_denied", "account disabled")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (models.User, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return models.User{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return models.User{}, false
	}
	return info.User, true
}

func requireAnyRole(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "access_denied", "role not allowed")
	return false
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login":
		return r.Method == http.MethodPost
	case "/api/queue/display":
		// The waiting-area monitor polls without credentials.
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      models.User `json:"user"`
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, session, err := h.store.Login(r.Context(), req.Email, req.Password, h.sessionTTL)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{User: user, SessionID: session.SessionID, ExpiresAt: session.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := sessionIDFromRequest(r)
	if sessionID != "" {
		if err := h.store.Logout(r.Context(), sessionID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireAnyRole(w, r, models.RoleAdmin) {
			return
		}
		users, err := h.store.ListUsers(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if !requireAnyRole(w, r, models.RoleAdmin) {
			return
		}
		var req createUserRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.FullName = strings.TrimSpace(req.FullName)
		if req.Email == "" || req.FullName == "" || len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "invalid_request", "email, full_name, and a password of at least 8 characters are required")
			return
		}
		switch req.Role {
		case models.RoleAdmin, models.RoleSales, models.RoleCashier:
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", "role must be admin, sales, or cashier")
			return
		}

		user, err := h.store.CreateUser(r.Context(), store.CreateUserInput{
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			Role:     req.Role,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
