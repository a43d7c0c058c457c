package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
	"github.com/vincentagber/real-estate-crm/internal/session"
)

type authContextKey string

const contextKeyUser authContextKey = "recrm-auth-user"

const storeCheckTimeout = 2 * time.Second

type contextSetter interface {
	SetContext(context.Context)
}

// requireStore verifies the identity store is reachable before the handler
// runs. Outages surface as 500 before any session or identity state is
// touched, so "the system is down" never masquerades as "not allowed".
func (r *Router) requireStore(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), storeCheckTimeout)
		defer cancel()
		if err := r.auth.StoreHealth(ctx); err != nil {
			r.logger.Error("identity store unreachable", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "service unavailable")
			return
		}
		next(w, req)
	}
}

// requireAdmin resolves the session to a live user record and rejects
// anyone without the admin account type.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, user, ok := r.ensureUser(w, req)
		if !ok {
			return
		}
		if !user.AccountType.IsAdmin() {
			r.logger.Warn("admin route denied", "user_id", user.ID, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureUser resolves the session cookie to a user record and enriches the
// context. A session whose user has since been deleted is rejected.
func (r *Router) ensureUser(w http.ResponseWriter, req *http.Request) (context.Context, *domain.User, bool) {
	sessionID := r.sessionIDFromRequest(req)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	user, err := r.auth.ResolveSession(req.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			r.logger.Error("session resolution failed", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "service unavailable")
			return req.Context(), nil, false
		}
		if !errors.Is(err, session.ErrNoSession) && !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("session resolution error", "error", err, "path", req.URL.Path)
		}
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyUser, user)
	return ctx, user, true
}

// userFromContext extracts the guard-resolved user from context.
func userFromContext(ctx context.Context) (*domain.User, bool) {
	value := ctx.Value(contextKeyUser)
	if value == nil {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok
}

func (r *Router) sessionIDFromRequest(req *http.Request) string {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (r *Router) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(r.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
