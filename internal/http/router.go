package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
	"github.com/vincentagber/real-estate-crm/internal/service/auth"
	"github.com/vincentagber/real-estate-crm/internal/session"
	"github.com/vincentagber/real-estate-crm/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	limiter      RateLimiter
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, limiter RateLimiter, cfg config.APIConfig) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		auth:         authSvc,
		limiter:      limiter,
		cookieName:   cfg.SessionCookieName,
		cookieSecure: cfg.SessionCookieSecure,
		sessionTTL:   cfg.SessionTTL,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/signup", r.audit("/signup",
		r.withRateLimit("/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP,
			r.requireStore(r.handleSignup))))
	r.mux.HandleFunc("/login", r.audit("/login",
		r.withRateLimit("/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP,
			r.requireStore(r.handleLogin))))
	r.mux.HandleFunc("/logout", r.audit("/logout", r.requireStore(r.handleLogout)))
	r.mux.HandleFunc("/checkSession", r.audit("/checkSession", r.handleCheckSession))
	r.mux.HandleFunc("/request", r.audit("/request",
		r.requireStore(r.requireAdmin(r.handleListRequests))))
	r.mux.HandleFunc("/request/", r.audit("/request/{agentId}",
		r.requireStore(r.requireAdmin(r.handleRequestByID))))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.SignupInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.auth.Signup(req.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "username already taken")
		case errors.Is(err, repository.ErrUnavailable):
			writeError(w, http.StatusInternalServerError, "service unavailable")
		default:
			r.logger.Error("signup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "signup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, sessionID, err := r.auth.Login(req.Context(), payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "invalid credentials")
		case errors.Is(err, auth.ErrNotActivated):
			writeError(w, http.StatusUnauthorized, "account pending activation")
		case errors.Is(err, repository.ErrUnavailable):
			writeError(w, http.StatusInternalServerError, "service unavailable")
		default:
			r.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	r.setSessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          user.ID,
		"username":    user.Username,
		"displayName": user.DisplayName(),
		"accountType": user.AccountType,
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	sessionID := r.sessionIDFromRequest(req)
	if err := r.auth.Logout(req.Context(), sessionID); err != nil {
		r.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	r.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleCheckSession reports the identity summary held in the session
// payload. It deliberately does not re-resolve the user record; guarded
// routes go through requireAdmin for the stronger check.
func (r *Router) handleCheckSession(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	payload, err := r.auth.CheckSession(req.Context(), r.sessionIDFromRequest(req))
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			r.logger.Warn("session check failed", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          payload.UserID,
		"username":    payload.Username,
		"displayName": payload.DisplayName,
		"accountType": payload.AccountType,
	})
}

func (r *Router) handleListRequests(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	pending, err := r.auth.ListPending(req.Context())
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			writeError(w, http.StatusInternalServerError, "service unavailable")
			return
		}
		r.logger.Error("list pending requests failed", "error", err)
		writeError(w, http.StatusInternalServerError, "request listing failed")
		return
	}
	writeJSON(w, http.StatusOK, domain.PublicUsers(pending))
}

func (r *Router) handleRequestByID(w http.ResponseWriter, req *http.Request) {
	agentID := strings.TrimPrefix(req.URL.Path, "/request/")
	if agentID == "" || strings.Contains(agentID, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPatch:
		r.handleActivation(w, req, agentID)
	case http.MethodDelete:
		r.handleRejectRequest(w, req, agentID)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleActivation(w http.ResponseWriter, req *http.Request, agentID string) {
	var payload struct {
		Value *bool `json:"value"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Value == nil {
		writeError(w, http.StatusBadRequest, "boolean value is required")
		return
	}
	user, err := r.auth.SetActivation(req.Context(), agentID, *payload.Value)
	if err != nil {
		r.writeRequestError(w, err, "activation update failed")
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (r *Router) handleRejectRequest(w http.ResponseWriter, req *http.Request, agentID string) {
	if err := r.auth.RejectRequest(req.Context(), agentID); err != nil {
		r.writeRequestError(w, err, "request rejection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// writeRequestError maps activation-workflow errors onto status codes:
// malformed and unknown ids are both 404, outages are 500.
func (r *Router) writeRequestError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrBadAgentID), errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusNotFound, "no such agent")
	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "service unavailable")
	default:
		r.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.auth.StoreHealth(ctx); err != nil {
		status = "degraded"
		components["database"] = map[string]any{"status": "down"}
	} else {
		components["database"] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if user, ok := userFromContext(ctx); ok {
			actor = string(user.AccountType)
			fields = append(fields, "user_id", user.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
