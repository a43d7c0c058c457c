package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
	"github.com/vincentagber/real-estate-crm/internal/service/auth"
	"github.com/vincentagber/real-estate-crm/internal/session"
	"github.com/vincentagber/real-estate-crm/pkg/config"
	"github.com/vincentagber/real-estate-crm/pkg/crypto"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type userRepoStub struct {
	createFunc        func(ctx context.Context, user *domain.User) error
	getByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
	getByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	setActivatedFunc  func(ctx context.Context, id string, activated bool) (*domain.User, error)
	listPendingFunc   func(ctx context.Context) ([]domain.User, error)
	deleteFunc        func(ctx context.Context, id string) error
	healthFunc        func(ctx context.Context) error
}

func (s *userRepoStub) CreateUser(ctx context.Context, user *domain.User) error {
	if s.createFunc != nil {
		return s.createFunc(ctx, user)
	}
	return nil
}

func (s *userRepoStub) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if s.getByUsernameFunc != nil {
		return s.getByUsernameFunc(ctx, username)
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if s.getByIDFunc != nil {
		return s.getByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) SetActivated(ctx context.Context, id string, activated bool) (*domain.User, error) {
	if s.setActivatedFunc != nil {
		return s.setActivatedFunc(ctx, id, activated)
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) TouchLastLogin(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *userRepoStub) ListPendingActivation(ctx context.Context) ([]domain.User, error) {
	if s.listPendingFunc != nil {
		return s.listPendingFunc(ctx)
	}
	return nil, nil
}

func (s *userRepoStub) DeleteUser(ctx context.Context, id string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id)
	}
	return nil
}

func (s *userRepoStub) Health(ctx context.Context) error {
	if s.healthFunc != nil {
		return s.healthFunc(ctx)
	}
	return nil
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		SessionTTL:        time.Minute,
		SessionCookieName: "recrm_session",
	}
}

func newTestRouter(t *testing.T, repo repository.UserRepository) (*Router, session.Store) {
	t.Helper()
	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(sessions.Close)
	svc := auth.New(repo, sessions, newLogger())
	router := NewRouter(newLogger(), svc, NewMemoryRateLimiter(), testConfig())
	t.Cleanup(router.Close)
	return router, sessions
}

func sessionCookieFor(t *testing.T, sessions session.Store, user *domain.User) *http.Cookie {
	t.Helper()
	id := session.NewID()
	if err := sessions.Start(context.Background(), id, domain.SessionFor(user)); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return &http.Cookie{Name: "recrm_session", Value: id}
}

func signupBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"username":         "jsmith",
		"password":         "correct-horse",
		"firstName":        "Jane",
		"lastName":         "Smith",
		"email":            "jane@example.com",
		"phone":            "4165550199",
		"yearStarted":      2015,
		"licenseId":        "LIC-4452",
		"brokerage":        "Smith Realty",
		"brokerageAddress": "75 Terra Crescent, Toronto",
		"brokerageNumber":  "4165550100",
		"accountType":      "agent",
	})
	if err != nil {
		t.Fatalf("marshal signup body: %v", err)
	}
	return body
}

func adminUser() *domain.User {
	return &domain.User{
		ID:          "5f4c2f3e-0000-4000-8000-00000000ad01",
		Username:    "root",
		FirstName:   "Ada",
		LastName:    "Admin",
		AccountType: domain.AccountTypeAdmin,
		Activated:   true,
	}
}

func TestSignupReturnsRecordWithoutCredentials(t *testing.T) {
	repo := &userRepoStub{}
	router, _ := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(signupBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["username"] != "jsmith" {
		t.Fatalf("unexpected username: %v", payload["username"])
	}
	if activated, ok := payload["activated"].(bool); !ok || activated {
		t.Fatalf("expected activated=false, got %v", payload["activated"])
	}
	body := strings.ToLower(rec.Body.String())
	if strings.Contains(body, "password") || strings.Contains(body, "hash") {
		t.Fatalf("credential material in signup response: %s", rec.Body.String())
	}
}

func TestSignupMissingFieldYields400(t *testing.T) {
	created := false
	repo := &userRepoStub{
		createFunc: func(_ context.Context, _ *domain.User) error {
			created = true
			return nil
		},
	}
	router, _ := newTestRouter(t, repo)

	body, _ := json.Marshal(map[string]any{"username": "jsmith", "password": "pw"})
	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if created {
		t.Fatalf("user must not be persisted on validation failure")
	}
}

func TestSignupDuplicateUsernameYields400(t *testing.T) {
	repo := &userRepoStub{
		createFunc: func(_ context.Context, _ *domain.User) error {
			return repository.ErrDuplicate
		},
	}
	router, _ := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(signupBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGuardedRouteStoreDownYields500BeforeAuth(t *testing.T) {
	resolved := false
	repo := &userRepoStub{
		healthFunc: func(_ context.Context) error {
			return repository.ErrUnavailable
		},
		getByIDFunc: func(_ context.Context, _ string) (*domain.User, error) {
			resolved = true
			return nil, repository.ErrNotFound
		},
	}
	router, _ := newTestRouter(t, repo)

	// no session cookie at all: the store outage must win over the 401
	req := httptest.NewRequest(http.MethodPatch, "/request/5f4c2f3e-0000-4000-8000-000000000002", strings.NewReader(`{"value":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resolved {
		t.Fatalf("identity must not be resolved while the store is down")
	}
}

func TestLoginLogoutCheckSessionFlow(t *testing.T) {
	hash, err := crypto.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	stored := &domain.User{
		ID:           "5f4c2f3e-0000-4000-8000-000000000001",
		Username:     "jsmith",
		PasswordHash: hash,
		FirstName:    "Jane",
		LastName:     "Smith",
		AccountType:  domain.AccountTypeAgent,
		Activated:    true,
	}
	repo := &userRepoStub{
		getByUsernameFunc: func(_ context.Context, _ string) (*domain.User, error) {
			return stored, nil
		},
	}
	router, _ := newTestRouter(t, repo)

	loginReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"jsmith","password":"correct-horse"}`))
	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", loginRec.Code, loginRec.Body.String())
	}

	var summary map[string]string
	if err := json.Unmarshal(loginRec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if summary["displayName"] != "Jane Smith" || summary["accountType"] != "agent" {
		t.Fatalf("unexpected login summary: %v", summary)
	}

	cookies := loginRec.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "recrm_session" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if !sessionCookie.HttpOnly {
		t.Fatalf("session cookie must be http-only")
	}

	checkReq := httptest.NewRequest(http.MethodGet, "/checkSession", nil)
	checkReq.AddCookie(sessionCookie)
	checkRec := httptest.NewRecorder()
	router.ServeHTTP(checkRec, checkReq)
	if checkRec.Code != http.StatusOK {
		t.Fatalf("checkSession: expected 200, got %d", checkRec.Code)
	}

	logoutReq := httptest.NewRequest(http.MethodGet, "/logout", nil)
	logoutReq.AddCookie(sessionCookie)
	logoutRec := httptest.NewRecorder()
	router.ServeHTTP(logoutRec, logoutReq)
	if logoutRec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", logoutRec.Code)
	}

	recheckReq := httptest.NewRequest(http.MethodGet, "/checkSession", nil)
	recheckReq.AddCookie(sessionCookie)
	recheckRec := httptest.NewRecorder()
	router.ServeHTTP(recheckRec, recheckReq)
	if recheckRec.Code != http.StatusUnauthorized {
		t.Fatalf("checkSession after logout: expected 401, got %d", recheckRec.Code)
	}
}

func TestLoginUnactivatedAgentYields401(t *testing.T) {
	hash, err := crypto.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &userRepoStub{
		getByUsernameFunc: func(_ context.Context, _ string) (*domain.User, error) {
			return &domain.User{
				ID:           "5f4c2f3e-0000-4000-8000-000000000001",
				Username:     "jsmith",
				PasswordHash: hash,
				AccountType:  domain.AccountTypeAgent,
			}, nil
		},
	}
	router, _ := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"jsmith","password":"correct-horse"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginBadCredentialsYields400(t *testing.T) {
	router, _ := newTestRouter(t, &userRepoStub{})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"nobody","password":"pw"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckSessionWithoutCookieYields401(t *testing.T) {
	router, _ := newTestRouter(t, &userRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/checkSession", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestActivationRequiresAdmin(t *testing.T) {
	agent := &domain.User{
		ID:          "5f4c2f3e-0000-4000-8000-000000000001",
		Username:    "jsmith",
		AccountType: domain.AccountTypeAgent,
		Activated:   true,
	}
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == agent.ID {
				return agent, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/request/5f4c2f3e-0000-4000-8000-000000000002", strings.NewReader(`{"value":true}`))
	req.AddCookie(sessionCookieFor(t, sessions, agent))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin, got %d", rec.Code)
	}
}

func TestActivationMalformedIDYields404WithoutStorage(t *testing.T) {
	admin := adminUser()
	touched := false
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
		setActivatedFunc: func(_ context.Context, _ string, _ bool) (*domain.User, error) {
			touched = true
			return nil, repository.ErrNotFound
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/request/not-a-uuid", strings.NewReader(`{"value":true}`))
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if touched {
		t.Fatalf("storage must not be touched for malformed ids")
	}
}

func TestActivationUnknownIDYields404(t *testing.T) {
	admin := adminUser()
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
		setActivatedFunc: func(_ context.Context, _ string, _ bool) (*domain.User, error) {
			return nil, repository.ErrNotFound
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/request/5f4c2f3e-0000-4000-8000-000000000002", strings.NewReader(`{"value":true}`))
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestActivationFlipsFlagAndReturnsRecord(t *testing.T) {
	admin := adminUser()
	const agentID = "5f4c2f3e-0000-4000-8000-000000000002"
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
		setActivatedFunc: func(_ context.Context, id string, activated bool) (*domain.User, error) {
			if id != agentID || !activated {
				t.Fatalf("unexpected activation call: id=%s activated=%v", id, activated)
			}
			return &domain.User{ID: id, Username: "jsmith", AccountType: domain.AccountTypeAgent, Activated: true}, nil
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/request/"+agentID, strings.NewReader(`{"value":true}`))
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if activated, ok := payload["activated"].(bool); !ok || !activated {
		t.Fatalf("expected activated=true in response, got %v", payload["activated"])
	}
}

func TestActivationMissingValueYields400(t *testing.T) {
	admin := adminUser()
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/request/5f4c2f3e-0000-4000-8000-000000000002", strings.NewReader(`{}`))
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListPendingRequests(t *testing.T) {
	admin := adminUser()
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
		listPendingFunc: func(_ context.Context) ([]domain.User, error) {
			return []domain.User{
				{ID: "a", Username: "one", AccountType: domain.AccountTypeAgent},
				{ID: "b", Username: "two", AccountType: domain.AccountTypeAgent},
			}, nil
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/request", nil)
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("expected 2 pending requests, got %d", len(payload))
	}
}

func TestRejectRequestDeletesUser(t *testing.T) {
	admin := adminUser()
	const agentID = "5f4c2f3e-0000-4000-8000-000000000002"
	deleted := ""
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, repository.ErrNotFound
		},
		deleteFunc: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	router, sessions := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodDelete, "/request/"+agentID, nil)
	req.AddCookie(sessionCookieFor(t, sessions, admin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if deleted != agentID {
		t.Fatalf("expected delete for %s, got %q", agentID, deleted)
	}
}

func TestDeletedUserSessionRejected(t *testing.T) {
	repo := &userRepoStub{
		getByIDFunc: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, repository.ErrNotFound
		},
	}
	router, sessions := newTestRouter(t, repo)

	ghost := &domain.User{ID: "gone", Username: "ghost", AccountType: domain.AccountTypeAdmin}
	req := httptest.NewRequest(http.MethodGet, "/request", nil)
	req.AddCookie(sessionCookieFor(t, sessions, ghost))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user's session, got %d", rec.Code)
	}
}

func TestSignupRateLimit(t *testing.T) {
	repo := &userRepoStub{
		createFunc: func(_ context.Context, _ *domain.User) error {
			return repository.ErrDuplicate
		},
	}
	router, _ := newTestRouter(t, repo)

	var last int
	for i := 0; i < rateLimitSignup+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(signupBody(t)))
		req.RemoteAddr = "10.1.2.3:4567"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d signups, got %d", rateLimitSignup+1, last)
	}
}

func TestHealthzDegradedWhenStoreDown(t *testing.T) {
	repo := &userRepoStub{
		healthFunc: func(_ context.Context) error {
			return errors.New("dial tcp: connection refused")
		},
	}
	router, _ := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
