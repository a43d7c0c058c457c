package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/vincentagber/real-estate-crm/internal/domain"
	"github.com/vincentagber/real-estate-crm/internal/repository"
	"github.com/vincentagber/real-estate-crm/internal/session"
	"github.com/vincentagber/real-estate-crm/pkg/crypto"
)

// ErrValidation wraps missing or malformed signup input.
var ErrValidation = errors.New("invalid signup input")

// ErrInvalidCredentials covers both unknown username and wrong password so
// a caller cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotActivated is returned when a non-admin account has not been
// approved by an admin yet.
var ErrNotActivated = errors.New("account not activated")

// ErrBadAgentID is returned for identifiers that do not parse as uuids.
var ErrBadAgentID = errors.New("malformed agent id")

// Service handles account and session workflows.
type Service struct {
	users    repository.UserRepository
	sessions session.Store
	logger   *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, sessions session.Store, logger *slog.Logger) Service {
	return Service{users: users, sessions: sessions, logger: logger}
}

// SignupInput carries the fields an agent submits at registration.
type SignupInput struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Specialization   string `json:"specialization"`
	YearStarted      int    `json:"yearStarted"`
	Bio              string `json:"bio"`
	LicenseID        string `json:"licenseId"`
	Brokerage        string `json:"brokerage"`
	BrokerageAddress string `json:"brokerageAddress"`
	BrokerageNumber  string `json:"brokerageNumber"`
	AccountType      string `json:"accountType"`
}

// Validate checks that every required field is present. Specialization and
// bio are the only optional fields.
func (in SignupInput) Validate() error {
	required := []struct {
		name  string
		empty bool
	}{
		{"username", in.Username == ""},
		{"password", in.Password == ""},
		{"firstName", in.FirstName == ""},
		{"lastName", in.LastName == ""},
		{"email", in.Email == ""},
		{"phone", in.Phone == ""},
		{"yearStarted", in.YearStarted == 0},
		{"licenseId", in.LicenseID == ""},
		{"brokerage", in.Brokerage == ""},
		{"brokerageAddress", in.BrokerageAddress == ""},
		{"brokerageNumber", in.BrokerageNumber == ""},
		{"accountType", in.AccountType == ""},
	}
	for _, field := range required {
		if field.empty {
			return fmt.Errorf("%w: missing %s", ErrValidation, field.name)
		}
	}
	if !domain.AccountType(in.AccountType).Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrValidation, in.AccountType)
	}
	return nil
}

// Signup registers a new, unactivated account. The activation flag is
// forced false regardless of input; only an admin can flip it.
func (s Service) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:               uuid.NewString(),
		Username:         in.Username,
		PasswordHash:     hash,
		Email:            in.Email,
		Phone:            in.Phone,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Specialization:   in.Specialization,
		YearStarted:      in.YearStarted,
		Bio:              in.Bio,
		LicenseID:        in.LicenseID,
		Brokerage:        in.Brokerage,
		BrokerageAddress: in.BrokerageAddress,
		BrokerageNumber:  in.BrokerageNumber,
		AccountType:      domain.AccountType(in.AccountType),
		Activated:        false,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "account_type", user.AccountType)
	return user, nil
}

// Login verifies credentials, enforces activation for non-admins, records
// the login time and starts a fresh session. The returned id goes into the
// session cookie.
func (s Service) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !user.Activated && !user.AccountType.IsAdmin() {
		return nil, "", ErrNotActivated
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", err
	}
	user.LastLogin = &now

	sessionID := session.NewID()
	if err := s.sessions.Start(ctx, sessionID, domain.SessionFor(user)); err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, sessionID, nil
}

// Logout destroys the session. Unknown ids are a no-op.
func (s Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Destroy(ctx, sessionID)
}

// CheckSession returns the stored identity summary for a live session.
// It reads the session payload only; it does not re-resolve the user
// against storage.
func (s Service) CheckSession(ctx context.Context, sessionID string) (domain.SessionPayload, error) {
	if sessionID == "" {
		return domain.SessionPayload{}, session.ErrNoSession
	}
	return s.sessions.Read(ctx, sessionID)
}

// ResolveSession maps a session id back to the full user record. Guards
// use this so a deleted account invalidates its sessions immediately.
func (s Service) ResolveSession(ctx context.Context, sessionID string) (*domain.User, error) {
	payload, err := s.CheckSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, payload.UserID)
}

// SetActivation flips an agent's activation flag and returns the updated
// record. Malformed ids fail before any storage call.
func (s Service) SetActivation(ctx context.Context, agentID string, value bool) (*domain.User, error) {
	if _, err := uuid.Parse(agentID); err != nil {
		return nil, ErrBadAgentID
	}
	user, err := s.users.SetActivated(ctx, agentID, value)
	if err != nil {
		return nil, err
	}
	s.logger.Info("activation updated", "user_id", agentID, "activated", value)
	return user, nil
}

// ListPending returns agent accounts awaiting approval, oldest first.
func (s Service) ListPending(ctx context.Context) ([]domain.User, error) {
	return s.users.ListPendingActivation(ctx)
}

// RejectRequest removes a pending signup.
func (s Service) RejectRequest(ctx context.Context, agentID string) error {
	if _, err := uuid.Parse(agentID); err != nil {
		return ErrBadAgentID
	}
	if err := s.users.DeleteUser(ctx, agentID); err != nil {
		return err
	}
	s.logger.Info("signup request rejected", "user_id", agentID)
	return nil
}

// StoreHealth reports whether the identity store is reachable.
func (s Service) StoreHealth(ctx context.Context) error {
	return s.users.Health(ctx)
}
