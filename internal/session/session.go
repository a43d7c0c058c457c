package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vincentagber/real-estate-crm/internal/domain"
)

// ErrNoSession indicates the id maps to no live session. Guarded routes
// treat this as an authorization failure, not an error.
var ErrNoSession = errors.New("session: not found")

// Store maps opaque cookie-carried session ids to server-side payloads.
type Store interface {
	Start(ctx context.Context, id string, payload domain.SessionPayload) error
	Read(ctx context.Context, id string) (domain.SessionPayload, error)
	Destroy(ctx context.Context, id string) error
	Close()
}

// NewID mints an opaque session identifier. Every login gets a fresh one,
// so concurrent logins for the same user never share state.
func NewID() string {
	return uuid.NewString()
}
