package repository

import (
	"context"
	"time"

	"github.com/vincentagber/real-estate-crm/internal/domain"
)

// UserRepository persists agent and admin accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	SetActivated(ctx context.Context, id string, activated bool) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	ListPendingActivation(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	Health(ctx context.Context) error
}
