package ports

import (
	"context"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// UserRepository is the only owner of persisted User state.
// Lookups report absence as (nil, nil), never as an error.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Update applies data to user and persists it. It returns
	// domain.ErrUserNotFound when the document vanished since it was loaded.
	Update(ctx context.Context, user *domain.User, data domain.UserUpdate) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}
