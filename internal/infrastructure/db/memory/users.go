// Package memory provides process-local implementations of the storage
// ports. They back STORAGE=memory for local runs and double as fakes in
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// UserRepository is a map-backed ports.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
	now   func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]domain.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stored := *user
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.users[stored.ID] = stored

	out := stored
	return &out, nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User, data domain.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	now := r.now()
	data.Apply(&stored, now)
	r.users[user.ID] = stored
	data.Apply(user, now)
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, id)
	return nil
}

func (r *UserRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.users)), nil
}
