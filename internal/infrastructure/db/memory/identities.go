package memory

import (
	"context"
	"sync"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

// IdentityRepository is a map-backed ports.IdentityRepository with the same
// email uniqueness guarantee as the Mongo index.
type IdentityRepository struct {
	mu      sync.RWMutex
	byUID   map[string]ports.Identity
	byEmail map[string]string
}

func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		byUID:   make(map[string]ports.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *IdentityRepository) Create(_ context.Context, identity *ports.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[identity.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	r.byUID[identity.UID] = *identity
	r.byEmail[identity.Email] = identity.UID
	return nil
}

func (r *IdentityRepository) FindByEmail(_ context.Context, email string) (*ports.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uid, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	identity := r.byUID[uid]
	return &identity, nil
}

func (r *IdentityRepository) FindByUID(_ context.Context, uid string) (*ports.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byUID[uid]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (r *IdentityRepository) UpdateEmail(_ context.Context, uid, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byUID[uid]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byEmail[email]; taken && owner != uid {
		return domain.ErrDuplicateEmail
	}
	delete(r.byEmail, identity.Email)
	identity.Email = email
	r.byUID[uid] = identity
	r.byEmail[email] = uid
	return nil
}

func (r *IdentityRepository) Delete(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity, ok := r.byUID[uid]; ok {
		delete(r.byEmail, identity.Email)
		delete(r.byUID, uid)
	}
	return nil
}
