package domain

import "time"

// User is the persisted account profile. Its ID is the uid issued by the
// identity provider and never changes.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserUpdate carries the mutable profile fields. Nil fields are left untouched.
type UserUpdate struct {
	Name  *string
	Email *string
}

// Apply copies the non-nil fields onto u and stamps UpdatedAt.
func (d UserUpdate) Apply(u *User, now time.Time) {
	if d.Name != nil {
		u.Name = *d.Name
	}
	if d.Email != nil {
		u.Email = *d.Email
	}
	u.UpdatedAt = now
}
