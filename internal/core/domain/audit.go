package domain

import "time"

// AuthAction identifies the operation recorded in the audit trail.
type AuthAction string

const (
	ActionSignUp  AuthAction = "signup"
	ActionLogin   AuthAction = "login"
	ActionSignIn  AuthAction = "signin"
	ActionSignOut AuthAction = "signout"
	ActionUpdate  AuthAction = "profile_update"
	ActionDelete  AuthAction = "account_delete"
)

// AuthEvent is one entry of the authentication audit trail.
type AuthEvent struct {
	ID        string
	Action    AuthAction
	Email     string
	UserID    string
	Success   bool
	Reason    string
	RemoteIP  string
	Timestamp time.Time
}
