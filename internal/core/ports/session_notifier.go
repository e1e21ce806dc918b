package ports

import (
	"context"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// SessionNotifier fans auth-state events out to subscribers of a uid.
type SessionNotifier interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
	Subscribe(ctx context.Context, uid string) (Subscription, error)
}
