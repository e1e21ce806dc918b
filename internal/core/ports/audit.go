package ports

import (
	"context"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// AuditRepository persists audit entries.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}

// AuditSink accepts audit entries without blocking the request path.
type AuditSink interface {
	Enqueue(event domain.AuthEvent)
}
