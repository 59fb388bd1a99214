package application

import (
	"context"

	"github.com/felixgeelhaar/gatehouse/internal/shared/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata creates command-scoped metadata for domain events.
// The correlation id is taken from the context when present so events can be
// joined with the request log.
func NewEventMetadata(ctx context.Context, actor string) domain.EventMetadata {
	correlationID := observability.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.NewString(),
		Actor:         actor,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
