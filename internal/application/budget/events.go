package budget

import (
	"context"
	"strings"

	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// publish hands committed events to publisher. A publish failure never
// undoes the committed change, so it is logged and dropped.
func publish(ctx context.Context, publisher shared.EventPublisher, log *zap.Logger, events ...shared.DomainEvent) {
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.L(ctx, log).Error("failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func requireActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", shared.NewValidationError("actor is required")
	}
	return actor, nil
}
