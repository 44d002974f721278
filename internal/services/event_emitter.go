package services

import (
	"context"
	"log/slog"

	"github.com/rage/secret-project-331-sub001/internal/events"
)

// eventEmitter publishes domain events after the transaction that caused them committed.
// Failures are logged and swallowed.
type eventEmitter struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func (e eventEmitter) publish(ctx context.Context, eventType string, data interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, eventType, data); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", eventType,
			"error", err)
	}
}

// stateUpdated emits the events that follow one state updater run.
func (e eventEmitter) stateUpdated(ctx context.Context, result *StateUpdateResult) {
	if result == nil {
		return
	}
	if result.Changed {
		e.publish(ctx, events.UserExerciseStateUpdated, events.NewUserExerciseStateUpdatedEvent(result.State))
	}
	if c := result.CompletedModule; c != nil {
		e.publish(ctx, events.CourseModuleCompleted, events.CourseModuleCompletedEvent{
			CourseModuleID:   c.CourseModuleID,
			CourseInstanceID: c.CourseInstanceID,
			UserID:           c.UserID,
		})
	}
}
