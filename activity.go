package account

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered       ActivityEventType = "account.registered"
	ActivityEventUserVerified         ActivityEventType = "account.verified"
	ActivityEventLoginSuccess         ActivityEventType = "account.login.success"
	ActivityEventLoginFailure         ActivityEventType = "account.login.failure"
	ActivityEventPasswordResetSuccess ActivityEventType = "account.password.reset"
	ActivityEventPasswordChanged      ActivityEventType = "account.password.changed"
	ActivityEventUserArchived         ActivityEventType = "account.archived"
	ActivityEventUserUnarchived       ActivityEventType = "account.unarchived"
	ActivityEventUserDeleted          ActivityEventType = "account.deleted"
	ActivityEventUserBlocked          ActivityEventType = "account.blocked"
	ActivityEventUserUnblocked        ActivityEventType = "account.unblocked"
	ActivityEventEmailsSwapped        ActivityEventType = "account.emails.swapped"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits best effort; sink failures are logged, never returned.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if logger == nil {
		logger = defLogger{}
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink record error: %v", err)
	}
}
