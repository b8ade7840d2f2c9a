package editorial

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink.
// Useful for production when you don't need event handling or for testing.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) PostCreated(ctx context.Context, post *Post) error { return nil }

func (n *NoopEventSink) PostUpdated(ctx context.Context, post *Post) error { return nil }

func (n *NoopEventSink) PostDeleted(ctx context.Context, postID uuid.UUID) error { return nil }

func (n *NoopEventSink) PostPublished(ctx context.Context, owner EntityRef, publications []*Publication) error {
	return nil
}

func (n *NoopEventSink) LockAcquired(ctx context.Context, lock *Lock) error { return nil }

func (n *NoopEventSink) LockReleased(ctx context.Context, lock *Lock) error { return nil }

// LoggingEventSink is an event sink that logs events but takes no other
// action. Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger falls
// back to slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) PostCreated(ctx context.Context, post *Post) error {
	l.logger.InfoContext(ctx, "post created", "post_id", post.ID, "title", post.Title, "slug", post.Slug)
	return nil
}

func (l *LoggingEventSink) PostUpdated(ctx context.Context, post *Post) error {
	l.logger.InfoContext(ctx, "post updated", "post_id", post.ID, "title", post.Title)
	return nil
}

func (l *LoggingEventSink) PostDeleted(ctx context.Context, postID uuid.UUID) error {
	l.logger.InfoContext(ctx, "post deleted", "post_id", postID)
	return nil
}

func (l *LoggingEventSink) PostPublished(ctx context.Context, owner EntityRef, publications []*Publication) error {
	l.logger.InfoContext(ctx, "post published", "owner_type", owner.Type, "owner_id", owner.ID, "placements", len(publications))
	return nil
}

func (l *LoggingEventSink) LockAcquired(ctx context.Context, lock *Lock) error {
	l.logger.InfoContext(ctx, "lock acquired", "owner_type", lock.Owner.Type, "owner_id", lock.Owner.ID, "holder_id", lock.HolderID)
	return nil
}

func (l *LoggingEventSink) LockReleased(ctx context.Context, lock *Lock) error {
	l.logger.InfoContext(ctx, "lock released", "owner_type", lock.Owner.Type, "owner_id", lock.Owner.ID, "holder_id", lock.HolderID)
	return nil
}
