package editorial

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the editorial library. All mutating
// operations run through the update pipeline: preconditions (edit lock),
// field changes, relation reconciliation, placement, then exactly one audit
// record per invocation.
type Service interface {
	// Post operations
	CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	GetPostDetails(ctx context.Context, id uuid.UUID) (*PostDetails, error)
	ListPosts(ctx context.Context, req ListPostsRequest) ([]*Post, error)
	UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error)
	DeletePost(ctx context.Context, req DeletePostRequest) error

	// Derived lifecycle state
	EffectiveState(ctx context.Context, id uuid.UUID) (EffectiveState, error)

	// Edit lock operations. Acquire fails with *LockHeldError while another
	// user holds the lock; release fails with ErrPermissionDenied unless the
	// caller is the holder. InspectLock is read-only and returns the lock
	// row regardless of its state.
	AcquireLock(ctx context.Context, postID, actingUserID uuid.UUID) (*Lock, error)
	ReleaseLock(ctx context.Context, postID, actingUserID uuid.UUID) error
	InspectLock(ctx context.Context, postID uuid.UUID) (*Lock, error)

	// Placement operations. Publish is idempotent over its criteria;
	// ReplacePublications swaps the whole placement set atomically.
	Publish(ctx context.Context, req PublishPostRequest) ([]*Publication, error)
	ReplacePublications(ctx context.Context, req ReplacePublicationsRequest) ([]*Publication, error)
	ListPublications(ctx context.Context, postID uuid.UUID) ([]*Publication, error)

	// Image slots
	SetPostImage(ctx context.Context, req SetPostImageRequest) error

	// Audit ledger
	History(ctx context.Context, req HistoryRequest) ([]*AuditRecord, error)
}
