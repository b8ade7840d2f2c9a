package editorial

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Repository defines the interface for post, lock, publication and ledger
// persistence.
//
// Implementations must provide at least read-committed isolation. The lock
// methods carry the single-writer protocol: AcquireLock and ReleaseLock are
// conditional single-row writes that the backing store must make exclusive
// (a guarded UPDATE in SQL, a mutex in memory), since multiple process
// instances may race on the same row.
type Repository interface {
	// Post operations
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*Post, error)
	GetPostByTitle(ctx context.Context, title string) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	SoftDeletePost(ctx context.Context, id uuid.UUID) error
	HardDeletePost(ctx context.Context, id uuid.UUID) error
	ListPosts(ctx context.Context, filters PostListFilters) ([]*Post, error)

	// Lock operations. AcquireLock creates the row on first use, reactivates
	// it when inactive or already held by holderID, and fails with
	// *LockHeldError when another user holds it active. ReleaseLock fails
	// with ErrPermissionDenied unless holderID is the current holder, and
	// with ErrLockNotFound when no row exists.
	AcquireLock(ctx context.Context, owner EntityRef, holderID uuid.UUID) (*Lock, error)
	ReleaseLock(ctx context.Context, owner EntityRef, holderID uuid.UUID) (*Lock, error)
	GetLock(ctx context.Context, owner EntityRef) (*Lock, error)

	// Publication operations
	CreatePublication(ctx context.Context, pub *Publication) error
	ListPublications(ctx context.Context, owner EntityRef) ([]*Publication, error)
	DeletePublications(ctx context.Context, owner EntityRef) error
	CountPublications(ctx context.Context, owner EntityRef) (int, error)

	// Relation sets (idempotent full replacement)
	ReplaceKeywords(ctx context.Context, owner EntityRef, keywordIDs []uuid.UUID) error
	ListKeywords(ctx context.Context, owner EntityRef) ([]uuid.UUID, error)
	ReplaceTags(ctx context.Context, owner EntityRef, tagIDs []uuid.UUID) error
	ListTags(ctx context.Context, owner EntityRef) ([]uuid.UUID, error)
	ReplaceImages(ctx context.Context, owner EntityRef, images []ImageSlot) error
	UpsertImage(ctx context.Context, owner EntityRef, image ImageSlot) error
	ListImages(ctx context.Context, owner EntityRef) ([]ImageSlot, error)

	// Audit ledger
	AppendAudit(ctx context.Context, record *AuditRecord) error
	ListAudit(ctx context.Context, owner EntityRef, action *AuditAction) ([]*AuditRecord, error)

	// InTx runs fn against a transactional view of the repository. The
	// mutations fn performs become visible atomically on success and are
	// discarded entirely when fn returns an error.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// PublishCriteria selects the layout slots a post should be placed into.
type PublishCriteria struct {
	SectionID  uuid.UUID
	CategoryID *uuid.UUID
	ItemTypeID *uuid.UUID
	IsFeatured bool
}

// SlotCatalog is the external catalog of layout slots. It is read-only from
// the core's perspective.
type SlotCatalog interface {
	// ResolveSlots returns the candidate slots for the given criteria. No
	// matching slot is an empty result, not an error.
	ResolveSlots(ctx context.Context, criteria PublishCriteria) ([]uuid.UUID, error)

	// SlotExists reports whether the slot is present in the catalog.
	SlotExists(ctx context.Context, slotID uuid.UUID) (bool, error)
}

// ImageStore is the collaborator that holds image bytes. The core only ever
// records the opaque keys it hands out.
type ImageStore interface {
	// Upload stores the bytes under key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download returns a reader for the bytes stored under key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the bytes stored under key.
	Delete(ctx context.Context, key string) error

	// GetURL returns a URL suitable for serving the stored bytes.
	GetURL(ctx context.Context, key string) (string, error)
}

// EventSink defines the interface for lifecycle event handling. Sink errors
// never fail the triggering operation.
type EventSink interface {
	// PostCreated is fired when a post is created
	PostCreated(ctx context.Context, post *Post) error

	// PostUpdated is fired when a post is updated
	PostUpdated(ctx context.Context, post *Post) error

	// PostDeleted is fired when a post is deleted (hard or soft)
	PostDeleted(ctx context.Context, postID uuid.UUID) error

	// PostPublished is fired when new placements are created for a post
	PostPublished(ctx context.Context, owner EntityRef, publications []*Publication) error

	// LockAcquired is fired when a lock transitions to active
	LockAcquired(ctx context.Context, lock *Lock) error

	// LockReleased is fired when a lock transitions to inactive
	LockReleased(ctx context.Context, lock *Lock) error
}
