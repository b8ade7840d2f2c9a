package editorial

import (
	"time"

	"github.com/google/uuid"
)

// StoredState is the persisted lifecycle state of a post. It is an int enum to
// match the wire format used by editorial clients; the "published" state is
// never stored and only ever produced by ResolveState.
type StoredState int

// Stored state constants.
const (
	StateSubmitted          StoredState = 0
	StateArchived           StoredState = 1
	StateMockup             StoredState = 2
	StatePublicationPending StoredState = 3
)

// Valid reports whether s is one of the storable states.
func (s StoredState) Valid() bool {
	_, ok := storedStateLabels[s]
	return ok
}

// EffectiveState is the lifecycle label derived at read time. It is distinct
// from StoredState: a post whose publications make it live reports
// EffectivePublished regardless of what is stored.
type EffectiveState string

// Effective state labels.
const (
	EffectiveSubmitted   EffectiveState = "submitted"
	EffectiveArchived    EffectiveState = "archived"
	EffectiveMockup      EffectiveState = "mockup"
	EffectivePublication EffectiveState = "publication"
	EffectivePublished   EffectiveState = "published"
)

// EntityType identifies the kind of entity a lock, publication or audit
// record is attached to. Owners are opaque to everything below the service
// layer; today only posts are locked and placed, but the attachment model is
// a discriminated (type, id) pair rather than a foreign key into posts.
type EntityType string

// EntityTypePost is the owner type for posts.
const EntityTypePost EntityType = "post"

// EntityRef is a discriminated reference to an owning entity.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

// PostRef returns the entity reference for a post.
func PostRef(id uuid.UUID) EntityRef {
	return EntityRef{Type: EntityTypePost, ID: id}
}

// Post is the editable unit of editorial content.
type Post struct {
	ID               uuid.UUID   `json:"id"`
	StateID          StoredState `json:"state_id"`
	ExternalSourceID *uuid.UUID  `json:"external_source_id,omitempty"`
	ExternalLink     string      `json:"external_link,omitempty"`
	ItemTypeID       *uuid.UUID  `json:"item_type_id,omitempty"`
	Title            string      `json:"title"`
	Slug             string      `json:"slug"`
	Body             string      `json:"body,omitempty"`
	Content          string      `json:"content,omitempty"`
	Short            string      `json:"short,omitempty"`
	Commentary       string      `json:"commentary,omitempty"`
	MetaTitle        string      `json:"meta_title,omitempty"`
	MetaDescription  string      `json:"meta_description,omitempty"`
	MetaKeywords     string      `json:"meta_keywords,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty"`
}

// LockState is the state of an edit lock.
type LockState string

// Lock state constants.
const (
	LockActive   LockState = "active"
	LockInactive LockState = "inactive"
)

// Lock is an exclusive edit claim on one owning entity. At most one lock row
// exists per owner; acquisition and release toggle its state in place so the
// row doubles as a who-edited-last trace.
type Lock struct {
	ID        uuid.UUID `json:"id"`
	Owner     EntityRef `json:"owner"`
	HolderID  uuid.UUID `json:"holder_id"`
	State     LockState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publication is the placement of one owning entity into one layout slot
// ("page block"). An entity is live when at least one of its publications is
// activated with a publish time.
type Publication struct {
	ID          uuid.UUID  `json:"id"`
	Owner       EntityRef  `json:"owner"`
	SlotID      uuid.UUID  `json:"slot_id"`
	IsPublished bool       `json:"is_published"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuditAction is the kind of mutation an audit record describes.
type AuditAction string

// Audit actions.
const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditRecord is one immutable entry in the action ledger. Records are only
// ever appended; the ledger survives even a hard delete of its owner.
type AuditRecord struct {
	ID        uuid.UUID   `json:"id"`
	Owner     EntityRef   `json:"owner"`
	Action    AuditAction `json:"action"`
	UserID    uuid.UUID   `json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// ImageSlot associates an opaque image reference with a layout coordinate on
// a post. Upload mechanics live behind ImageStore; the core only records the
// reference per (rows, cols) pair.
type ImageSlot struct {
	ImageID uuid.UUID `json:"image_id"`
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
}

// PostListFilters defines filtering options for listing posts.
type PostListFilters struct {
	State *StoredState
	// WaitingList, when set to false, restricts the listing to posts that
	// already have an activated publication scheduled in the future.
	WaitingList *bool
	Limit       *int
	Offset      *int
}

// PostDetails bundles a post with everything presentation layers need in a
// single call: derived state, active lock, relation sets and the first/last
// ledger entries.
type PostDetails struct {
	Post         *Post          `json:"post"`
	State        EffectiveState `json:"state"`
	Lock         *Lock          `json:"lock,omitempty"`
	Publications []*Publication `json:"publications"`
	Keywords     []uuid.UUID    `json:"keywords"`
	Tags         []uuid.UUID    `json:"tags"`
	Images       []ImageSlot    `json:"images"`
	CreatedBy    *AuditRecord   `json:"created,omitempty"`
	LastEditedBy *AuditRecord   `json:"edited,omitempty"`
}
