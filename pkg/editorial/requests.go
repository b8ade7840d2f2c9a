package editorial

import (
	"time"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreatePostRequest contains parameters for creating a new post. The slug is
// derived from the title; it is never supplied by callers.
type CreatePostRequest struct {
	ActingUserID     uuid.UUID
	StateID          StoredState
	Title            string
	Body             string
	Content          string
	Short            string
	Commentary       string
	ExternalLink     string
	ExternalSourceID *uuid.UUID
	ItemTypeID       *uuid.UUID
	MetaTitle        string
	MetaDescription  string
	MetaKeywords     string
	Keywords         []uuid.UUID
	Tags             []uuid.UUID
	Images           []ImageSlot
}

// PlacementInput is one entry of an explicit placement list.
type PlacementInput struct {
	SlotID      uuid.UUID  `json:"slot_id"`
	IsPublished bool       `json:"is_published"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`
}

// UpdatePostRequest contains parameters for updating a post. Nil pointers
// mean "leave untouched"; non-nil slices replace the whole relation set. The
// zero-length non-nil slice clears it.
type UpdatePostRequest struct {
	PostID       uuid.UUID
	ActingUserID uuid.UUID

	StateID          *StoredState
	Title            *string
	Body             *string
	Content          *string
	Short            *string
	Commentary       *string
	ExternalLink     *string
	ExternalSourceID *uuid.UUID
	ItemTypeID       *uuid.UUID
	MetaTitle        *string
	MetaDescription  *string
	MetaKeywords     *string

	// Lock toggles the edit lock: true acquires, false releases.
	Lock *bool

	Keywords []uuid.UUID
	Tags     []uuid.UUID
	Images   []ImageSlot

	// Publish places the post into catalog-resolved slots (implicit path).
	Publish *PublishCriteria

	// Publications replaces the entire placement set (explicit path).
	Publications []PlacementInput
}

// DeletePostRequest contains parameters for deleting a post.
type DeletePostRequest struct {
	PostID       uuid.UUID
	ActingUserID uuid.UUID
}

// ListPostsRequest contains parameters for listing posts.
type ListPostsRequest struct {
	Filters PostListFilters
}

// PublishPostRequest contains parameters for the implicit publish path.
type PublishPostRequest struct {
	PostID       uuid.UUID
	ActingUserID uuid.UUID
	Criteria     PublishCriteria
}

// ReplacePublicationsRequest contains parameters for the explicit placement path.
type ReplacePublicationsRequest struct {
	PostID       uuid.UUID
	ActingUserID uuid.UUID
	Placements   []PlacementInput
}

// SetPostImageRequest assigns an uploaded image reference to one layout
// coordinate, replacing whatever reference that coordinate held.
type SetPostImageRequest struct {
	PostID       uuid.UUID
	ActingUserID uuid.UUID
	Image        ImageSlot
}

// HistoryRequest contains parameters for reading the audit ledger.
type HistoryRequest struct {
	PostID uuid.UUID
	// Action, when set, restricts the listing to one action kind.
	Action *AuditAction
}
