package editorial

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrPostNotFound indicates a post was not found
	ErrPostNotFound = errors.New("post not found")

	// ErrLockNotFound indicates no lock row exists for the entity
	ErrLockNotFound = errors.New("lock not found")

	// ErrPermissionDenied indicates a non-holder attempted to release or
	// toggle a lock
	ErrPermissionDenied = errors.New("permission denied: not the lock holder")

	// ErrDataIntegrity indicates stored data outside the known domain, e.g.
	// a stored state value with no label. Surfaced, never defaulted.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrDuplicateTitle indicates another non-deleted post already uses the title
	ErrDuplicateTitle = errors.New("title already in use")

	// ErrDuplicateSlug indicates another non-deleted post already uses the slug
	ErrDuplicateSlug = errors.New("slug already in use")

	// ErrPublicationNotFound indicates a publication was not found
	ErrPublicationNotFound = errors.New("publication not found")
)

// LockHeldError reports that another user holds an active lock on the entity.
// Retryable by the user once the holder releases, not by the system.
type LockHeldError struct {
	Owner    EntityRef
	HolderID uuid.UUID
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("%s %s is locked by user %s", e.Owner.Type, e.Owner.ID, e.HolderID)
}

// UnknownSlotError reports an explicit placement referencing a slot that does
// not exist in the catalog. The whole batch it arrived in is aborted.
type UnknownSlotError struct {
	SlotID uuid.UUID
}

func (e *UnknownSlotError) Error() string {
	return fmt.Sprintf("unknown layout slot %s", e.SlotID)
}

// PostError represents an error related to post operations
type PostError struct {
	PostID uuid.UUID
	Op     string
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post operation %s failed for post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}
