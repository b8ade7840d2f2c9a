package editorial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsroomkit/editorial/internal/slug"
)

// service implements the Service interface
type service struct {
	repository Repository
	catalog    SlotCatalog
	events     EventSink
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithSlotCatalog sets the layout slot catalog for the service
func WithSlotCatalog(catalog SlotCatalog) Option {
	return func(s *service) {
		s.catalog = catalog
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("slot catalog is required")
	}

	return s, nil
}

// event is a deferred sink notification, fired only after the enclosing
// transaction commits.
type event func(ctx context.Context, sink EventSink)

func (s *service) fire(ctx context.Context, events []event) {
	if s.events == nil {
		return
	}
	for _, ev := range events {
		ev(ctx, s.events)
	}
}

// Post operations

func (s *service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	if !req.StateID.Valid() {
		return nil, fmt.Errorf("cannot create post in unknown stored state %d", req.StateID)
	}

	now := time.Now().UTC()
	post := &Post{
		ID:               uuid.New(),
		StateID:          req.StateID,
		ExternalSourceID: req.ExternalSourceID,
		ExternalLink:     req.ExternalLink,
		ItemTypeID:       req.ItemTypeID,
		Title:            req.Title,
		Slug:             slug.Make(req.Title),
		Body:             req.Body,
		Content:          req.Content,
		Short:            req.Short,
		Commentary:       req.Commentary,
		MetaTitle:        req.MetaTitle,
		MetaDescription:  req.MetaDescription,
		MetaKeywords:     req.MetaKeywords,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	owner := PostRef(post.ID)

	err := s.repository.InTx(ctx, func(r Repository) error {
		if err := r.CreatePost(ctx, post); err != nil {
			return err
		}
		if req.Keywords != nil {
			if err := r.ReplaceKeywords(ctx, owner, dedupeIDs(req.Keywords)); err != nil {
				return err
			}
		}
		if req.Tags != nil {
			if err := r.ReplaceTags(ctx, owner, dedupeIDs(req.Tags)); err != nil {
				return err
			}
		}
		if req.Images != nil {
			if err := r.ReplaceImages(ctx, owner, dedupeImages(req.Images)); err != nil {
				return err
			}
		}
		return r.AppendAudit(ctx, newAuditRecord(owner, AuditCreate, req.ActingUserID))
	})
	if err != nil {
		return nil, &PostError{PostID: post.ID, Op: "create", Err: err}
	}

	s.fire(ctx, []event{func(ctx context.Context, sink EventSink) {
		_ = sink.PostCreated(ctx, post)
	}})

	return post, nil
}

func (s *service) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	return s.repository.GetPost(ctx, id)
}

func (s *service) ListPosts(ctx context.Context, req ListPostsRequest) ([]*Post, error) {
	return s.repository.ListPosts(ctx, req.Filters)
}

// UpdatePost runs the full mutation pipeline in one transaction: lock
// precondition, scalar fields, optional lock toggle, relation sets, implicit
// publish, explicit placements, one audit record. A failure at any step
// discards everything.
func (s *service) UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error) {
	var updated *Post
	var events []event

	err := s.repository.InTx(ctx, func(r Repository) error {
		post, err := r.GetPost(ctx, req.PostID)
		if err != nil {
			return err
		}
		owner := PostRef(post.ID)

		// An active lock held by someone else blocks the whole update, not
		// just the lock toggle.
		if err := s.checkLockPrecondition(ctx, r, owner, req.ActingUserID); err != nil {
			return err
		}

		if err := s.applyFields(ctx, r, post, req); err != nil {
			return err
		}
		if err := r.UpdatePost(ctx, post); err != nil {
			return err
		}

		if req.Lock != nil {
			ev, err := s.toggleLock(ctx, r, owner, req.ActingUserID, *req.Lock)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}

		if req.Keywords != nil {
			if err := r.ReplaceKeywords(ctx, owner, dedupeIDs(req.Keywords)); err != nil {
				return err
			}
		}
		if req.Tags != nil {
			if err := r.ReplaceTags(ctx, owner, dedupeIDs(req.Tags)); err != nil {
				return err
			}
		}
		if req.Images != nil {
			if err := r.ReplaceImages(ctx, owner, dedupeImages(req.Images)); err != nil {
				return err
			}
		}

		if req.Publish != nil {
			created, err := s.publishInto(ctx, r, owner, *req.Publish)
			if err != nil {
				return err
			}
			if len(created) > 0 {
				events = append(events, func(ctx context.Context, sink EventSink) {
					_ = sink.PostPublished(ctx, owner, created)
				})
			}
		}

		if req.Publications != nil {
			replaced, err := s.replacePlacements(ctx, r, owner, req.Publications)
			if err != nil {
				return err
			}
			events = append(events, func(ctx context.Context, sink EventSink) {
				_ = sink.PostPublished(ctx, owner, replaced)
			})
		}

		if err := r.AppendAudit(ctx, newAuditRecord(owner, AuditUpdate, req.ActingUserID)); err != nil {
			return err
		}

		updated = post
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return nil, err
		}
		return nil, &PostError{PostID: req.PostID, Op: "update", Err: err}
	}

	events = append(events, func(ctx context.Context, sink EventSink) {
		_ = sink.PostUpdated(ctx, updated)
	})
	s.fire(ctx, events)

	return updated, nil
}

func (s *service) DeletePost(ctx context.Context, req DeletePostRequest) error {
	err := s.repository.InTx(ctx, func(r Repository) error {
		post, err := r.GetPost(ctx, req.PostID)
		if err != nil {
			return err
		}
		owner := PostRef(post.ID)

		count, err := r.CountPublications(ctx, owner)
		if err != nil {
			return err
		}

		if count == 0 {
			if err := r.HardDeletePost(ctx, post.ID); err != nil {
				return err
			}
		} else {
			// Placements go first so the post can never be re-resolved as
			// published while soft-deleted.
			if err := r.DeletePublications(ctx, owner); err != nil {
				return err
			}
			if err := r.SoftDeletePost(ctx, post.ID); err != nil {
				return err
			}
		}

		// The ledger outlives the post in both delete modes.
		return r.AppendAudit(ctx, newAuditRecord(owner, AuditDelete, req.ActingUserID))
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return err
		}
		return &PostError{PostID: req.PostID, Op: "delete", Err: err}
	}

	s.fire(ctx, []event{func(ctx context.Context, sink EventSink) {
		_ = sink.PostDeleted(ctx, req.PostID)
	}})

	return nil
}

// checkLockPrecondition fails with *LockHeldError when another user holds an
// active lock on the entity. The absence of a lock row is fine.
func (s *service) checkLockPrecondition(ctx context.Context, r Repository, owner EntityRef, actingUserID uuid.UUID) error {
	lock, err := r.GetLock(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrLockNotFound) {
			return nil
		}
		return err
	}
	if lock.State == LockActive && lock.HolderID != actingUserID {
		return &LockHeldError{Owner: owner, HolderID: lock.HolderID}
	}
	return nil
}

// applyFields copies the requested scalar changes onto the post, recomputing
// the slug when the title changes and enforcing title/slug uniqueness among
// non-deleted posts.
func (s *service) applyFields(ctx context.Context, r Repository, post *Post, req UpdatePostRequest) error {
	if req.StateID != nil {
		if !req.StateID.Valid() {
			return fmt.Errorf("cannot move post to unknown stored state %d", *req.StateID)
		}
		post.StateID = *req.StateID
	}
	if req.Title != nil && *req.Title != post.Title {
		post.Title = *req.Title
		post.Slug = slug.Make(*req.Title)

		if other, err := r.GetPostByTitle(ctx, post.Title); err == nil && other.ID != post.ID {
			return ErrDuplicateTitle
		} else if err != nil && !errors.Is(err, ErrPostNotFound) {
			return err
		}
		if other, err := r.GetPostBySlug(ctx, post.Slug); err == nil && other.ID != post.ID {
			return ErrDuplicateSlug
		} else if err != nil && !errors.Is(err, ErrPostNotFound) {
			return err
		}
	}
	if req.Body != nil {
		post.Body = *req.Body
	}
	if req.Content != nil {
		post.Content = *req.Content
	}
	if req.Short != nil {
		post.Short = *req.Short
	}
	if req.Commentary != nil {
		post.Commentary = *req.Commentary
	}
	if req.ExternalLink != nil {
		post.ExternalLink = *req.ExternalLink
	}
	if req.ExternalSourceID != nil {
		post.ExternalSourceID = req.ExternalSourceID
	}
	if req.ItemTypeID != nil {
		post.ItemTypeID = req.ItemTypeID
	}
	if req.MetaTitle != nil {
		post.MetaTitle = *req.MetaTitle
	}
	if req.MetaDescription != nil {
		post.MetaDescription = *req.MetaDescription
	}
	if req.MetaKeywords != nil {
		post.MetaKeywords = *req.MetaKeywords
	}

	post.UpdatedAt = time.Now().UTC()
	return nil
}

// toggleLock acquires or releases the edit lock for the acting user. Errors
// propagate unchanged and abort the caller's transaction.
func (s *service) toggleLock(ctx context.Context, r Repository, owner EntityRef, actingUserID uuid.UUID, acquire bool) (event, error) {
	if acquire {
		lock, err := r.AcquireLock(ctx, owner, actingUserID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, sink EventSink) {
			_ = sink.LockAcquired(ctx, lock)
		}, nil
	}

	lock, err := r.ReleaseLock(ctx, owner, actingUserID)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, sink EventSink) {
		_ = sink.LockReleased(ctx, lock)
	}, nil
}

// publishInto resolves the candidate slots for the criteria and inserts a
// bare placement for each slot the entity is not already in. Existing
// placements are left untouched, which is what makes the operation
// idempotent. New placements are not activated; activation happens only
// through the explicit placement path.
func (s *service) publishInto(ctx context.Context, r Repository, owner EntityRef, criteria PublishCriteria) ([]*Publication, error) {
	slots, err := s.catalog.ResolveSlots(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("resolving slots: %w", err)
	}
	if len(slots) == 0 {
		return nil, nil
	}

	existing, err := r.ListPublications(ctx, owner)
	if err != nil {
		return nil, err
	}
	placed := make(map[uuid.UUID]bool, len(existing))
	for _, pub := range existing {
		placed[pub.SlotID] = true
	}

	var created []*Publication
	for _, slotID := range slots {
		if placed[slotID] {
			continue
		}
		pub := &Publication{
			ID:        uuid.New(),
			Owner:     owner,
			SlotID:    slotID,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.CreatePublication(ctx, pub); err != nil {
			return nil, err
		}
		placed[slotID] = true
		created = append(created, pub)
	}

	return created, nil
}

// replacePlacements validates every slot in the batch against the catalog
// before mutating anything, then swaps the whole placement set.
func (s *service) replacePlacements(ctx context.Context, r Repository, owner EntityRef, placements []PlacementInput) ([]*Publication, error) {
	for _, placement := range placements {
		exists, err := s.catalog.SlotExists(ctx, placement.SlotID)
		if err != nil {
			return nil, fmt.Errorf("checking slot %s: %w", placement.SlotID, err)
		}
		if !exists {
			return nil, &UnknownSlotError{SlotID: placement.SlotID}
		}
	}

	if err := r.DeletePublications(ctx, owner); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(placements))
	var replaced []*Publication
	for _, placement := range placements {
		if seen[placement.SlotID] {
			continue
		}
		seen[placement.SlotID] = true
		pub := &Publication{
			ID:          uuid.New(),
			Owner:       owner,
			SlotID:      placement.SlotID,
			IsPublished: placement.IsPublished,
			PublishAt:   placement.PublishAt,
			CreatedAt:   time.Now().UTC(),
		}
		if err := r.CreatePublication(ctx, pub); err != nil {
			return nil, err
		}
		replaced = append(replaced, pub)
	}

	return replaced, nil
}

// Derived state

func (s *service) EffectiveState(ctx context.Context, id uuid.UUID) (EffectiveState, error) {
	post, err := s.repository.GetPost(ctx, id)
	if err != nil {
		return "", err
	}
	publications, err := s.repository.ListPublications(ctx, PostRef(id))
	if err != nil {
		return "", err
	}
	return ResolveState(post, publications)
}

// Lock operations

func (s *service) AcquireLock(ctx context.Context, postID, actingUserID uuid.UUID) (*Lock, error) {
	if _, err := s.repository.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	lock, err := s.repository.AcquireLock(ctx, PostRef(postID), actingUserID)
	if err != nil {
		return nil, err
	}
	s.fire(ctx, []event{func(ctx context.Context, sink EventSink) {
		_ = sink.LockAcquired(ctx, lock)
	}})
	return lock, nil
}

func (s *service) ReleaseLock(ctx context.Context, postID, actingUserID uuid.UUID) error {
	lock, err := s.repository.ReleaseLock(ctx, PostRef(postID), actingUserID)
	if err != nil {
		return err
	}
	s.fire(ctx, []event{func(ctx context.Context, sink EventSink) {
		_ = sink.LockReleased(ctx, lock)
	}})
	return nil
}

func (s *service) InspectLock(ctx context.Context, postID uuid.UUID) (*Lock, error) {
	return s.repository.GetLock(ctx, PostRef(postID))
}

// Placement operations

func (s *service) Publish(ctx context.Context, req PublishPostRequest) ([]*Publication, error) {
	criteria := req.Criteria
	if _, err := s.UpdatePost(ctx, UpdatePostRequest{
		PostID:       req.PostID,
		ActingUserID: req.ActingUserID,
		Publish:      &criteria,
	}); err != nil {
		return nil, err
	}
	return s.repository.ListPublications(ctx, PostRef(req.PostID))
}

func (s *service) ReplacePublications(ctx context.Context, req ReplacePublicationsRequest) ([]*Publication, error) {
	placements := req.Placements
	if placements == nil {
		placements = []PlacementInput{}
	}
	if _, err := s.UpdatePost(ctx, UpdatePostRequest{
		PostID:       req.PostID,
		ActingUserID: req.ActingUserID,
		Publications: placements,
	}); err != nil {
		return nil, err
	}
	return s.repository.ListPublications(ctx, PostRef(req.PostID))
}

func (s *service) ListPublications(ctx context.Context, postID uuid.UUID) ([]*Publication, error) {
	return s.repository.ListPublications(ctx, PostRef(postID))
}

// Image slots

func (s *service) SetPostImage(ctx context.Context, req SetPostImageRequest) error {
	err := s.repository.InTx(ctx, func(r Repository) error {
		post, err := r.GetPost(ctx, req.PostID)
		if err != nil {
			return err
		}
		owner := PostRef(post.ID)

		if err := s.checkLockPrecondition(ctx, r, owner, req.ActingUserID); err != nil {
			return err
		}
		if err := r.UpsertImage(ctx, owner, req.Image); err != nil {
			return err
		}
		return r.AppendAudit(ctx, newAuditRecord(owner, AuditUpdate, req.ActingUserID))
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return err
		}
		return &PostError{PostID: req.PostID, Op: "set_image", Err: err}
	}
	return nil
}

// Details and history

func (s *service) GetPostDetails(ctx context.Context, id uuid.UUID) (*PostDetails, error) {
	post, err := s.repository.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := PostRef(id)

	publications, err := s.repository.ListPublications(ctx, owner)
	if err != nil {
		return nil, err
	}
	state, err := ResolveState(post, publications)
	if err != nil {
		return nil, err
	}

	details := &PostDetails{
		Post:         post,
		State:        state,
		Publications: publications,
	}

	lock, err := s.repository.GetLock(ctx, owner)
	if err != nil && !errors.Is(err, ErrLockNotFound) {
		return nil, err
	}
	if lock != nil && lock.State == LockActive {
		details.Lock = lock
	}

	if details.Keywords, err = s.repository.ListKeywords(ctx, owner); err != nil {
		return nil, err
	}
	if details.Tags, err = s.repository.ListTags(ctx, owner); err != nil {
		return nil, err
	}
	if details.Images, err = s.repository.ListImages(ctx, owner); err != nil {
		return nil, err
	}

	history, err := s.repository.ListAudit(ctx, owner, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range history {
		switch record.Action {
		case AuditCreate:
			if details.CreatedBy == nil {
				details.CreatedBy = record
			}
		case AuditUpdate:
			details.LastEditedBy = record
		}
	}

	return details, nil
}

func (s *service) History(ctx context.Context, req HistoryRequest) ([]*AuditRecord, error) {
	return s.repository.ListAudit(ctx, PostRef(req.PostID), req.Action)
}

// Helpers

func newAuditRecord(owner EntityRef, action AuditAction, userID uuid.UUID) *AuditRecord {
	return &AuditRecord{
		ID:        uuid.New(),
		Owner:     owner,
		Action:    action,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	result := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

// dedupeImages keeps the last reference supplied for each coordinate pair.
func dedupeImages(images []ImageSlot) []ImageSlot {
	type coord struct{ rows, cols int }
	byCoord := make(map[coord]int, len(images))
	result := make([]ImageSlot, 0, len(images))
	for _, img := range images {
		c := coord{img.Rows, img.Cols}
		if i, ok := byCoord[c]; ok {
			result[i] = img
			continue
		}
		byCoord[c] = len(result)
		result = append(result, img)
	}
	return result
}
