package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsroomkit/editorial/pkg/editorial"
)

// Repository implements editorial.Repository using in-memory storage. It is
// safe for concurrent use; all lock-protocol decisions happen under the
// repository mutex, which makes acquire/release linearizable per owner.
type Repository struct {
	mu sync.RWMutex
	s  *state

	// inTx marks a transactional view handed to InTx callbacks; such views
	// skip locking because the transaction already holds the write lock.
	inTx bool
}

type state struct {
	posts        map[uuid.UUID]*editorial.Post
	locks        map[editorial.EntityRef]*editorial.Lock
	publications map[uuid.UUID]*editorial.Publication
	keywords     map[editorial.EntityRef][]uuid.UUID
	tags         map[editorial.EntityRef][]uuid.UUID
	images       map[editorial.EntityRef][]editorial.ImageSlot
	audit        []*editorial.AuditRecord
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{s: newState()}
}

func newState() *state {
	return &state{
		posts:        make(map[uuid.UUID]*editorial.Post),
		locks:        make(map[editorial.EntityRef]*editorial.Lock),
		publications: make(map[uuid.UUID]*editorial.Publication),
		keywords:     make(map[editorial.EntityRef][]uuid.UUID),
		tags:         make(map[editorial.EntityRef][]uuid.UUID),
		images:       make(map[editorial.EntityRef][]editorial.ImageSlot),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, post := range s.posts {
		postCopy := *post
		c.posts[id] = &postCopy
	}
	for ref, lock := range s.locks {
		lockCopy := *lock
		c.locks[ref] = &lockCopy
	}
	for id, pub := range s.publications {
		pubCopy := *pub
		c.publications[id] = &pubCopy
	}
	for ref, ids := range s.keywords {
		c.keywords[ref] = append([]uuid.UUID(nil), ids...)
	}
	for ref, ids := range s.tags {
		c.tags[ref] = append([]uuid.UUID(nil), ids...)
	}
	for ref, images := range s.images {
		c.images[ref] = append([]editorial.ImageSlot(nil), images...)
	}
	c.audit = append([]*editorial.AuditRecord(nil), s.audit...)
	return c
}

func (r *Repository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *Repository) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

// InTx runs fn against a transactional view. The whole store is locked for
// the duration; on error the pre-transaction snapshot is restored, so a
// failing pipeline leaves nothing behind.
func (r *Repository) InTx(ctx context.Context, fn func(editorial.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.s.clone()
	tx := &Repository{s: r.s, inTx: true}
	if err := fn(tx); err != nil {
		r.s = snapshot
		return err
	}
	return nil
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *editorial.Post) error {
	defer r.lock()()

	postCopy := *post
	r.s.posts[post.ID] = &postCopy
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*editorial.Post, error) {
	defer r.rlock()()

	post, exists := r.s.posts[id]
	if !exists || post.DeletedAt != nil {
		return nil, editorial.ErrPostNotFound
	}
	postCopy := *post
	return &postCopy, nil
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*editorial.Post, error) {
	defer r.rlock()()

	for _, post := range r.s.posts {
		if post.Slug == slug && post.DeletedAt == nil {
			postCopy := *post
			return &postCopy, nil
		}
	}
	return nil, editorial.ErrPostNotFound
}

func (r *Repository) GetPostByTitle(ctx context.Context, title string) (*editorial.Post, error) {
	defer r.rlock()()

	for _, post := range r.s.posts {
		if post.Title == title && post.DeletedAt == nil {
			postCopy := *post
			return &postCopy, nil
		}
	}
	return nil, editorial.ErrPostNotFound
}

func (r *Repository) UpdatePost(ctx context.Context, post *editorial.Post) error {
	defer r.lock()()

	existing, exists := r.s.posts[post.ID]
	if !exists || existing.DeletedAt != nil {
		return editorial.ErrPostNotFound
	}
	postCopy := *post
	r.s.posts[post.ID] = &postCopy
	return nil
}

func (r *Repository) SoftDeletePost(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()

	post, exists := r.s.posts[id]
	if !exists || post.DeletedAt != nil {
		return editorial.ErrPostNotFound
	}
	now := time.Now().UTC()
	post.DeletedAt = &now
	post.UpdatedAt = now
	return nil
}

func (r *Repository) HardDeletePost(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()

	if _, exists := r.s.posts[id]; !exists {
		return editorial.ErrPostNotFound
	}
	delete(r.s.posts, id)

	owner := editorial.PostRef(id)
	delete(r.s.locks, owner)
	delete(r.s.keywords, owner)
	delete(r.s.tags, owner)
	delete(r.s.images, owner)
	for pubID, pub := range r.s.publications {
		if pub.Owner == owner {
			delete(r.s.publications, pubID)
		}
	}
	// The audit ledger is append-only and survives the owner.
	return nil
}

func (r *Repository) ListPosts(ctx context.Context, filters editorial.PostListFilters) ([]*editorial.Post, error) {
	defer r.rlock()()

	now := time.Now().UTC()
	var result []*editorial.Post
	for _, post := range r.s.posts {
		if post.DeletedAt != nil {
			continue
		}
		if filters.State != nil && post.StateID != *filters.State {
			continue
		}
		if filters.WaitingList != nil && !*filters.WaitingList {
			if !r.hasFuturePublication(editorial.PostRef(post.ID), now) {
				continue
			}
		}
		postCopy := *post
		result = append(result, &postCopy)
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset != nil {
		if *filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[*filters.Offset:]
	}
	if filters.Limit != nil && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}
	return result, nil
}

func (r *Repository) hasFuturePublication(owner editorial.EntityRef, now time.Time) bool {
	for _, pub := range r.s.publications {
		if pub.Owner == owner && pub.IsPublished && pub.PublishAt != nil && pub.PublishAt.After(now) {
			return true
		}
	}
	return false
}

// Lock operations

func (r *Repository) AcquireLock(ctx context.Context, owner editorial.EntityRef, holderID uuid.UUID) (*editorial.Lock, error) {
	defer r.lock()()

	now := time.Now().UTC()
	existing, exists := r.s.locks[owner]
	if !exists {
		lock := &editorial.Lock{
			ID:        uuid.New(),
			Owner:     owner,
			HolderID:  holderID,
			State:     editorial.LockActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.s.locks[owner] = lock
		lockCopy := *lock
		return &lockCopy, nil
	}

	if existing.State == editorial.LockActive && existing.HolderID != holderID {
		return nil, &editorial.LockHeldError{Owner: owner, HolderID: existing.HolderID}
	}

	existing.HolderID = holderID
	existing.State = editorial.LockActive
	existing.UpdatedAt = now
	lockCopy := *existing
	return &lockCopy, nil
}

func (r *Repository) ReleaseLock(ctx context.Context, owner editorial.EntityRef, holderID uuid.UUID) (*editorial.Lock, error) {
	defer r.lock()()

	existing, exists := r.s.locks[owner]
	if !exists {
		return nil, editorial.ErrLockNotFound
	}
	if existing.HolderID != holderID {
		return nil, editorial.ErrPermissionDenied
	}

	existing.State = editorial.LockInactive
	existing.UpdatedAt = time.Now().UTC()
	lockCopy := *existing
	return &lockCopy, nil
}

func (r *Repository) GetLock(ctx context.Context, owner editorial.EntityRef) (*editorial.Lock, error) {
	defer r.rlock()()

	lock, exists := r.s.locks[owner]
	if !exists {
		return nil, editorial.ErrLockNotFound
	}
	lockCopy := *lock
	return &lockCopy, nil
}

// Publication operations

func (r *Repository) CreatePublication(ctx context.Context, pub *editorial.Publication) error {
	defer r.lock()()

	pubCopy := *pub
	r.s.publications[pub.ID] = &pubCopy
	return nil
}

func (r *Repository) ListPublications(ctx context.Context, owner editorial.EntityRef) ([]*editorial.Publication, error) {
	defer r.rlock()()

	var result []*editorial.Publication
	for _, pub := range r.s.publications {
		if pub.Owner == owner {
			pubCopy := *pub
			result = append(result, &pubCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeletePublications(ctx context.Context, owner editorial.EntityRef) error {
	defer r.lock()()

	for id, pub := range r.s.publications {
		if pub.Owner == owner {
			delete(r.s.publications, id)
		}
	}
	return nil
}

func (r *Repository) CountPublications(ctx context.Context, owner editorial.EntityRef) (int, error) {
	defer r.rlock()()

	count := 0
	for _, pub := range r.s.publications {
		if pub.Owner == owner {
			count++
		}
	}
	return count, nil
}

// Relation sets

func (r *Repository) ReplaceKeywords(ctx context.Context, owner editorial.EntityRef, keywordIDs []uuid.UUID) error {
	defer r.lock()()
	r.s.keywords[owner] = append([]uuid.UUID(nil), keywordIDs...)
	return nil
}

func (r *Repository) ListKeywords(ctx context.Context, owner editorial.EntityRef) ([]uuid.UUID, error) {
	defer r.rlock()()
	return append([]uuid.UUID(nil), r.s.keywords[owner]...), nil
}

func (r *Repository) ReplaceTags(ctx context.Context, owner editorial.EntityRef, tagIDs []uuid.UUID) error {
	defer r.lock()()
	r.s.tags[owner] = append([]uuid.UUID(nil), tagIDs...)
	return nil
}

func (r *Repository) ListTags(ctx context.Context, owner editorial.EntityRef) ([]uuid.UUID, error) {
	defer r.rlock()()
	return append([]uuid.UUID(nil), r.s.tags[owner]...), nil
}

func (r *Repository) ReplaceImages(ctx context.Context, owner editorial.EntityRef, images []editorial.ImageSlot) error {
	defer r.lock()()
	r.s.images[owner] = append([]editorial.ImageSlot(nil), images...)
	return nil
}

func (r *Repository) UpsertImage(ctx context.Context, owner editorial.EntityRef, image editorial.ImageSlot) error {
	defer r.lock()()

	images := r.s.images[owner]
	for i, existing := range images {
		if existing.Rows == image.Rows && existing.Cols == image.Cols {
			images[i] = image
			return nil
		}
	}
	r.s.images[owner] = append(images, image)
	return nil
}

func (r *Repository) ListImages(ctx context.Context, owner editorial.EntityRef) ([]editorial.ImageSlot, error) {
	defer r.rlock()()
	return append([]editorial.ImageSlot(nil), r.s.images[owner]...), nil
}

// Audit ledger

func (r *Repository) AppendAudit(ctx context.Context, record *editorial.AuditRecord) error {
	defer r.lock()()

	recordCopy := *record
	r.s.audit = append(r.s.audit, &recordCopy)
	return nil
}

func (r *Repository) ListAudit(ctx context.Context, owner editorial.EntityRef, action *editorial.AuditAction) ([]*editorial.AuditRecord, error) {
	defer r.rlock()()

	var result []*editorial.AuditRecord
	for _, record := range r.s.audit {
		if record.Owner != owner {
			continue
		}
		if action != nil && record.Action != *action {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}
	// Insertion order is creation order; records are never reordered.
	return result, nil
}
