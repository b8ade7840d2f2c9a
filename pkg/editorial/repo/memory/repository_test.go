package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroomkit/editorial/pkg/editorial"
	"github.com/newsroomkit/editorial/pkg/editorial/repo/memory"
)

func newPost(title string) *editorial.Post {
	now := time.Now().UTC()
	return &editorial.Post{
		ID:        uuid.New(),
		Title:     title,
		Slug:      title,
		StateID:   editorial.StateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostLifecycle(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	post := newPost("first")
	require.NoError(t, repo.CreatePost(ctx, post))

	got, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)

	// Mutating the returned copy must not leak into the store.
	got.Title = "mutated"
	again, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", again.Title)

	require.NoError(t, repo.SoftDeletePost(ctx, post.ID))
	_, err = repo.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, editorial.ErrPostNotFound)
}

func TestHardDeleteCascades(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	post := newPost("cascade")
	owner := editorial.PostRef(post.ID)
	require.NoError(t, repo.CreatePost(ctx, post))

	_, err := repo.AcquireLock(ctx, owner, uuid.New())
	require.NoError(t, err)
	require.NoError(t, repo.CreatePublication(ctx, &editorial.Publication{
		ID: uuid.New(), Owner: owner, SlotID: uuid.New(), CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, repo.AppendAudit(ctx, &editorial.AuditRecord{
		ID: uuid.New(), Owner: owner, Action: editorial.AuditCreate, UserID: uuid.New(), CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, repo.HardDeletePost(ctx, post.ID))

	_, err = repo.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, editorial.ErrPostNotFound)
	_, err = repo.GetLock(ctx, owner)
	assert.ErrorIs(t, err, editorial.ErrLockNotFound)
	count, err := repo.CountPublications(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The ledger is the one thing that survives.
	records, err := repo.ListAudit(ctx, owner, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLockProtocol(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	owner := editorial.PostRef(uuid.New())
	userA := uuid.New()
	userB := uuid.New()

	t.Run("first acquire creates an active lock", func(t *testing.T) {
		lock, err := repo.AcquireLock(ctx, owner, userA)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockActive, lock.State)
		assert.Equal(t, userA, lock.HolderID)
	})

	t.Run("competing acquire fails with holder id", func(t *testing.T) {
		_, err := repo.AcquireLock(ctx, owner, userB)
		var held *editorial.LockHeldError
		require.ErrorAs(t, err, &held)
		assert.Equal(t, userA, held.HolderID)
	})

	t.Run("re-acquire by holder is a no-op toggle", func(t *testing.T) {
		lock, err := repo.AcquireLock(ctx, owner, userA)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockActive, lock.State)
	})

	t.Run("release by non-holder is denied and lock stays active", func(t *testing.T) {
		_, err := repo.ReleaseLock(ctx, owner, userB)
		assert.ErrorIs(t, err, editorial.ErrPermissionDenied)

		lock, err := repo.GetLock(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockActive, lock.State)
	})

	t.Run("release by holder deactivates, acquire by other succeeds", func(t *testing.T) {
		released, err := repo.ReleaseLock(ctx, owner, userA)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockInactive, released.State)

		lock, err := repo.AcquireLock(ctx, owner, userB)
		require.NoError(t, err)
		assert.Equal(t, userB, lock.HolderID)
	})

	t.Run("the same row is reused across toggles", func(t *testing.T) {
		first, err := repo.GetLock(ctx, owner)
		require.NoError(t, err)
		_, err = repo.ReleaseLock(ctx, owner, userB)
		require.NoError(t, err)
		second, err := repo.GetLock(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("release with no lock row", func(t *testing.T) {
		_, err := repo.ReleaseLock(ctx, editorial.PostRef(uuid.New()), userA)
		assert.ErrorIs(t, err, editorial.ErrLockNotFound)
	})
}

func TestLockConcurrentAcquire(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	owner := editorial.PostRef(uuid.New())

	const contenders = 16
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			_, err := repo.AcquireLock(ctx, owner, uuid.New())
			results <- err
		}()
	}

	winners := 0
	for i := 0; i < contenders; i++ {
		if err := <-results; err == nil {
			winners++
		} else {
			var held *editorial.LockHeldError
			assert.ErrorAs(t, err, &held)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	post := newPost("stable")
	owner := editorial.PostRef(post.ID)
	require.NoError(t, repo.CreatePost(ctx, post))
	require.NoError(t, repo.CreatePublication(ctx, &editorial.Publication{
		ID: uuid.New(), Owner: owner, SlotID: uuid.New(), CreatedAt: time.Now().UTC(),
	}))

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(r editorial.Repository) error {
		if err := r.DeletePublications(ctx, owner); err != nil {
			return err
		}
		updated, err := r.GetPost(ctx, post.ID)
		if err != nil {
			return err
		}
		updated.Title = "changed"
		if err := r.UpdatePost(ctx, updated); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := repo.CountPublications(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "deleted publications must come back")

	got, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "stable", got.Title)
}

func TestInTxCommits(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	post := newPost("committed")
	err := repo.InTx(ctx, func(r editorial.Repository) error {
		return r.CreatePost(ctx, post)
	})
	require.NoError(t, err)

	_, err = repo.GetPost(ctx, post.ID)
	assert.NoError(t, err)
}

func TestListPostsFilters(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	archived := newPost("archived-one")
	archived.StateID = editorial.StateArchived
	require.NoError(t, repo.CreatePost(ctx, archived))

	scheduled := newPost("scheduled-one")
	require.NoError(t, repo.CreatePost(ctx, scheduled))
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.CreatePublication(ctx, &editorial.Publication{
		ID:          uuid.New(),
		Owner:       editorial.PostRef(scheduled.ID),
		SlotID:      uuid.New(),
		IsPublished: true,
		PublishAt:   &future,
		CreatedAt:   time.Now().UTC(),
	}))

	t.Run("state filter", func(t *testing.T) {
		state := editorial.StateArchived
		posts, err := repo.ListPosts(ctx, editorial.PostListFilters{State: &state})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, archived.ID, posts[0].ID)
	})

	t.Run("waiting list false keeps only future-scheduled posts", func(t *testing.T) {
		waiting := false
		posts, err := repo.ListPosts(ctx, editorial.PostListFilters{WaitingList: &waiting})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, scheduled.ID, posts[0].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		limit, offset := 1, 1
		posts, err := repo.ListPosts(ctx, editorial.PostListFilters{Limit: &limit, Offset: &offset})
		require.NoError(t, err)
		assert.Len(t, posts, 1)
	})
}

func TestImageUpsertReplacesCoordinate(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	owner := editorial.PostRef(uuid.New())

	first := editorial.ImageSlot{ImageID: uuid.New(), Rows: 2, Cols: 3}
	require.NoError(t, repo.UpsertImage(ctx, owner, first))

	second := editorial.ImageSlot{ImageID: uuid.New(), Rows: 2, Cols: 3}
	require.NoError(t, repo.UpsertImage(ctx, owner, second))

	other := editorial.ImageSlot{ImageID: uuid.New(), Rows: 1, Cols: 1}
	require.NoError(t, repo.UpsertImage(ctx, owner, other))

	images, err := repo.ListImages(ctx, owner)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, second.ImageID, images[0].ImageID)
}
