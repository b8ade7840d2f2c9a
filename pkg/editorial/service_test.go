package editorial_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroomkit/editorial/pkg/editorial"
	"github.com/newsroomkit/editorial/pkg/editorial/repo/memory"
)

// stubCatalog is a fixed slot catalog: criteria with IsFeatured resolve to
// the featured slots, everything else to the section slots.
type stubCatalog struct {
	sectionSlots  []uuid.UUID
	featuredSlots []uuid.UUID
}

func (c *stubCatalog) ResolveSlots(ctx context.Context, criteria editorial.PublishCriteria) ([]uuid.UUID, error) {
	if criteria.IsFeatured {
		return append(append([]uuid.UUID(nil), c.sectionSlots...), c.featuredSlots...), nil
	}
	return append([]uuid.UUID(nil), c.sectionSlots...), nil
}

func (c *stubCatalog) SlotExists(ctx context.Context, slotID uuid.UUID) (bool, error) {
	for _, id := range append(append([]uuid.UUID(nil), c.sectionSlots...), c.featuredSlots...) {
		if id == slotID {
			return true, nil
		}
	}
	return false, nil
}

func setupTestService(t *testing.T) (editorial.Service, *stubCatalog) {
	t.Helper()

	catalog := &stubCatalog{
		sectionSlots:  []uuid.UUID{uuid.New()},
		featuredSlots: []uuid.UUID{uuid.New()},
	}
	svc, err := editorial.New(
		editorial.WithRepository(memory.New()),
		editorial.WithSlotCatalog(catalog),
		editorial.WithEventSink(editorial.NewNoopEventSink()),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)
	return svc, catalog
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []editorial.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []editorial.Option{},
			expectError: true,
		},
		{
			name: "missing catalog should fail",
			options: []editorial.Option{
				editorial.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and catalog should succeed",
			options: []editorial.Option{
				editorial.WithRepository(memory.New()),
				editorial.WithSlotCatalog(&stubCatalog{}),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := editorial.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreatePost(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("slug derives from title", func(t *testing.T) {
		post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Launch Day",
			Body:         "liftoff",
		})
		require.NoError(t, err)
		assert.Equal(t, "launch-day", post.Slug)
		assert.Equal(t, editorial.StateSubmitted, post.StateID)
		assert.False(t, post.CreatedAt.IsZero())
	})

	t.Run("create appends exactly one create record", func(t *testing.T) {
		post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Audited",
		})
		require.NoError(t, err)

		history, err := svc.History(ctx, editorial.HistoryRequest{PostID: post.ID})
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, editorial.AuditCreate, history[0].Action)
		assert.Equal(t, userID, history[0].UserID)
	})

	t.Run("create with relations dedupes ids", func(t *testing.T) {
		kw := uuid.New()
		post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "With Keywords",
			Keywords:     []uuid.UUID{kw, kw, uuid.New()},
		})
		require.NoError(t, err)

		details, err := svc.GetPostDetails(ctx, post.ID)
		require.NoError(t, err)
		assert.Len(t, details.Keywords, 2)
	})

	t.Run("invalid stored state rejected", func(t *testing.T) {
		_, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Bad State",
			StateID:      editorial.StoredState(9),
		})
		assert.Error(t, err)
	})
}

func TestUpdatePostFields(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userID,
		Title:        "Original Title",
		Body:         "original",
	})
	require.NoError(t, err)

	t.Run("title change recomputes slug", func(t *testing.T) {
		title := "Brand New Title"
		updated, err := svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Title:        &title,
		})
		require.NoError(t, err)
		assert.Equal(t, "brand-new-title", updated.Slug)
	})

	t.Run("untouched fields survive", func(t *testing.T) {
		short := "teaser"
		updated, err := svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Short:        &short,
		})
		require.NoError(t, err)
		assert.Equal(t, "original", updated.Body)
		assert.Equal(t, "teaser", updated.Short)
	})

	t.Run("duplicate title rejected", func(t *testing.T) {
		_, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Taken Title",
		})
		require.NoError(t, err)

		title := "Taken Title"
		_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Title:        &title,
		})
		assert.ErrorIs(t, err, editorial.ErrDuplicateTitle)
	})

	t.Run("update of missing post", func(t *testing.T) {
		title := "whatever"
		_, err := svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       uuid.New(),
			ActingUserID: userID,
			Title:        &title,
		})
		assert.ErrorIs(t, err, editorial.ErrPostNotFound)
	})

	t.Run("each update appends one update record", func(t *testing.T) {
		action := editorial.AuditUpdate
		before, err := svc.History(ctx, editorial.HistoryRequest{PostID: post.ID, Action: &action})
		require.NoError(t, err)

		body := "changed"
		_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Body:         &body,
		})
		require.NoError(t, err)

		after, err := svc.History(ctx, editorial.HistoryRequest{PostID: post.ID, Action: &action})
		require.NoError(t, err)
		assert.Len(t, after, len(before)+1)
	})
}

func TestLockExclusivity(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	userA := uuid.New()
	userB := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userA,
		Title:        "Contended",
	})
	require.NoError(t, err)

	t.Run("A acquires, B is refused with holder id", func(t *testing.T) {
		lock, err := svc.AcquireLock(ctx, post.ID, userA)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockActive, lock.State)
		assert.Equal(t, userA, lock.HolderID)

		_, err = svc.AcquireLock(ctx, post.ID, userB)
		var held *editorial.LockHeldError
		require.ErrorAs(t, err, &held)
		assert.Equal(t, userA, held.HolderID)
	})

	t.Run("B cannot update fields while A holds the lock", func(t *testing.T) {
		body := "sneaky edit"
		_, err := svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userB,
			Body:         &body,
		})
		var held *editorial.LockHeldError
		require.ErrorAs(t, err, &held)

		got, err := svc.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Body)
	})

	t.Run("release by B is denied and lock stays active", func(t *testing.T) {
		err := svc.ReleaseLock(ctx, post.ID, userB)
		assert.ErrorIs(t, err, editorial.ErrPermissionDenied)

		lock, err := svc.InspectLock(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockActive, lock.State)
		assert.Equal(t, userA, lock.HolderID)
	})

	t.Run("after A releases, B acquires", func(t *testing.T) {
		require.NoError(t, svc.ReleaseLock(ctx, post.ID, userA))

		lock, err := svc.AcquireLock(ctx, post.ID, userB)
		require.NoError(t, err)
		assert.Equal(t, userB, lock.HolderID)
	})

	t.Run("lock toggle through update pipeline", func(t *testing.T) {
		release := true
		_, err := svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userB,
			Lock:         &release,
		})
		require.NoError(t, err)

		off := false
		_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
			PostID:       post.ID,
			ActingUserID: userB,
			Lock:         &off,
		})
		require.NoError(t, err)

		lock, err := svc.InspectLock(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, editorial.LockInactive, lock.State)
	})
}

func TestPublishIdempotence(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userID,
		Title:        "Placed",
	})
	require.NoError(t, err)

	criteria := editorial.PublishCriteria{SectionID: uuid.New(), IsFeatured: true}

	pubs, err := svc.Publish(ctx, editorial.PublishPostRequest{
		PostID: post.ID, ActingUserID: userID, Criteria: criteria,
	})
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	for _, pub := range pubs {
		assert.False(t, pub.IsPublished, "implicit publish must not activate")
		assert.Nil(t, pub.PublishAt)
	}

	t.Run("second publish with same criteria adds nothing", func(t *testing.T) {
		again, err := svc.Publish(ctx, editorial.PublishPostRequest{
			PostID: post.ID, ActingUserID: userID, Criteria: criteria,
		})
		require.NoError(t, err)
		assert.Len(t, again, 2)
	})

	t.Run("narrower criteria keeps prior placements", func(t *testing.T) {
		narrower := editorial.PublishCriteria{SectionID: criteria.SectionID}
		after, err := svc.Publish(ctx, editorial.PublishPostRequest{
			PostID: post.ID, ActingUserID: userID, Criteria: narrower,
		})
		require.NoError(t, err)
		assert.Len(t, after, 2, "previously placed slots must not be lost")
	})

	t.Run("no matching slots is not an error", func(t *testing.T) {
		catalog.sectionSlots = nil
		catalog.featuredSlots = nil
		defer func() {
			catalog.sectionSlots = []uuid.UUID{uuid.New()}
			catalog.featuredSlots = []uuid.UUID{uuid.New()}
		}()

		fresh, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Nowhere To Go",
		})
		require.NoError(t, err)

		pubs, err := svc.Publish(ctx, editorial.PublishPostRequest{
			PostID: fresh.ID, ActingUserID: userID,
			Criteria: editorial.PublishCriteria{SectionID: uuid.New()},
		})
		require.NoError(t, err)
		assert.Empty(t, pubs)
	})
}

func TestReplacePublications(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userID,
		Title:        "Explicit",
	})
	require.NoError(t, err)

	slotA := catalog.sectionSlots[0]
	slotB := catalog.featuredSlots[0]
	now := time.Now().UTC()

	t.Run("replace installs the supplied set", func(t *testing.T) {
		pubs, err := svc.ReplacePublications(ctx, editorial.ReplacePublicationsRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Placements: []editorial.PlacementInput{
				{SlotID: slotA, IsPublished: true, PublishAt: &now},
				{SlotID: slotB},
			},
		})
		require.NoError(t, err)
		assert.Len(t, pubs, 2)

		state, err := svc.EffectiveState(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, editorial.EffectivePublished, state)
	})

	t.Run("unknown slot aborts the whole batch", func(t *testing.T) {
		_, err := svc.ReplacePublications(ctx, editorial.ReplacePublicationsRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Placements: []editorial.PlacementInput{
				{SlotID: slotA},
				{SlotID: uuid.New()}, // not in the catalog
			},
		})
		var unknown *editorial.UnknownSlotError
		require.ErrorAs(t, err, &unknown)

		pubs, err := svc.ListPublications(ctx, post.ID)
		require.NoError(t, err)
		assert.Len(t, pubs, 2, "existing placement set must be untouched")

		state, err := svc.EffectiveState(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, editorial.EffectivePublished, state)
	})

	t.Run("replace with empty list clears all placements", func(t *testing.T) {
		pubs, err := svc.ReplacePublications(ctx, editorial.ReplacePublicationsRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Placements:   []editorial.PlacementInput{},
		})
		require.NoError(t, err)
		assert.Empty(t, pubs)

		state, err := svc.EffectiveState(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, editorial.EffectiveSubmitted, state)
	})
}

func TestDeleteSemantics(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("no publications means hard delete", func(t *testing.T) {
		post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Ephemeral",
		})
		require.NoError(t, err)

		require.NoError(t, svc.DeletePost(ctx, editorial.DeletePostRequest{
			PostID: post.ID, ActingUserID: userID,
		}))

		_, err = svc.GetPost(ctx, post.ID)
		assert.ErrorIs(t, err, editorial.ErrPostNotFound)

		action := editorial.AuditDelete
		history, err := svc.History(ctx, editorial.HistoryRequest{PostID: post.ID, Action: &action})
		require.NoError(t, err)
		assert.Len(t, history, 1, "the ledger records the deletion either way")
	})

	t.Run("publications force soft delete", func(t *testing.T) {
		post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
			ActingUserID: userID,
			Title:        "Remembered",
		})
		require.NoError(t, err)

		_, err = svc.ReplacePublications(ctx, editorial.ReplacePublicationsRequest{
			PostID:       post.ID,
			ActingUserID: userID,
			Placements:   []editorial.PlacementInput{{SlotID: catalog.sectionSlots[0]}},
		})
		require.NoError(t, err)

		require.NoError(t, svc.DeletePost(ctx, editorial.DeletePostRequest{
			PostID: post.ID, ActingUserID: userID,
		}))

		_, err = svc.GetPost(ctx, post.ID)
		assert.ErrorIs(t, err, editorial.ErrPostNotFound)

		pubs, err := svc.ListPublications(ctx, post.ID)
		require.NoError(t, err)
		assert.Empty(t, pubs, "placements are hard-deleted before the soft delete")

		action := editorial.AuditDelete
		history, err := svc.History(ctx, editorial.HistoryRequest{PostID: post.ID, Action: &action})
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, userID, history[0].UserID)
	})

	t.Run("delete of missing post", func(t *testing.T) {
		err := svc.DeletePost(ctx, editorial.DeletePostRequest{
			PostID: uuid.New(), ActingUserID: userID,
		})
		assert.ErrorIs(t, err, editorial.ErrPostNotFound)
	})
}

func TestFailedUpdateLeavesNothingBehind(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userID,
		Title:        "Atomic",
		Keywords:     []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	// Field change + relation change + an explicit placement with an unknown
	// slot: the final step fails, so every earlier step must roll back.
	body := "half-applied"
	_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
		PostID:       post.ID,
		ActingUserID: userID,
		Body:         &body,
		Keywords:     []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
		Publications: []editorial.PlacementInput{{SlotID: uuid.New()}},
	})
	var unknown *editorial.UnknownSlotError
	require.ErrorAs(t, err, &unknown)

	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Body)

	details, err := svc.GetPostDetails(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, details.Keywords, 1)

	_ = catalog
}

func TestGetPostDetails(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	author := uuid.New()
	editor := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: author,
		Title:        "Detailed",
		Tags:         []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	_, err = svc.AcquireLock(ctx, post.ID, editor)
	require.NoError(t, err)

	body := "edited"
	_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
		PostID:       post.ID,
		ActingUserID: editor,
		Body:         &body,
	})
	require.NoError(t, err)

	details, err := svc.GetPostDetails(ctx, post.ID)
	require.NoError(t, err)

	assert.Equal(t, editorial.EffectiveSubmitted, details.State)
	require.NotNil(t, details.Lock)
	assert.Equal(t, editor, details.Lock.HolderID)
	assert.Len(t, details.Tags, 1)
	require.NotNil(t, details.CreatedBy)
	assert.Equal(t, author, details.CreatedBy.UserID)
	require.NotNil(t, details.LastEditedBy)
	assert.Equal(t, editor, details.LastEditedBy.UserID)

	t.Run("inactive lock is omitted", func(t *testing.T) {
		require.NoError(t, svc.ReleaseLock(ctx, post.ID, editor))
		details, err := svc.GetPostDetails(ctx, post.ID)
		require.NoError(t, err)
		assert.Nil(t, details.Lock)
	})

	_ = catalog
}

func TestSetPostImage(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: userID,
		Title:        "Pictured",
	})
	require.NoError(t, err)

	first := editorial.ImageSlot{ImageID: uuid.New(), Rows: 2, Cols: 1}
	require.NoError(t, svc.SetPostImage(ctx, editorial.SetPostImageRequest{
		PostID: post.ID, ActingUserID: userID, Image: first,
	}))

	replacement := editorial.ImageSlot{ImageID: uuid.New(), Rows: 2, Cols: 1}
	require.NoError(t, svc.SetPostImage(ctx, editorial.SetPostImageRequest{
		PostID: post.ID, ActingUserID: userID, Image: replacement,
	}))

	details, err := svc.GetPostDetails(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, details.Images, 1)
	assert.Equal(t, replacement.ImageID, details.Images[0].ImageID)
}

// TestEndToEnd walks the scenario from the product brief: create, lock,
// contended edit, idempotent publish.
func TestEndToEnd(t *testing.T) {
	svc, catalog := setupTestService(t)
	ctx := context.Background()
	user1 := uuid.New()
	user2 := uuid.New()

	post, err := svc.CreatePost(ctx, editorial.CreatePostRequest{
		ActingUserID: user1,
		Title:        "Launch Day",
	})
	require.NoError(t, err)
	require.Equal(t, "launch-day", post.Slug)

	lockOn := true
	_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
		PostID:       post.ID,
		ActingUserID: user1,
		Lock:         &lockOn,
	})
	require.NoError(t, err)

	lock, err := svc.InspectLock(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, editorial.LockActive, lock.State)
	require.Equal(t, user1, lock.HolderID)

	body := "stolen"
	_, err = svc.UpdatePost(ctx, editorial.UpdatePostRequest{
		PostID:       post.ID,
		ActingUserID: user2,
		Body:         &body,
	})
	var held *editorial.LockHeldError
	require.ErrorAs(t, err, &held)
	require.Equal(t, user1, held.HolderID)

	criteria := editorial.PublishCriteria{SectionID: uuid.New(), IsFeatured: true}
	pubs, err := svc.Publish(ctx, editorial.PublishPostRequest{
		PostID: post.ID, ActingUserID: user1, Criteria: criteria,
	})
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	pubs, err = svc.Publish(ctx, editorial.PublishPostRequest{
		PostID: post.ID, ActingUserID: user1, Criteria: criteria,
	})
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	_ = catalog
}
