package recommend

import (
	"context"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, NewRepo(db).Migrate(), "automigrate")
	return db
}

func ptr[T any](v T) *T { return &v }

func TestRepo_RoundTripFromCandidate(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	cand := Candidate{
		ID:      "c1",
		Track:   Track{Name: "Midnight City", Artist: "M83"},
		Reason:  "energetic synths",
		Mood:    ptr("euphoric"),
		Context: ptr("night drive"),
	}
	rec := NewRecord("user-1", cand, "")
	require.NoError(t, repo.Insert(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.ListForUser(ctx, "user-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, cand.Track.Name, r.TrackName)
	assert.Equal(t, cand.Track.Artist, r.ArtistName)
	assert.Equal(t, cand.Reason, r.Reason)
	require.NotNil(t, r.Mood)
	assert.Equal(t, "euphoric", *r.Mood)
	require.NotNil(t, r.Context)
	assert.Equal(t, "night drive", *r.Context)
	assert.Equal(t, "", r.TrackID)
	assert.False(t, r.IsLiked)
	assert.False(t, r.IsHidden)
	assert.Nil(t, r.InteractedAt)
}

func TestRepo_OptionalFieldsStayUnset(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, NewRecord("u", Candidate{Track: Track{Name: "A", Artist: "B"}}, "sp:1")))

	got, err := repo.ListForUser(ctx, "u", ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Mood)
	assert.Nil(t, got[0].Context)
	assert.Equal(t, "", got[0].Reason)
	assert.Equal(t, "sp:1", got[0].TrackID)
}

func TestRepo_ListIsUserScopedAndNewestFirst(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Insert(ctx, NewRecord("alice", Candidate{Track: Track{Name: name, Artist: "x"}}, "")))
	}
	require.NoError(t, repo.Insert(ctx, NewRecord("bob", Candidate{Track: Track{Name: "bob's", Artist: "y"}}, "")))

	got, err := repo.ListForUser(ctx, "alice", ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "three", got[0].TrackName)
	assert.Equal(t, "one", got[2].TrackName)

	page, err := repo.ListForUser(ctx, "alice", ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := repo.ListForUser(ctx, "alice", ListFilter{Limit: 2, BeforeID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "one", rest[0].TrackName)
}

func TestRepo_MarkInteraction(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	rec := NewRecord("alice", Candidate{Track: Track{Name: "A", Artist: "B"}, Reason: "r"}, "")
	require.NoError(t, repo.Insert(ctx, rec))
	createdAt := rec.CreatedAt

	updated, err := repo.MarkInteraction(ctx, "alice", rec.ID, Interaction{Liked: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsLiked)
	assert.False(t, updated.IsHidden)
	require.NotNil(t, updated.InteractedAt)
	assert.WithinDuration(t, createdAt, updated.CreatedAt, time.Second)

	// liked and hidden are independent
	updated, err = repo.MarkInteraction(ctx, "alice", rec.ID, Interaction{Hidden: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsLiked)
	assert.True(t, updated.IsHidden)

	liked, err := repo.ListForUser(ctx, "alice", ListFilter{Liked: ptr(true), Hidden: ptr(true)})
	require.NoError(t, err)
	assert.Len(t, liked, 1)
	visible, err := repo.ListForUser(ctx, "alice", ListFilter{Hidden: ptr(false)})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestRepo_MarkInteractionScopedToOwner(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	rec := NewRecord("alice", Candidate{Track: Track{Name: "A", Artist: "B"}}, "")
	require.NoError(t, repo.Insert(ctx, rec))

	_, err := repo.MarkInteraction(ctx, "mallory", rec.ID, Interaction{Liked: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.MarkInteraction(ctx, "alice", rec.ID+100, Interaction{Liked: ptr(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.MarkInteraction(ctx, "alice", rec.ID, Interaction{})
	assert.ErrorIs(t, err, ErrInvalidInteraction)

	got, err := repo.ListForUser(ctx, "alice", ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsLiked)
	assert.Nil(t, got[0].InteractedAt)
}

func TestRepo_FilterByMood(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, NewRecord("u", Candidate{Track: Track{Name: "A"}, Mood: ptr("calm")}, "")))
	require.NoError(t, repo.Insert(ctx, NewRecord("u", Candidate{Track: Track{Name: "B"}, Mood: ptr("hype")}, "")))

	got, err := repo.ListForUser(ctx, "u", ListFilter{Mood: "calm"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].TrackName)
}

func TestRepo_IterForUserIsLazyAndRestartable(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.Insert(ctx, NewRecord("u", Candidate{Track: Track{Name: string(rune('a' + i))}}, "")))
	}

	seq := repo.IterForUser(ctx, "u", ListFilter{Limit: 3})

	collect := func() []string {
		var names []string
		for rec, err := range seq {
			require.NoError(t, err)
			names = append(names, rec.TrackName)
		}
		return names
	}
	first := collect()
	assert.Equal(t, []string{"g", "f", "e", "d", "c", "b", "a"}, first)
	assert.Equal(t, first, collect())

	var partial []string
	for rec, err := range seq {
		require.NoError(t, err)
		partial = append(partial, rec.TrackName)
		if len(partial) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"g", "f"}, partial)
}

func TestRepo_InsertFailureIsStorageUnavailable(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	require.NoError(t, db.Migrator().DropTable(&Record{}))

	err := repo.Insert(context.Background(), NewRecord("u", Candidate{Track: Track{Name: "A"}}, ""))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
