package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/session"
	"github.com/mmynk/mealsync/internal/storage"
	"github.com/mmynk/mealsync/internal/storage/memory"
)

func newProfiles(t *testing.T) (*Profiles, *storage.Local) {
	t.Helper()
	store := storage.NewLocal(memory.New(0))
	repo := NewProfiles(store, session.New(), nil)
	repo.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
	return repo, store
}

func TestProfilesGetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo, store := newProfiles(t)

	p, err := repo.GetOrCreate(ctx, "new@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "new", p.Name)
	assert.Equal(t, "new@example.com", p.Email)
	assert.NotNil(t, p.Interests)
	assert.Empty(t, p.Interests)
	assert.Equal(t, "2024-03-15T09:30:00Z", p.LastUpdated)
	assert.True(t, store.Has(ctx, "user-profile-new@example.com"))

	again, err := repo.GetOrCreate(ctx, "NEW@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestProfilesSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, store := newProfiles(t)

	p := &models.Profile{
		ID:          "p1",
		Name:        "Alice",
		Email:       "stale@example.com",
		Phone:       "555-0100",
		Avatar:      "data:image/png;base64,AAAA",
		CoverImage:  "data:image/png;base64,BBBB",
		Bio:         "eats",
		Interests:   []string{"cooking", "travel"},
		SocialLinks: map[string]string{"github": "https://github.com/alice"},
	}
	want := p.Clone()

	require.NoError(t, repo.Save(ctx, "Alice@Example.com", p))
	assert.Equal(t, "alice@example.com", p.Email)

	got, ok := repo.Load(ctx, "alice@example.com")
	require.True(t, ok)
	want.Email = got.Email
	want.LastUpdated = got.LastUpdated
	assert.Equal(t, want, got)

	// Images live under their own keys.
	record := storage.Read(ctx, store, "user-profile-alice@example.com", models.Profile{})
	assert.Empty(t, record.Avatar)
	assert.Empty(t, record.CoverImage)
	avatar, ok := repo.LoadAvatar(ctx, "alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "data:image/png;base64,AAAA", avatar)
}

func TestProfilesSaveWithoutImageRemovesStoredImage(t *testing.T) {
	ctx := context.Background()
	repo, store := newProfiles(t)

	p := &models.Profile{
		ID:         "p1",
		Name:       "Alice",
		Avatar:     "data:image/png;base64,AAAA",
		CoverImage: "data:image/png;base64,BBBB",
	}
	require.NoError(t, repo.Save(ctx, "alice@example.com", p))

	p.Avatar = ""
	require.NoError(t, repo.Save(ctx, "alice@example.com", p))

	got, ok := repo.Load(ctx, "alice@example.com")
	require.True(t, ok)
	assert.Empty(t, got.Avatar)
	assert.Equal(t, "data:image/png;base64,BBBB", got.CoverImage)
	assert.False(t, store.Has(ctx, "user-avatar-alice@example.com"))
	assert.True(t, store.Has(ctx, "user-cover-alice@example.com"))
}

func TestProfilesLoadAbsentOrMalformed(t *testing.T) {
	ctx := context.Background()
	repo, store := newProfiles(t)

	_, ok := repo.Load(ctx, "nobody@example.com")
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "user-profile-bad@example.com", []byte("{not json")))
	_, ok = repo.Load(ctx, "bad@example.com")
	assert.False(t, ok)

	_, ok = repo.Load(ctx, "")
	assert.False(t, ok)
	assert.ErrorIs(t, repo.Save(ctx, " ", &models.Profile{}), models.ErrIdentityRequired)
}

func TestProfilesUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newProfiles(t)

	name := "Alice"
	avatar := "data:avatar"
	p, err := repo.Update(ctx, "alice@example.com", models.ProfilePatch{
		Name:        &name,
		Avatar:      &avatar,
		SocialLinks: map[string]string{"x": "https://x.com/alice", "github": "https://github.com/alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	empty := ""
	p, err = repo.Update(ctx, "alice@example.com", models.ProfilePatch{
		Avatar:      &empty,
		SocialLinks: map[string]string{"x": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, map[string]string{"github": "https://github.com/alice"}, p.SocialLinks)

	_, ok := repo.LoadAvatar(ctx, "alice@example.com")
	assert.False(t, ok)
	loaded, ok := repo.Load(ctx, "alice@example.com")
	require.True(t, ok)
	assert.Empty(t, loaded.Avatar)
}

func TestProfilesImages(t *testing.T) {
	ctx := context.Background()
	repo, _ := newProfiles(t)

	require.NoError(t, repo.SaveCover(ctx, "alice@example.com", "data:cover"))
	cover, ok := repo.LoadCover(ctx, "alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "data:cover", cover)

	require.NoError(t, repo.RemoveCover(ctx, "alice@example.com"))
	_, ok = repo.LoadCover(ctx, "alice@example.com")
	assert.False(t, ok)

	assert.Error(t, repo.SaveAvatar(ctx, "alice@example.com", ""))
	assert.ErrorIs(t, repo.SaveAvatar(ctx, "", "data:x"), models.ErrIdentityRequired)
}

func TestProfilesClearUserData(t *testing.T) {
	ctx := context.Background()
	repo, store := newProfiles(t)

	_, err := repo.GetOrCreate(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.SaveAvatar(ctx, "alice@example.com", "data:a"))
	require.NoError(t, repo.SaveCover(ctx, "alice@example.com", "data:c"))
	require.NoError(t, storage.Write(ctx, store, "notifications-alice@example.com", models.Notifications{}))
	_, err = repo.GetOrCreate(ctx, "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, repo.ClearUserData(ctx, "alice@example.com"))

	for _, key := range []string{
		"user-profile-alice@example.com",
		"user-avatar-alice@example.com",
		"user-cover-alice@example.com",
		"notifications-alice@example.com",
	} {
		assert.False(t, store.Has(ctx, key), key)
	}
	assert.True(t, store.Has(ctx, "user-profile-bob@example.com"))

	// Clearing again is harmless.
	require.NoError(t, repo.ClearUserData(ctx, "alice@example.com"))
}
