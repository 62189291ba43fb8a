package favorites

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/serviceerr"
	"github.com/memeflix/backend/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	db      *gorm.DB
	user    users.User
	memes   []memes.Meme
	clock   *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:favorites_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&users.User{}, &memes.Meme{}, &memes.Tag{}, &memes.MemeTag{}, &Favorite{}))

	user := users.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", CreatedAtSeconds: 1}
	require.NoError(t, db.Create(&user).Error)
	created := make([]memes.Meme, 0, 3)
	for index := 1; index <= 3; index++ {
		meme := memes.Meme{Title: fmt.Sprintf("meme %d", index), Filename: fmt.Sprintf("meme-%d.png", index), Type: memes.MediaTypeImage, UploadedAtSeconds: int64(index)}
		require.NoError(t, db.Create(&meme).Error)
		created = append(created, meme)
	}

	memeService, err := memes.NewService(memes.ServiceConfig{Database: db})
	require.NoError(t, err)
	current := time.Unix(1700000000, 0)
	service, err := NewService(ServiceConfig{
		Database: db,
		Memes:    memeService,
		Clock: func() time.Time {
			return current
		},
	})
	require.NoError(t, err)
	return fixture{service: service, db: db, user: user, memes: created, clock: &current}
}

func TestAddIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Add(ctx, f.user.ID, f.memes[0].ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.service.Add(ctx, f.user.ID, f.memes[0].ID)
	require.NoError(t, err)
	assert.False(t, created)

	ids, err := f.service.IDs(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.memes[0].ID}, ids)
}

func TestAddUnknownMeme(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Add(context.Background(), f.user.ID, 9999)
	require.ErrorIs(t, err, memes.ErrMemeNotFound)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.service.Remove(ctx, f.user.ID, f.memes[1].ID), ErrFavoriteNotFound)

	_, err := f.service.Add(ctx, f.user.ID, f.memes[1].ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Remove(ctx, f.user.ID, f.memes[1].ID))

	ids, err := f.service.IDs(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListNewestFavoriteFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Add(ctx, f.user.ID, f.memes[2].ID)
	require.NoError(t, err)
	*f.clock = f.clock.Add(time.Minute)
	_, err = f.service.Add(ctx, f.user.ID, f.memes[0].ID)
	require.NoError(t, err)

	views, err := f.service.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "meme 1", views[0].Title)
	assert.Equal(t, "meme 3", views[1].Title)
}

func TestDeletingUserCascadesFavorites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Add(ctx, f.user.ID, f.memes[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&users.User{}, f.user.ID).Error)

	var count int64
	require.NoError(t, f.db.Model(&Favorite{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAddForDeletedUserReportsMissingUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Delete(&users.User{}, f.user.ID).Error)

	created, err := f.service.Add(context.Background(), f.user.ID, f.memes[0].ID)
	assert.False(t, created)
	require.ErrorIs(t, err, users.ErrUserNotFound)
	assert.NotErrorIs(t, err, memes.ErrMemeNotFound)
}

func TestQueryFailureReturnsCodedError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&Favorite{}))

	_, err := f.service.IDs(context.Background(), f.user.ID)
	code, ok := serviceerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, "favorites.ids.query_failed", code)
}
