package history

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

func newTestService(t *testing.T) (*Service, *gorm.DB, *time.Time) {
	t.Helper()
	dsn := fmt.Sprintf("file:history_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&users.User{}, &memes.Meme{}, &memes.Tag{}, &memes.MemeTag{}, &ViewEvent{}))

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
	return service, db, &current
}

func seed(t *testing.T, db *gorm.DB) (users.User, []memes.Meme) {
	t.Helper()
	user := users.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", CreatedAtSeconds: 1}
	require.NoError(t, db.Create(&user).Error)
	created := make([]memes.Meme, 0, 3)
	for index := 1; index <= 3; index++ {
		meme := memes.Meme{Title: fmt.Sprintf("meme %d", index), Filename: fmt.Sprintf("meme-%d.gif", index), Type: memes.MediaTypeGIF, UploadedAtSeconds: int64(index)}
		require.NoError(t, db.Create(&meme).Error)
		created = append(created, meme)
	}
	return user, created
}

func TestListCollapsesRepeatedViews(t *testing.T) {
	service, db, clock := newTestService(t)
	user, created := seed(t, db)
	ctx := context.Background()

	require.NoError(t, service.Record(ctx, user.ID, created[0].ID))
	*clock = clock.Add(time.Minute)
	require.NoError(t, service.Record(ctx, user.ID, created[1].ID))
	*clock = clock.Add(time.Minute)
	require.NoError(t, service.Record(ctx, user.ID, created[0].ID))

	entries, err := service.List(ctx, user.ID, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "meme 1", entries[0].Meme.Title)
	assert.Equal(t, int64(1700000120), entries[0].LastViewedAtSeconds)
	assert.Equal(t, "meme 2", entries[1].Meme.Title)

	var events int64
	require.NoError(t, db.Model(&ViewEvent{}).Count(&events).Error)
	assert.Equal(t, int64(3), events)
}

func TestListSameSecondPrefersLatestEvent(t *testing.T) {
	service, db, _ := newTestService(t)
	user, created := seed(t, db)
	ctx := context.Background()

	require.NoError(t, service.Record(ctx, user.ID, created[0].ID))
	require.NoError(t, service.Record(ctx, user.ID, created[2].ID))

	entries, err := service.List(ctx, user.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meme 3", entries[0].Meme.Title)
}

func TestRecordUnknownMeme(t *testing.T) {
	service, db, _ := newTestService(t)
	user, _ := seed(t, db)

	require.ErrorIs(t, service.Record(context.Background(), user.ID, 9999), memes.ErrMemeNotFound)
}

func TestListRejectsNonPositiveLimit(t *testing.T) {
	service, db, _ := newTestService(t)
	user, _ := seed(t, db)

	_, err := service.List(context.Background(), user.ID, 0)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestRecordForDeletedUserReportsMissingUser(t *testing.T) {
	service, db, _ := newTestService(t)
	user, created := seed(t, db)
	require.NoError(t, db.Delete(&users.User{}, user.ID).Error)

	err := service.Record(context.Background(), user.ID, created[0].ID)
	require.ErrorIs(t, err, users.ErrUserNotFound)
	assert.NotErrorIs(t, err, memes.ErrMemeNotFound)
}

func TestDeletingUserCascadesViewHistory(t *testing.T) {
	service, db, _ := newTestService(t)
	user, created := seed(t, db)
	ctx := context.Background()
	require.NoError(t, service.Record(ctx, user.ID, created[0].ID))
	require.NoError(t, service.Record(ctx, user.ID, created[1].ID))

	require.NoError(t, db.Delete(&users.User{}, user.ID).Error)

	var count int64
	require.NoError(t, db.Model(&ViewEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestListQueryFailureReturnsCodedError(t *testing.T) {
	service, db, _ := newTestService(t)
	user, _ := seed(t, db)
	require.NoError(t, db.Migrator().DropTable(&ViewEvent{}))

	_, err := service.List(context.Background(), user.ID, 10)
	code, ok := serviceerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, "history.list.query_failed", code)
}
