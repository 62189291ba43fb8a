package memes

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/memeflix/backend/internal/serviceerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type memeFixture struct {
	title       string
	description string
	filename    string
	mediaType   MediaType
	uploadedAt  int64
	upvotes     int64
	downvotes   int64
	tags        []string
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memes_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Meme{}, &Tag{}, &MemeTag{}))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{Database: db})
	require.NoError(t, err)
	return service, db
}

func insertMemes(t *testing.T, db *gorm.DB, fixtures ...memeFixture) []Meme {
	t.Helper()
	tagIDs := map[string]uint{}
	created := make([]Meme, 0, len(fixtures))
	for _, fixture := range fixtures {
		meme := Meme{
			Title:             fixture.title,
			Description:       fixture.description,
			Filename:          fixture.filename,
			Type:              fixture.mediaType,
			Upvotes:           fixture.upvotes,
			Downvotes:         fixture.downvotes,
			UploadedAtSeconds: fixture.uploadedAt,
		}
		require.NoError(t, db.Create(&meme).Error)
		for _, name := range fixture.tags {
			tagID, ok := tagIDs[name]
			if !ok {
				tag := Tag{Name: name}
				require.NoError(t, db.Create(&tag).Error)
				tagID = tag.ID
				tagIDs[name] = tagID
			}
			require.NoError(t, db.Omit(clause.Associations).Create(&MemeTag{MemeID: meme.ID, TagID: tagID}).Error)
		}
		created = append(created, meme)
	}
	return created
}

func mustPage(t *testing.T, number, limit int) Page {
	t.Helper()
	page, err := NewPage(number, limit)
	require.NoError(t, err)
	return page
}

func titles(views []MemeView) []string {
	result := make([]string, 0, len(views))
	for _, view := range views {
		result = append(result, view.Title)
	}
	return result
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	require.Error(t, err)
	var serviceErr *serviceerr.Error
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "memes.service.new.missing_database", serviceErr.Code())
}

func TestListPaginatesNewestFirst(t *testing.T) {
	service, db := newTestService(t)
	for index := 1; index <= 25; index++ {
		insertMemes(t, db, memeFixture{
			title:      fmt.Sprintf("meme %02d", index),
			filename:   fmt.Sprintf("meme-%02d.png", index),
			mediaType:  MediaTypeImage,
			uploadedAt: int64(1000 + index),
		})
	}

	listing, err := service.List(context.Background(), mustPage(t, 3, 10))
	require.NoError(t, err)

	assert.Len(t, listing.Memes, 5)
	assert.Equal(t, Pagination{Page: 3, TotalPages: 3, Total: 25, Limit: 10}, listing.Pagination)
	assert.Equal(t, "meme 05", listing.Memes[0].Title)
	assert.Equal(t, "meme 01", listing.Memes[4].Title)
}

func TestListEmptyTable(t *testing.T) {
	service, _ := newTestService(t)

	listing, err := service.List(context.Background(), mustPage(t, 1, 12))
	require.NoError(t, err)
	assert.Empty(t, listing.Memes)
	assert.NotNil(t, listing.Memes)
	assert.Equal(t, int64(0), listing.Pagination.Total)
	assert.Equal(t, int64(0), listing.Pagination.TotalPages)
}

func TestNewPageValidation(t *testing.T) {
	testCases := []struct {
		name      string
		number    int
		limit     int
		wantErr   error
		wantLimit int
	}{
		{name: "valid", number: 1, limit: 12, wantLimit: 12},
		{name: "clamped", number: 2, limit: 500, wantLimit: MaxLimit},
		{name: "zero-page", number: 0, limit: 12, wantErr: ErrInvalidPage},
		{name: "negative-limit", number: 1, limit: -1, wantErr: ErrInvalidLimit},
		{name: "zero-limit", number: 1, limit: 0, wantErr: ErrInvalidLimit},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			page, err := NewPage(testCase.number, testCase.limit)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.wantLimit, page.Limit())
			assert.Equal(t, testCase.number, page.Number())
		})
	}
}

func TestSearchMatchesTextTypeAndTag(t *testing.T) {
	service, db := newTestService(t)
	insertMemes(t, db,
		memeFixture{title: "Happy Cat", filename: "cat.png", mediaType: MediaTypeImage, uploadedAt: 10, tags: []string{"Cats", "funny"}},
		memeFixture{title: "Dog", description: "a CAT chases", filename: "dog.gif", mediaType: MediaTypeGIF, uploadedAt: 20, tags: []string{"dogs"}},
		memeFixture{title: "Bird", filename: "catalog.mp4", mediaType: MediaTypeVideo, uploadedAt: 30},
		memeFixture{title: "Fish", filename: "fish.png", mediaType: MediaTypeImage, uploadedAt: 40, tags: []string{"funny"}},
		memeFixture{title: "Über Hund", filename: "hund.png", mediaType: MediaTypeImage, uploadedAt: 50},
		memeFixture{title: "ÉCOLE", filename: "ecole.png", mediaType: MediaTypeImage, uploadedAt: 60},
	)
	ctx := context.Background()
	page := mustPage(t, 1, 12)

	testCases := []struct {
		name   string
		filter SearchFilter
		want   []string
	}{
		{name: "text-any-field", filter: SearchFilter{Query: "cat"}, want: []string{"Bird", "Dog", "Happy Cat"}},
		{name: "text-and-type", filter: SearchFilter{Query: "cat", Type: MediaTypeGIF}, want: []string{"Dog"}},
		{name: "invalid-type-ignored", filter: SearchFilter{Query: "cat", Type: "sticker"}, want: []string{"Bird", "Dog", "Happy Cat"}},
		{name: "tag-case-insensitive", filter: SearchFilter{Tag: "FUNNY"}, want: []string{"Fish", "Happy Cat"}},
		{name: "tag-and-text", filter: SearchFilter{Tag: "funny", Query: "cat"}, want: []string{"Happy Cat"}},
		{name: "oldest", filter: SearchFilter{Sort: SortOldest}, want: []string{"Happy Cat", "Dog", "Bird", "Fish", "Über Hund", "ÉCOLE"}},
		{name: "non-ascii-same-case", filter: SearchFilter{Query: "Über"}, want: []string{"Über Hund"}},
		{name: "non-ascii-ascii-letters-folded", filter: SearchFilter{Query: "ÜBER hUND"}, want: []string{"Über Hund"}},
		{name: "non-ascii-mixed-case", filter: SearchFilter{Query: "École"}, want: []string{"ÉCOLE"}},
		{name: "like-metacharacters-literal", filter: SearchFilter{Query: "%"}, want: []string{}},
		{name: "underscore-literal", filter: SearchFilter{Query: "_"}, want: []string{}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			listing, err := service.Search(ctx, testCase.filter, page)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, titles(listing.Memes))
			assert.Equal(t, int64(len(testCase.want)), listing.Pagination.Total)
		})
	}
}

func TestEmptySearchMatchesList(t *testing.T) {
	service, db := newTestService(t)
	for index := 1; index <= 15; index++ {
		insertMemes(t, db, memeFixture{
			title:      fmt.Sprintf("meme %02d", index),
			filename:   fmt.Sprintf("meme-%02d.png", index),
			mediaType:  MediaTypeImage,
			uploadedAt: int64(500 + index),
			tags:       []string{"all"},
		})
	}
	ctx := context.Background()

	for _, number := range []int{1, 2, 3} {
		page := mustPage(t, number, 6)
		listed, err := service.List(ctx, page)
		require.NoError(t, err)
		searched, err := service.Search(ctx, SearchFilter{}, page)
		require.NoError(t, err)

		assert.Equal(t, listed.Pagination, searched.Pagination, "page %d", number)
		assert.Equal(t, listed.Memes, searched.Memes, "page %d", number)
	}

	last, err := service.Search(ctx, SearchFilter{}, mustPage(t, 3, 6))
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 3, TotalPages: 3, Total: 15, Limit: 6}, last.Pagination)
	assert.Equal(t, []string{"meme 03", "meme 02", "meme 01"}, titles(last.Memes))
}

func TestSearchTagFilterKeepsFullTagSet(t *testing.T) {
	service, db := newTestService(t)
	insertMemes(t, db,
		memeFixture{title: "Happy Cat", filename: "cat.png", mediaType: MediaTypeImage, uploadedAt: 10, tags: []string{"funny", "Cats", "animals"}},
	)

	listing, err := service.Search(context.Background(), SearchFilter{Tag: "cats"}, mustPage(t, 1, 12))
	require.NoError(t, err)
	require.Len(t, listing.Memes, 1)
	assert.Equal(t, "animals,Cats,funny", listing.Memes[0].Tags)
	assert.Equal(t, []string{"animals", "Cats", "funny"}, listing.Memes[0].TagList())
}

func TestSearchSortsByScore(t *testing.T) {
	service, db := newTestService(t)
	insertMemes(t, db,
		memeFixture{title: "low", filename: "low.png", mediaType: MediaTypeImage, uploadedAt: 30, upvotes: 1, downvotes: 3},
		memeFixture{title: "high", filename: "high.png", mediaType: MediaTypeImage, uploadedAt: 10, upvotes: 5},
		memeFixture{title: "tie-new", filename: "tie-new.png", mediaType: MediaTypeImage, uploadedAt: 25, upvotes: 2},
		memeFixture{title: "tie-old", filename: "tie-old.png", mediaType: MediaTypeImage, uploadedAt: 15, upvotes: 3, downvotes: 1},
	)

	listing, err := service.Search(context.Background(), SearchFilter{Sort: SortScore}, mustPage(t, 1, 12))
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "tie-new", "tie-old", "low"}, titles(listing.Memes))
	assert.Equal(t, int64(-2), listing.Memes[3].Score)
}

func TestGetAndExists(t *testing.T) {
	service, db := newTestService(t)
	created := insertMemes(t, db,
		memeFixture{title: "Happy Cat", filename: "cat.png", mediaType: MediaTypeImage, uploadedAt: 10, upvotes: 4, downvotes: 1, tags: []string{"cats"}},
	)
	ctx := context.Background()

	view, err := service.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Happy Cat", view.Title)
	assert.Equal(t, int64(3), view.Score)
	assert.Equal(t, "cats", view.Tags)

	_, err = service.Get(ctx, created[0].ID+100)
	require.ErrorIs(t, err, ErrMemeNotFound)

	exists, err := service.Exists(ctx, created[0].ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = service.Exists(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRandom(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	_, err := service.Random(ctx)
	require.ErrorIs(t, err, ErrMemeNotFound)

	insertMemes(t, db,
		memeFixture{title: "one", filename: "one.png", mediaType: MediaTypeImage, uploadedAt: 1},
		memeFixture{title: "two", filename: "two.png", mediaType: MediaTypeImage, uploadedAt: 2},
	)
	view, err := service.Random(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"one", "two"}, view.Title)
}

func TestByTag(t *testing.T) {
	service, db := newTestService(t)
	insertMemes(t, db,
		memeFixture{title: "a", filename: "a.png", mediaType: MediaTypeImage, uploadedAt: 1, tags: []string{"Cats"}},
		memeFixture{title: "b", filename: "b.png", mediaType: MediaTypeImage, uploadedAt: 2, tags: []string{"cats", "dogs"}},
		memeFixture{title: "c", filename: "c.png", mediaType: MediaTypeImage, uploadedAt: 3, tags: []string{"dogs"}},
	)
	ctx := context.Background()

	views, err := service.ByTag(ctx, "CATS", 20)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, titles(views))

	views, err = service.ByTag(ctx, "dogs", 1)
	require.NoError(t, err)
	assert.Len(t, views, 1)

	views, err = service.ByTag(ctx, "missing", 20)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = service.ByTag(ctx, "cats", 0)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestRelatedTagsRanksCoOccurrence(t *testing.T) {
	service, db := newTestService(t)
	created := insertMemes(t, db,
		memeFixture{title: "target", filename: "target.png", mediaType: MediaTypeImage, uploadedAt: 1, tags: []string{"cats", "funny"}},
		memeFixture{title: "m2", filename: "m2.png", mediaType: MediaTypeImage, uploadedAt: 2, tags: []string{"cats", "cute", "zebra"}},
		memeFixture{title: "m3", filename: "m3.png", mediaType: MediaTypeImage, uploadedAt: 3, tags: []string{"funny", "cute"}},
		memeFixture{title: "m4", filename: "m4.png", mediaType: MediaTypeImage, uploadedAt: 4, tags: []string{"funny", "apple"}},
		memeFixture{title: "m5", filename: "m5.png", mediaType: MediaTypeImage, uploadedAt: 5, tags: []string{"unrelated"}},
	)
	ctx := context.Background()

	related, err := service.RelatedTags(ctx, created[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"cute", "apple", "zebra"}, related)

	related, err = service.RelatedTags(ctx, created[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cute"}, related)

	related, err = service.RelatedTags(ctx, created[4].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = service.RelatedTags(ctx, 9999, 10)
	require.ErrorIs(t, err, ErrMemeNotFound)
}

func TestPopularAndAllTags(t *testing.T) {
	service, db := newTestService(t)
	insertMemes(t, db,
		memeFixture{title: "a", filename: "a.png", mediaType: MediaTypeImage, uploadedAt: 1, tags: []string{"cats", "Birds"}},
		memeFixture{title: "b", filename: "b.png", mediaType: MediaTypeImage, uploadedAt: 2, tags: []string{"cats", "dogs"}},
		memeFixture{title: "c", filename: "c.png", mediaType: MediaTypeImage, uploadedAt: 3, tags: []string{"cats", "dogs"}},
	)
	require.NoError(t, db.Create(&Tag{Name: "alpaca"}).Error)
	ctx := context.Background()

	popular, err := service.PopularTags(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []TagUsage{{Name: "cats", Count: 3}, {Name: "dogs", Count: 2}, {Name: "Birds", Count: 1}}, popular)

	all, err := service.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpaca", "Birds", "cats", "dogs"}, all)
}

func TestQueryFailureReturnsServiceError(t *testing.T) {
	service, db := newTestService(t)
	require.NoError(t, db.Migrator().DropTable(&MemeTag{}))

	_, err := service.List(context.Background(), mustPage(t, 1, 12))
	var serviceErr *serviceerr.Error
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "memes.list.query_failed", serviceErr.Code())
}
