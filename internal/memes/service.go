package memes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memeflix/backend/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMemeNotFound indicates no meme exists for the requested id.
	ErrMemeNotFound = errors.New("memes: meme not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew  = "memes.service.new"
	opList        = "memes.list"
	opSearch      = "memes.search"
	opGet         = "memes.get"
	opRandom      = "memes.random"
	opByTag       = "memes.by_tag"
	opRelatedTags = "memes.related_tags"
	opPopularTags = "memes.popular_tags"
	opAllTags     = "memes.all_tags"
	opExists      = "memes.exists"
	reasonCount   = "count_failed"
	reasonQuery   = "query_failed"
	reasonMissing = "missing_database"
)

type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service answers read-only meme and tag queries.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, reasonMissing, errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// List returns one page of all memes, newest upload first.
func (s *Service) List(ctx context.Context, page Page) (Listing, error) {
	return s.listing(ctx, opList, newListingQuery(SearchFilter{}), page)
}

// Search returns one page of memes matching the filter; pagination counts only matches.
func (s *Service) Search(ctx context.Context, filter SearchFilter, page Page) (Listing, error) {
	return s.listing(ctx, opSearch, newListingQuery(filter), page)
}

func (s *Service) listing(ctx context.Context, operation string, query listingQuery, page Page) (Listing, error) {
	if s.db == nil {
		return Listing{}, s.fail(operation, reasonMissing, errMissingDatabase)
	}
	if page.limit <= 0 {
		page = Page{number: DefaultPage, limit: DefaultLimit}
	}

	db := s.db.WithContext(ctx)
	total, err := query.count(db)
	if err != nil {
		return Listing{}, s.fail(operation, reasonCount, err)
	}

	var rows []memeRow
	if err := query.rows(db).Limit(page.limit).Offset(page.offset()).Scan(&rows).Error; err != nil {
		return Listing{}, s.fail(operation, reasonQuery, err)
	}

	return Listing{
		Memes:      viewsFromRows(rows),
		Pagination: newPagination(page, total),
	}, nil
}

// Get returns a single meme with its tags.
func (s *Service) Get(ctx context.Context, id uint) (MemeView, error) {
	if s.db == nil {
		return MemeView{}, s.fail(opGet, reasonMissing, errMissingDatabase)
	}
	query := newListingQuery(SearchFilter{}).with(whereIDIs(id))
	var rows []memeRow
	if err := query.rows(s.db.WithContext(ctx)).Limit(1).Scan(&rows).Error; err != nil {
		return MemeView{}, s.fail(opGet, reasonQuery, err, zap.Uint("meme_id", id))
	}
	if len(rows) == 0 {
		return MemeView{}, ErrMemeNotFound
	}
	return rows[0].view(), nil
}

// Random returns one meme chosen uniformly by the database.
func (s *Service) Random(ctx context.Context) (MemeView, error) {
	if s.db == nil {
		return MemeView{}, s.fail(opRandom, reasonMissing, errMissingDatabase)
	}
	query := newListingQuery(SearchFilter{})
	query.order = "RANDOM()"
	var rows []memeRow
	if err := query.rows(s.db.WithContext(ctx)).Limit(1).Scan(&rows).Error; err != nil {
		return MemeView{}, s.fail(opRandom, reasonQuery, err)
	}
	if len(rows) == 0 {
		return MemeView{}, ErrMemeNotFound
	}
	return rows[0].view(), nil
}

// ByTag returns up to limit memes carrying tag, in random order.
func (s *Service) ByTag(ctx context.Context, tag string, limit int) ([]MemeView, error) {
	if s.db == nil {
		return nil, s.fail(opByTag, reasonMissing, errMissingDatabase)
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return []MemeView{}, nil
	}

	query := newListingQuery(SearchFilter{Tag: tag})
	query.order = "RANDOM()"
	var rows []memeRow
	if err := query.rows(s.db.WithContext(ctx)).Limit(limit).Scan(&rows).Error; err != nil {
		return nil, s.fail(opByTag, reasonQuery, err, zap.String("tag", tag))
	}
	return viewsFromRows(rows), nil
}

const relatedTagsSQL = `
SELECT t.name AS name, COUNT(*) AS frequency
FROM meme_tags mt
JOIN tags t ON t.id = mt.tag_id
WHERE mt.meme_id <> ?
  AND mt.meme_id IN (
    SELECT other.meme_id FROM meme_tags other
    WHERE other.tag_id IN (SELECT own.tag_id FROM meme_tags own WHERE own.meme_id = ?)
  )
  AND mt.tag_id NOT IN (SELECT own.tag_id FROM meme_tags own WHERE own.meme_id = ?)
GROUP BY t.id, t.name
ORDER BY frequency DESC, LOWER(t.name) ASC, t.name ASC
LIMIT ?`

type relatedTagRow struct {
	Name      string
	Frequency int64
}

// RelatedTags ranks tags that co-occur with the meme's tags on other memes.
// The meme's own tags are excluded; ties break alphabetically.
func (s *Service) RelatedTags(ctx context.Context, memeID uint, limit int) ([]string, error) {
	if s.db == nil {
		return nil, s.fail(opRelatedTags, reasonMissing, errMissingDatabase)
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	exists, err := s.Exists(ctx, memeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrMemeNotFound
	}

	var rows []relatedTagRow
	if err := s.db.WithContext(ctx).Raw(relatedTagsSQL, memeID, memeID, memeID, limit).Scan(&rows).Error; err != nil {
		return nil, s.fail(opRelatedTags, reasonQuery, err, zap.Uint("meme_id", memeID))
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	return names, nil
}

type tagUsageRow struct {
	Name       string
	UsageCount int64
}

// PopularTags ranks tags by how many memes carry them.
func (s *Service) PopularTags(ctx context.Context, limit int) ([]TagUsage, error) {
	if s.db == nil {
		return nil, s.fail(opPopularTags, reasonMissing, errMissingDatabase)
	}
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	var rows []tagUsageRow
	if err := s.db.WithContext(ctx).
		Table("tags AS t").
		Select("t.name AS name, COUNT(mt.meme_id) AS usage_count").
		Joins("JOIN meme_tags mt ON mt.tag_id = t.id").
		Group("t.id, t.name").
		Order("usage_count DESC, LOWER(t.name) ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, s.fail(opPopularTags, reasonQuery, err)
	}

	usage := make([]TagUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, TagUsage{Name: row.Name, Count: row.UsageCount})
	}
	return usage, nil
}

// AllTags lists every tag name alphabetically, ignoring case.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, s.fail(opAllTags, reasonMissing, errMissingDatabase)
	}
	names := make([]string, 0)
	if err := s.db.WithContext(ctx).
		Model(&Tag{}).
		Order("LOWER(name) ASC, name ASC").
		Pluck("name", &names).Error; err != nil {
		return nil, s.fail(opAllTags, reasonQuery, err)
	}
	return names, nil
}

// Exists reports whether a meme with the id is present.
func (s *Service) Exists(ctx context.Context, id uint) (bool, error) {
	if s.db == nil {
		return false, s.fail(opExists, reasonMissing, errMissingDatabase)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Meme{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, s.fail(opExists, reasonQuery, err, zap.Uint("meme_id", id))
	}
	return count > 0, nil
}

func clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit > MaxLimit {
		return MaxLimit, nil
	}
	return limit, nil
}

func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	return serviceerr.Fail(s.loggerOrDefault(), operation, reason, err, fields...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
