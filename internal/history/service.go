package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memeflix/backend/internal/database/dberr"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/serviceerr"
	"github.com/memeflix/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	opRecord        = "history.record"
	opList          = "history.list"
	reasonInsert    = "insert_failed"
	reasonQuery     = "query_failed"
	reasonReference = "reference_check_failed"
)

var (
	// ErrInvalidLimit indicates a non-positive history limit.
	ErrInvalidLimit = errors.New("history: limit must be a positive integer")

	errMissingDatabase = errors.New("history: database connection required")
)

// ViewEvent records one opening of a meme by a user. Events are append-only.
type ViewEvent struct {
	ID              uint       `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          uint       `gorm:"column:user_id;not null"`
	MemeID          uint       `gorm:"column:meme_id;not null;index"`
	ViewedAtSeconds int64      `gorm:"column:viewed_at_s;not null"`
	User            users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Meme            memes.Meme `gorm:"foreignKey:MemeID;constraint:OnDelete:CASCADE"`
}

func (ViewEvent) TableName() string {
	return "view_history"
}

// Entry is one meme in a user's history with the time it was last viewed.
type Entry struct {
	Meme                memes.MemeView `json:"meme"`
	LastViewedAtSeconds int64          `json:"last_viewed_at_s"`
}

type ServiceConfig struct {
	Database *gorm.DB
	Memes    MemeLookup
	Clock    func() time.Time
	Logger   *zap.Logger
}

// MemeLookup resolves meme projections for history entries.
type MemeLookup interface {
	Get(ctx context.Context, id uint) (memes.MemeView, error)
}

type Service struct {
	db     *gorm.DB
	memes  MemeLookup
	now    func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Memes == nil {
		return nil, errors.New("history: meme service required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, memes: cfg.Memes, now: clock, logger: logger}, nil
}

// Record appends a view event. An unknown meme yields memes.ErrMemeNotFound and
// a deleted account yields users.ErrUserNotFound.
func (s *Service) Record(ctx context.Context, userID, memeID uint) error {
	event := ViewEvent{UserID: userID, MemeID: memeID, ViewedAtSeconds: s.now().UTC().Unix()}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&event).Error; err != nil {
		if !dberr.IsForeignKeyViolation(err) {
			return serviceerr.Fail(s.logger, opRecord, reasonInsert, err, zap.Uint("user_id", userID), zap.Uint("meme_id", memeID))
		}
		if err := users.RequireUser(s.db.WithContext(ctx), userID); err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				return err
			}
			return serviceerr.Fail(s.logger, opRecord, reasonReference, err, zap.Uint("user_id", userID))
		}
		return memes.ErrMemeNotFound
	}
	return nil
}

type lastView struct {
	MemeID     uint
	LastViewed int64
}

// List returns one entry per viewed meme, most recently viewed first.
func (s *Service) List(ctx context.Context, userID uint, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var rows []lastView
	if err := s.db.WithContext(ctx).
		Model(&ViewEvent{}).
		Select("meme_id, MAX(viewed_at_s) AS last_viewed").
		Where("user_id = ?", userID).
		Group("meme_id").
		Order("last_viewed DESC, MAX(id) DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, serviceerr.Fail(s.logger, opList, reasonQuery, err, zap.Uint("user_id", userID))
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		view, err := s.memes.Get(ctx, row.MemeID)
		if errors.Is(err, memes.ErrMemeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Meme: view, LastViewedAtSeconds: row.LastViewed})
	}
	return entries, nil
}
