package favorites

import (
	"context"
	"errors"
	"time"

	"github.com/memeflix/backend/internal/database/dberr"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/serviceerr"
	"github.com/memeflix/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrFavoriteNotFound indicates the meme is not in the user's favorites.
	ErrFavoriteNotFound = errors.New("favorites: favorite not found")

	errMissingDatabase = errors.New("favorites: database connection required")
	errMissingMemes    = errors.New("favorites: meme service required")
)

const (
	opAdd           = "favorites.add"
	opRemove        = "favorites.remove"
	opIDs           = "favorites.ids"
	reasonInsert    = "insert_failed"
	reasonDelete    = "delete_failed"
	reasonQuery     = "query_failed"
	reasonReference = "reference_check_failed"
)

// Favorite marks a meme as saved by a user.
type Favorite struct {
	UserID         uint       `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	MemeID         uint       `gorm:"column:meme_id;primaryKey;autoIncrement:false;index"`
	AddedAtSeconds int64      `gorm:"column:added_at_s;not null"`
	User           users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Meme           memes.Meme `gorm:"foreignKey:MemeID;constraint:OnDelete:CASCADE"`
}

func (Favorite) TableName() string {
	return "favorites"
}

// MemeLookup resolves meme projections for favorite rows.
type MemeLookup interface {
	Exists(ctx context.Context, id uint) (bool, error)
	Get(ctx context.Context, id uint) (memes.MemeView, error)
}

type ServiceConfig struct {
	Database *gorm.DB
	Memes    MemeLookup
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages per-user favorite sets.
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
		return nil, errMissingMemes
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

// Add saves the meme for the user. created is false when it was already a favorite.
func (s *Service) Add(ctx context.Context, userID, memeID uint) (bool, error) {
	exists, err := s.memes.Exists(ctx, memeID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, memes.ErrMemeNotFound
	}

	favorite := Favorite{UserID: userID, MemeID: memeID, AddedAtSeconds: s.now().UTC().Unix()}
	result := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&favorite)
	if result.Error != nil {
		if dberr.IsForeignKeyViolation(result.Error) {
			return false, s.missingReference(ctx, userID, memeID)
		}
		return false, serviceerr.Fail(s.logger, opAdd, reasonInsert, result.Error, zap.Uint("user_id", userID), zap.Uint("meme_id", memeID))
	}
	return result.RowsAffected > 0, nil
}

// Remove deletes the favorite, or reports ErrFavoriteNotFound when it was absent.
func (s *Service) Remove(ctx context.Context, userID, memeID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND meme_id = ?", userID, memeID).
		Delete(&Favorite{})
	if result.Error != nil {
		return serviceerr.Fail(s.logger, opRemove, reasonDelete, result.Error, zap.Uint("user_id", userID), zap.Uint("meme_id", memeID))
	}
	if result.RowsAffected == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

// IDs lists the favorited meme ids, most recently added first.
func (s *Service) IDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := make([]uint, 0)
	if err := s.db.WithContext(ctx).
		Model(&Favorite{}).
		Where("user_id = ?", userID).
		Order("added_at_s DESC, meme_id DESC").
		Pluck("meme_id", &ids).Error; err != nil {
		return nil, serviceerr.Fail(s.logger, opIDs, reasonQuery, err, zap.Uint("user_id", userID))
	}
	return ids, nil
}

// List returns the favorited memes, most recently added first.
func (s *Service) List(ctx context.Context, userID uint) ([]memes.MemeView, error) {
	ids, err := s.IDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]memes.MemeView, 0, len(ids))
	for _, id := range ids {
		view, err := s.memes.Get(ctx, id)
		if errors.Is(err, memes.ErrMemeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// missingReference names the side of a failed foreign key: the user when the
// account is gone, otherwise the meme.
func (s *Service) missingReference(ctx context.Context, userID, memeID uint) error {
	if err := users.RequireUser(s.db.WithContext(ctx), userID); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return err
		}
		return serviceerr.Fail(s.logger, opAdd, reasonReference, err, zap.Uint("user_id", userID), zap.Uint("meme_id", memeID))
	}
	return memes.ErrMemeNotFound
}
