package votes

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
	// ErrInvalidDirection indicates a direction other than up or down.
	ErrInvalidDirection = errors.New("votes: invalid direction")

	errMissingDatabase = errors.New("votes: database connection required")
)

const (
	opCast            = "votes.cast"
	opUserVotes       = "votes.user_votes"
	opReconcile       = "votes.reconcile"
	reasonTransaction = "transaction_failed"
	reasonQuery       = "query_failed"
)

const reconcileSQL = `
UPDATE memes SET
  upvotes = (SELECT COUNT(*) FROM votes v WHERE v.meme_id = memes.id AND v.type = 'up'),
  downvotes = (SELECT COUNT(*) FROM votes v WHERE v.meme_id = memes.id AND v.type = 'down')
WHERE upvotes <> (SELECT COUNT(*) FROM votes v WHERE v.meme_id = memes.id AND v.type = 'up')
   OR downvotes <> (SELECT COUNT(*) FROM votes v WHERE v.meme_id = memes.id AND v.type = 'down')`

// LedgerConfig describes the dependencies of the vote ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger keeps one vote per (user, meme) and the meme counters in step with it.
type Ledger struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: cfg.Database, now: clock, logger: logger}, nil
}

type counters struct {
	Upvotes   int64
	Downvotes int64
}

// Cast applies a vote request to the ledger. Reading the existing vote, mutating
// the ledger and adjusting the counters happen in one transaction.
func (l *Ledger) Cast(ctx context.Context, userID, memeID uint, direction Direction) (Outcome, error) {
	if direction != DirectionUp && direction != DirectionDown {
		return Outcome{}, ErrInvalidDirection
	}

	outcome := Outcome{Direction: direction}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Vote
		lookupErr := tx.Where("user_id = ? AND meme_id = ?", userID, memeID).Take(&existing).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			vote := Vote{UserID: userID, MemeID: memeID, Type: direction, VotedAtSeconds: l.now().UTC().Unix()}
			if err := tx.Omit(clause.Associations).Create(&vote).Error; err != nil {
				if dberr.IsForeignKeyViolation(err) {
					if err := users.RequireUser(tx, userID); err != nil {
						return err
					}
					return memes.ErrMemeNotFound
				}
				return err
			}
			if err := adjustCounters(tx, memeID, map[string]any{
				direction.counterColumn(): gorm.Expr(direction.counterColumn() + " + 1"),
			}); err != nil {
				return err
			}
			outcome.Result = ResultRecorded
		case lookupErr != nil:
			return lookupErr
		case existing.Type == direction:
			if err := tx.Where("user_id = ? AND meme_id = ?", userID, memeID).Delete(&Vote{}).Error; err != nil {
				return err
			}
			if err := adjustCounters(tx, memeID, map[string]any{
				direction.counterColumn(): gorm.Expr(direction.counterColumn() + " - 1"),
			}); err != nil {
				return err
			}
			outcome.Result = ResultRemoved
		default:
			previous := direction.opposite()
			if err := tx.Model(&Vote{}).
				Where("user_id = ? AND meme_id = ?", userID, memeID).
				UpdateColumns(map[string]any{"type": direction, "voted_at_s": l.now().UTC().Unix()}).Error; err != nil {
				return err
			}
			if err := adjustCounters(tx, memeID, map[string]any{
				previous.counterColumn():  gorm.Expr(previous.counterColumn() + " - 1"),
				direction.counterColumn(): gorm.Expr(direction.counterColumn() + " + 1"),
			}); err != nil {
				return err
			}
			outcome.Result = ResultChanged
		}

		var current counters
		if err := tx.Model(&memes.Meme{}).Select("upvotes, downvotes").Where("id = ?", memeID).Take(&current).Error; err != nil {
			return err
		}
		outcome.Upvotes = current.Upvotes
		outcome.Downvotes = current.Downvotes
		return nil
	})
	if err != nil {
		if errors.Is(err, memes.ErrMemeNotFound) || errors.Is(err, users.ErrUserNotFound) {
			return Outcome{}, err
		}
		return Outcome{}, serviceerr.Fail(l.logger, opCast, reasonTransaction, err,
			zap.Uint("user_id", userID),
			zap.Uint("meme_id", memeID),
			zap.String("direction", string(direction)))
	}

	l.logger.Debug("vote applied",
		zap.Uint("user_id", userID),
		zap.Uint("meme_id", memeID),
		zap.String("result", string(outcome.Result)))
	return outcome, nil
}

func adjustCounters(tx *gorm.DB, memeID uint, updates map[string]any) error {
	result := tx.Model(&memes.Meme{}).Where("id = ?", memeID).UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return memes.ErrMemeNotFound
	}
	return nil
}

// UserVotes returns the caller's current vote per meme id.
func (l *Ledger) UserVotes(ctx context.Context, userID uint) (map[uint]Direction, error) {
	var rows []Vote
	if err := l.db.WithContext(ctx).
		Select("meme_id", "type").
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, serviceerr.Fail(l.logger, opUserVotes, reasonQuery, err, zap.Uint("user_id", userID))
	}
	byMeme := make(map[uint]Direction, len(rows))
	for _, row := range rows {
		byMeme[row.MemeID] = row.Type
	}
	return byMeme, nil
}

// Reconcile recomputes every meme's counters from the ledger and returns how many memes were corrected.
func (l *Ledger) Reconcile(ctx context.Context) (int64, error) {
	var corrected int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(reconcileSQL)
		if result.Error != nil {
			return result.Error
		}
		corrected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, serviceerr.Fail(l.logger, opReconcile, reasonTransaction, err)
	}
	l.logger.Info("vote counters reconciled", zap.Int64("corrected", corrected))
	return corrected, nil
}
