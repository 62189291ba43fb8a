package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memeflix/backend/internal/memes"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Report summarizes what a load changed.
type Report struct {
	Inserted    int
	Skipped     int
	TagsCreated int
}

type LoaderConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Loader inserts catalog memes that are not yet present.
type Loader struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Database == nil {
		return nil, errors.New("seed: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{db: cfg.Database, now: clock, logger: logger}, nil
}

// LoadFile parses the catalog at path and applies it.
func (l *Loader) LoadFile(ctx context.Context, path string) (Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("seed: read catalog: %w", err)
	}
	catalog, err := ParseCatalog(content)
	if err != nil {
		return Report{}, err
	}
	return l.Apply(ctx, catalog)
}

// Apply inserts every entry whose filename is absent, all in one transaction.
// Existing memes are left untouched.
func (l *Loader) Apply(ctx context.Context, catalog Catalog) (Report, error) {
	var report Report
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tagIDs := map[string]uint{}
		for _, entry := range catalog.Memes {
			var existing int64
			if err := tx.Model(&memes.Meme{}).Where("filename = ?", entry.Filename).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				report.Skipped++
				continue
			}

			uploadedAt := entry.UploadedAt
			if uploadedAt.IsZero() {
				uploadedAt = l.now()
			}
			meme := memes.Meme{
				Title:             entry.Title,
				Description:       entry.Description,
				Filename:          entry.Filename,
				Type:              memes.MediaType(entry.Type),
				UploadedAtSeconds: uploadedAt.UTC().Unix(),
			}
			if err := tx.Create(&meme).Error; err != nil {
				return err
			}

			for _, name := range entry.Tags {
				tagID, created, err := resolveTag(tx, tagIDs, name)
				if err != nil {
					return err
				}
				if created {
					report.TagsCreated++
				}
				if err := tx.Omit(clause.Associations).
					Clauses(clause.OnConflict{DoNothing: true}).
					Create(&memes.MemeTag{MemeID: meme.ID, TagID: tagID}).Error; err != nil {
					return err
				}
			}
			report.Inserted++
		}
		return nil
	})
	if err != nil {
		l.logger.Error("seed load failed", zap.Error(err))
		return Report{}, fmt.Errorf("seed: apply: %w", err)
	}

	l.logger.Info("seed catalog applied",
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("tags_created", report.TagsCreated))
	return report, nil
}

// resolveTag finds a tag by case-insensitive name, creating it with the given spelling when absent.
// The lookup uses the same NOCASE collation as the unique tag index.
func resolveTag(tx *gorm.DB, cache map[string]uint, name string) (uint, bool, error) {
	key := strings.ToLower(name)
	if id, ok := cache[key]; ok {
		return id, false, nil
	}

	var tag memes.Tag
	err := tx.Where("name = ? COLLATE NOCASE", name).Take(&tag).Error
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		tag = memes.Tag{Name: name}
		if err := tx.Create(&tag).Error; err != nil {
			return 0, false, err
		}
		created = true
	case err != nil:
		return 0, false, err
	}
	cache[key] = tag.ID
	return tag.ID, created, nil
}
