package memes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MediaType enumerates the kinds of media a meme can hold.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeGIF   MediaType = "gif"
	MediaTypeVideo MediaType = "video"
)

// ParseMediaType validates raw input against the supported media types.
func ParseMediaType(raw string) (MediaType, bool) {
	switch MediaType(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaTypeImage:
		return MediaTypeImage, true
	case MediaTypeGIF:
		return MediaTypeGIF, true
	case MediaTypeVideo:
		return MediaTypeVideo, true
	default:
		return "", false
	}
}

// Meme is a seed-loaded media item with cached vote counters.
type Meme struct {
	ID                uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Title             string    `gorm:"column:title;size:255;not null"`
	Description       string    `gorm:"column:description;type:text;not null;default:''"`
	Filename          string    `gorm:"column:filename;size:255;not null;uniqueIndex"`
	Type              MediaType `gorm:"column:type;size:16;not null;index"`
	Upvotes           int64     `gorm:"column:upvotes;not null;default:0"`
	Downvotes         int64     `gorm:"column:downvotes;not null;default:0"`
	UploadedAtSeconds int64     `gorm:"column:uploaded_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Meme) TableName() string {
	return "memes"
}

// Tag labels memes; names match case-insensitively but keep their original casing.
type Tag struct {
	ID   uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// MemeTag is the join row between memes and tags.
type MemeTag struct {
	MemeID uint `gorm:"column:meme_id;primaryKey;autoIncrement:false"`
	TagID  uint `gorm:"column:tag_id;primaryKey;autoIncrement:false;index"`
	Meme   Meme `gorm:"foreignKey:MemeID;constraint:OnDelete:CASCADE"`
	Tag    Tag  `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (MemeTag) TableName() string {
	return "meme_tags"
}

// MemeView is the API projection of a meme with its derived score and joined tags.
type MemeView struct {
	ID                uint      `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Filename          string    `json:"filename"`
	Type              MediaType `json:"type"`
	Upvotes           int64     `json:"upvotes"`
	Downvotes         int64     `json:"downvotes"`
	Score             int64     `json:"score"`
	UploadedAtSeconds int64     `json:"uploaded_at_s"`
	Tags              string    `json:"tags"`
}

// TagList splits the comma-joined tags into names.
func (v MemeView) TagList() []string {
	if v.Tags == "" {
		return nil
	}
	return strings.Split(v.Tags, ",")
}

// memeRow is the scan target for the denormalized listing queries.
type memeRow struct {
	ID                uint
	Title             string
	Description       string
	Filename          string
	Type              MediaType
	Upvotes           int64
	Downvotes         int64
	UploadedAtSeconds int64 `gorm:"column:uploaded_at_s"`
	TagNames          *string
}

func (r memeRow) view() MemeView {
	tags := ""
	if r.TagNames != nil && *r.TagNames != "" {
		names := strings.Split(*r.TagNames, ",")
		sort.Slice(names, func(a, b int) bool {
			return strings.ToLower(names[a]) < strings.ToLower(names[b])
		})
		tags = strings.Join(names, ",")
	}
	return MemeView{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		Filename:          r.Filename,
		Type:              r.Type,
		Upvotes:           r.Upvotes,
		Downvotes:         r.Downvotes,
		Score:             r.Upvotes - r.Downvotes,
		UploadedAtSeconds: r.UploadedAtSeconds,
		Tags:              tags,
	}
}

func viewsFromRows(rows []memeRow) []MemeView {
	views := make([]MemeView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views
}

// TagUsage counts how many memes carry a tag.
type TagUsage struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SortOrder selects the ordering of search results.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortScore  SortOrder = "score"
)

// ParseSortOrder maps a raw sort key; unknown or empty keys fall back to newest.
func ParseSortOrder(raw string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortOldest:
		return SortOldest
	case SortScore:
		return SortScore
	default:
		return SortNewest
	}
}

// SearchFilter narrows a meme listing. Zero values mean "no filter".
type SearchFilter struct {
	Query string
	Type  MediaType
	Sort  SortOrder
	Tag   string
}

const (
	DefaultPage  = 1
	DefaultLimit = 12
	MaxLimit     = 100
)

var (
	// ErrInvalidPage indicates a non-positive page number.
	ErrInvalidPage = errors.New("memes: page must be a positive integer")
	// ErrInvalidLimit indicates a non-positive limit.
	ErrInvalidLimit = errors.New("memes: limit must be a positive integer")
)

// Page is a validated pagination window.
type Page struct {
	number int
	limit  int
}

// NewPage validates page and limit; limits above MaxLimit are clamped.
func NewPage(number, limit int) (Page, error) {
	if number <= 0 {
		return Page{}, fmt.Errorf("%w: %d", ErrInvalidPage, number)
	}
	if limit <= 0 {
		return Page{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{number: number, limit: limit}, nil
}

// Number returns the 1-based page number.
func (p Page) Number() int {
	return p.number
}

// Limit returns the page size.
func (p Page) Limit() int {
	return p.limit
}

func (p Page) offset() int {
	return (p.number - 1) * p.limit
}

// Pagination describes where a page sits within the full result set.
type Pagination struct {
	Page       int   `json:"page"`
	TotalPages int64 `json:"total_pages"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
}

func newPagination(page Page, total int64) Pagination {
	limit := int64(page.limit)
	return Pagination{
		Page:       page.number,
		TotalPages: (total + limit - 1) / limit,
		Total:      total,
		Limit:      page.limit,
	}
}

// Listing is one page of memes plus its pagination metadata.
type Listing struct {
	Memes      []MemeView `json:"memes"`
	Pagination Pagination `json:"pagination"`
}
