package seed

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/memeflix/backend/internal/media"
	"github.com/memeflix/backend/internal/memes"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

const maxTagLength = 64

// ErrInvalidCatalog wraps every validation failure found in a catalog.
var ErrInvalidCatalog = errors.New("seed: invalid catalog")

// Catalog is the YAML document listing the memes to load.
type Catalog struct {
	Memes []Entry `yaml:"memes"`
}

// Entry describes one meme in the catalog.
type Entry struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Filename    string    `yaml:"filename"`
	Type        string    `yaml:"type"`
	UploadedAt  time.Time `yaml:"uploaded_at"`
	Tags        []string  `yaml:"tags"`
}

// ParseCatalog decodes and validates a YAML catalog. Title and description are
// reduced to plain text.
func ParseCatalog(content []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	policy := bluemonday.StrictPolicy()
	seen := make(map[string]struct{}, len(catalog.Memes))
	for index := range catalog.Memes {
		entry := &catalog.Memes[index]
		entry.Title = plainText(policy, entry.Title)
		entry.Description = plainText(policy, entry.Description)
		entry.Filename = strings.TrimSpace(entry.Filename)

		if entry.Title == "" {
			return Catalog{}, fmt.Errorf("%w: entry %d: title is required", ErrInvalidCatalog, index)
		}
		if err := media.ValidateFilename(entry.Filename); err != nil {
			return Catalog{}, fmt.Errorf("%w: entry %d: %v", ErrInvalidCatalog, index, err)
		}
		if _, duplicate := seen[entry.Filename]; duplicate {
			return Catalog{}, fmt.Errorf("%w: entry %d: duplicate filename %q", ErrInvalidCatalog, index, entry.Filename)
		}
		seen[entry.Filename] = struct{}{}
		mediaType, ok := memes.ParseMediaType(entry.Type)
		if !ok {
			return Catalog{}, fmt.Errorf("%w: entry %d: unsupported type %q", ErrInvalidCatalog, index, entry.Type)
		}
		entry.Type = string(mediaType)

		tags, err := normalizeTags(entry.Tags)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: entry %d: %v", ErrInvalidCatalog, index, err)
		}
		entry.Tags = tags
	}
	return catalog, nil
}

func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

// normalizeTags trims names and drops case-insensitive duplicates, keeping the first spelling.
func normalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.Contains(name, ",") {
			return nil, fmt.Errorf("tag %q must not contain commas", name)
		}
		if len(name) > maxTagLength {
			return nil, fmt.Errorf("tag %q exceeds %d characters", name, maxTagLength)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, name)
	}
	return tags, nil
}
