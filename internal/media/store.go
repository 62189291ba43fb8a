package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memeflix/backend/internal/config"
)

var (
	// ErrNotFound indicates no media object exists under the requested name.
	ErrNotFound = os.ErrNotExist
	// ErrInvalidFilename indicates an empty name or one that could escape the media root.
	ErrInvalidFilename = errors.New("media: invalid filename")
)

// Info describes a stored media object.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Object is an open, seekable media object.
type Object interface {
	io.ReadSeekCloser
	Info() Info
}

// Store opens media objects by filename.
type Store interface {
	Open(ctx context.Context, name string) (Object, error)
}

// ValidateFilename rejects names that are empty or contain "..", "/" or "\".
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidFilename
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// NewStore builds the store selected by the media configuration.
func NewStore(cfg config.MediaConfig) (Store, error) {
	switch cfg.Backend {
	case config.MediaBackendLocal, "":
		return NewLocalStore(cfg.Root), nil
	case config.MediaBackendMinio:
		return NewMinioStore(cfg.Minio)
	default:
		return nil, fmt.Errorf("media: unsupported backend %q", cfg.Backend)
	}
}

// LocalStore serves media from a directory on disk.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Open(_ context.Context, name string) (Object, error) {
	if err := ValidateFilename(name); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = file.Close()
		return nil, ErrNotFound
	}
	return &localObject{File: file, info: Info{Name: name, Size: stat.Size(), ModTime: stat.ModTime()}}, nil
}

type localObject struct {
	*os.File
	info Info
}

func (o *localObject) Info() Info {
	return o.info
}
