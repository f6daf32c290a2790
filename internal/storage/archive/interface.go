// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"

	"github.com/newthinker/dipper/internal/core"
)

// Storage defines the interface for off-host snapshot backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend types accepted by New
const (
	TypeLocalFS = "localfs"
	TypeS3      = "s3"
	TypeMemory  = "memory"
)

// Config selects and configures a backend
type Config struct {
	Type string
	Path string
	Keep int
	S3   S3Config
}

// New builds the backend named by cfg.Type. An empty type returns nil
// storage and no error: snapshots are disabled.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case TypeLocalFS:
		if cfg.Path == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive path"))
		}
		fs, err := NewLocalFS(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case TypeS3:
		if cfg.S3.Bucket == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive s3 bucket"))
		}
		store, err := NewS3(cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case TypeMemory:
		return NewMemory(), nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}
