// Package archive mirrors analysis results to cold storage.
package archive

import (
	"context"
	"fmt"
)

// Storage is a flat key/value blob store addressed by slash-separated paths.
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under prefix, relative to the storage root.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a cold storage backend.
type Config struct {
	Type string // none, localfs or s3
	Path string
	S3   S3Config
}

// New creates the configured backend. Type "none" (or empty) returns nil, nil.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "localfs":
		fs, err := NewLocalFS(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s3, err := NewS3(cfg.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
