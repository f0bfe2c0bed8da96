// Package blobstore keeps receipt images and hands out time-limited URLs for them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"grts/pkg/config"

	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidKey   = errors.New("invalid object key")
	ErrBadSignature = errors.New("invalid or expired signature")
)

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver. The returned close func
// releases client resources and is never nil.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, func() error, error) {
	switch cfg.Driver {
	case "gcs":
		s, err := NewGCS(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "local", "":
		s, err := NewLocal(cfg.LocalDir, cfg.PublicURL, []byte(cfg.SigningKey))
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// CleanKey rejects absolute paths and parent references.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || strings.HasPrefix(cleaned, "..") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// ThumbnailKey places the thumbnail next to the original: a/b.jpg -> a/thumbnails/b.jpg.
func ThumbnailKey(key string) string {
	dir, file := path.Split(key)
	return dir + "thumbnails/" + file
}
