package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"grts/pkg/config"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type GCS struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCS prefers application default credentials and falls back to an
// explicit service account JSON when one is configured.
func NewGCS(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCS{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}

	g.logger.Debug("Object stored", zap.String("bucket", g.bucket), zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

func (g *GCS) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	url, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return url, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
