package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Local stores objects on disk and signs URLs with HMAC-SHA256 so the API
// can serve them the way a bucket would.
type Local struct {
	dir     string
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocal generates a random signing key when none is given; URLs then stop
// verifying after a restart.
func NewLocal(dir, baseURL string, key []byte) (*Local, error) {
	if dir == "" {
		return nil, errors.New("local storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &Local{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), key: key, now: time.Now}, nil
}

// Path resolves key to a file under the storage dir.
func (l *Local) Path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.FromSlash(key)), nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (l *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	expires := strconv.FormatInt(l.now().Add(ttl).Unix(), 10)

	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", l.sign(key, expires))
	return l.baseURL + "/" + key + "?" + q.Encode(), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Verify checks a signature produced by SignedURL and returns the file path.
func (l *Local) Verify(key, expires, sig string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || l.now().Unix() > exp {
		return "", ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(l.sign(key, expires))) {
		return "", ErrBadSignature
	}

	p, _ := l.Path(key)
	if _, err := os.Stat(p); err != nil {
		return "", ErrNotFound
	}
	return p, nil
}

func (l *Local) sign(key, expires string) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(key + "\n" + expires))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
