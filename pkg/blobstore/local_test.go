package blobstore

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "http://files.test/files/", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func splitSigned(t *testing.T, raw string) (key, expires, sig string) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimPrefix(u.Path, "/files/"), u.Query().Get("expires"), u.Query().Get("sig")
}

func TestLocalSignedURLRoundTrip(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	if err := l.Put(ctx, "u1/r1.jpg", []byte("jpeg"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	raw, err := l.SignedURL(ctx, "u1/r1.jpg", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw, "http://files.test/files/u1/r1.jpg?") {
		t.Fatalf("url = %s", raw)
	}

	key, expires, sig := splitSigned(t, raw)
	p, err := l.Verify(key, expires, sig)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("read %q, %v", data, err)
	}

	if _, err := l.Verify("u1/other.jpg", expires, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("other key: err = %v", err)
	}
}

func TestLocalSignedURLExpires(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	_ = l.Put(ctx, "a.png", []byte("png"), "image/png")

	raw, _ := l.SignedURL(ctx, "a.png", time.Minute)
	l.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	key, expires, sig := splitSigned(t, raw)
	if _, err := l.Verify(key, expires, sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	l := newLocal(t)
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "a//b"} {
		if err := l.Put(context.Background(), key, nil, ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalDelete(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	_ = l.Put(ctx, "x/y.webp", []byte("w"), "image/webp")

	if err := l.Delete(ctx, "x/y.webp"); err != nil {
		t.Fatal(err)
	}
	if err := l.Delete(ctx, "x/y.webp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestThumbnailKey(t *testing.T) {
	if got := ThumbnailKey("u1/r1.jpg"); got != "u1/thumbnails/r1.jpg" {
		t.Errorf("got %s", got)
	}
	if got := ThumbnailKey("r1.jpg"); got != "thumbnails/r1.jpg" {
		t.Errorf("got %s", got)
	}
}
