package bucket

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"
)

func TestSetEOLDeletesExpiredBucket(t *testing.T) {
	c, clock := newTestCache(t)
	loc := Locator{Key: "plop"}
	if err := c.Set(context.Background(), loc, []byte("data"), clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("set error: %v", err)
	}

	// 零值 eol 即立即过期，走删除路径
	if err := c.SetEOL(context.Background(), loc, time.Time{}); err != nil {
		t.Fatalf("seteol delete error: %v", err)
	}
	if _, err := c.Get(context.Background(), loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetEOLDeleteMissingPropagates(t *testing.T) {
	c, _ := newTestCache(t)
	err := c.SetEOL(context.Background(), Locator{Key: "never-existed"}, time.Time{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected raw fs.ErrNotExist, got %v", err)
	}
}

func TestSetEOLExtendsLifetimeInPlace(t *testing.T) {
	c, clock := newTestCache(t)
	loc := Locator{Key: "extend"}
	payload := []byte("long-lived payload")

	if err := c.Set(context.Background(), loc, payload, clock.Now().Add(time.Second)); err != nil {
		t.Fatalf("set error: %v", err)
	}

	newEOL := clock.Now().Add(time.Hour)
	if err := c.SetEOL(context.Background(), loc, newEOL); err != nil {
		t.Fatalf("seteol extend error: %v", err)
	}

	// 原本 1s 后就会过期；改写后必须继续存活且 payload 原封不动
	clock.Advance(10 * time.Second)
	got, err := c.Get(context.Background(), loc)
	if err != nil {
		t.Fatalf("get after extend error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload changed by header rewrite: %q", got)
	}

	raw, err := os.ReadFile(c.Path(loc))
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	eol, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if int64(eol) != newEOL.UnixMilli() {
		t.Fatalf("header eol mismatch: expected %d got %d", newEOL.UnixMilli(), int64(eol))
	}
}

func TestSetEOLShrinksLifetime(t *testing.T) {
	c, clock := newTestCache(t)
	loc := Locator{Key: "shrink"}
	if err := c.Set(context.Background(), loc, []byte("x"), clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("set error: %v", err)
	}

	if err := c.SetEOL(context.Background(), loc, clock.Now().Add(time.Second)); err != nil {
		t.Fatalf("seteol shrink error: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := c.Get(context.Background(), loc); !errors.Is(err, ErrEndOfLife) {
		t.Fatalf("expected ErrEndOfLife after shrink, got %v", err)
	}
}

func TestSetEOLExtendMissingOpenErrorUnwrapped(t *testing.T) {
	c, clock := newTestCache(t)
	err := c.SetEOL(context.Background(), Locator{Key: "ghost"}, clock.Now().Add(time.Hour))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected raw open error, got %v", err)
	}
	var access *AccessError
	if errors.As(err, &access) {
		t.Fatalf("open error must not be wrapped as AccessError")
	}
}

func TestSetEOLHoldsLockOnBothPaths(t *testing.T) {
	locker := &recordingLocker{}
	c, clock := newTestCacheWithLocker(t, locker)
	loc := Locator{Key: "locked"}

	if err := c.Set(context.Background(), loc, []byte("x"), clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := c.SetEOL(context.Background(), loc, clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seteol error: %v", err)
	}
	if err := c.SetEOL(context.Background(), loc, time.Time{}); err != nil {
		t.Fatalf("seteol delete error: %v", err)
	}

	if len(locker.acquires) != 3 || len(locker.releases) != 3 {
		t.Fatalf("each write op must acquire and release once: %+v", locker)
	}
}
