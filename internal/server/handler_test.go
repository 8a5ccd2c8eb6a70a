package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/bucket-hub/bucketd/internal/bucket"
	"github.com/bucket-hub/bucketd/internal/config"
)

type handlerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *handlerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *handlerClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type handlerFixture struct {
	app   *fiber.App
	cache *bucket.Cache
	clock *handlerClock
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	clock := &handlerClock{now: time.UnixMilli(1_700_000_000_000)}

	cache, err := bucket.New(bucket.Options{
		BaseDir: t.TempDir(),
		TTL:     time.Hour,
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort: 5000,
			CacheTTL:   config.Duration(time.Hour),
		},
		Domains: []config.DomainConfig{
			{Name: "media"},
		},
	}
	registry, err := NewDomainRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewBucketHandler(cache, logger)
	handler.now = clock.Now

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Registry:   registry,
		Buckets:    handler,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &handlerFixture{app: app, cache: cache, clock: clock}
}

func TestHandlerPutThenGetRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)
	payload := []byte("column chart bytes")

	req := httptest.NewRequest("PUT", "http://localhost/media/reports/q3.png", bytes.NewReader(payload))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201 status, got %d (body=%s)", resp.StatusCode, string(body))
	}

	var created struct {
		Domain string `json:"domain"`
		Key    string `json:"key"`
		EOLMs  int64  `json:"eol_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode put response: %v", err)
	}
	if created.Domain != "media" || created.Key != "reports/q3.png" {
		t.Fatalf("unexpected locator in response: %+v", created)
	}
	wantEOL := f.clock.Now().Add(time.Hour).UnixMilli()
	if created.EOLMs != wantEOL {
		t.Fatalf("expected eol_ms %d, got %d", wantEOL, created.EOLMs)
	}

	resp, err = f.app.Test(httptest.NewRequest("GET", "http://localhost/media/reports/q3.png", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, payload) {
		t.Fatalf("payload mismatch: got %q", string(body))
	}
	if got := resp.Header.Get("X-Bucket-EOL"); got != strconv.FormatInt(wantEOL, 10) {
		t.Fatalf("expected X-Bucket-EOL %d, got %q", wantEOL, got)
	}
}

func TestHandlerGetMissingBucketReturns404(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "http://localhost/media/not/there", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"bucket_not_found"`)) {
		t.Fatalf("expected bucket_not_found error, got %s", string(body))
	}
}

func TestHandlerGetExpiredBucketReturns410(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest("PUT", "http://localhost/media/short/lived?ttl=1s", bytes.NewReader([]byte("x")))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 status, got %d", resp.StatusCode)
	}

	f.clock.Advance(2 * time.Second)

	resp, err = f.app.Test(httptest.NewRequest("GET", "http://localhost/media/short/lived", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusGone {
		t.Fatalf("expected 410 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"end_of_life"`)) {
		t.Fatalf("expected end_of_life error, got %s", string(body))
	}
}

func TestHandlerPutWithPastEOLReturns400(t *testing.T) {
	f := newHandlerFixture(t)
	past := f.clock.Now().Add(-time.Minute).UnixMilli()

	req := httptest.NewRequest("PUT", "http://localhost/media/stale?eol_ms="+strconv.FormatInt(past, 10), bytes.NewReader([]byte("x")))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"end_of_life"`)) {
		t.Fatalf("expected end_of_life error, got %s", string(body))
	}
}

func TestHandlerPutRejectsInvalidTTL(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest("PUT", "http://localhost/media/bad?ttl=forever", bytes.NewReader([]byte("x")))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"invalid_ttl"`)) {
		t.Fatalf("expected invalid_ttl error, got %s", string(body))
	}
}

func TestHandlerPatchExtendsBucket(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest("PUT", "http://localhost/media/renew/me?ttl=1s", bytes.NewReader([]byte("keep me")))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 status, got %d", resp.StatusCode)
	}

	resp, err = f.app.Test(httptest.NewRequest("PATCH", "http://localhost/media/renew/me?ttl=10m", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 status, got %d (body=%s)", resp.StatusCode, string(body))
	}

	var patched struct {
		EOLMs int64 `json:"eol_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&patched); err != nil {
		t.Fatalf("failed to decode patch response: %v", err)
	}
	if want := f.clock.Now().Add(10 * time.Minute).UnixMilli(); patched.EOLMs != want {
		t.Fatalf("expected eol_ms %d, got %d", want, patched.EOLMs)
	}

	// 原来 1s 的 TTL 已被覆盖，推进 5 秒后仍然可读
	f.clock.Advance(5 * time.Second)

	resp, err = f.app.Test(httptest.NewRequest("GET", "http://localhost/media/renew/me", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status after patch, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "keep me" {
		t.Fatalf("payload mismatch after patch: %q", string(body))
	}
}

func TestHandlerDeleteRemovesBucket(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest("PUT", "http://localhost/media/trash/it", bytes.NewReader([]byte("gone soon")))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 status, got %d", resp.StatusCode)
	}

	resp, err = f.app.Test(httptest.NewRequest("DELETE", "http://localhost/media/trash/it", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}

	resp, err = f.app.Test(httptest.NewRequest("GET", "http://localhost/media/trash/it", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestHandlerGetCorruptBucketReturns502(t *testing.T) {
	f := newHandlerFixture(t)

	path := f.cache.Path(bucket.Locator{Domain: "media", Key: "broken"})
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create bucket dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("PK\x03\x04 definitely not a bucket"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	resp, err := f.app.Test(httptest.NewRequest("GET", "http://localhost/media/broken", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"bucket_corrupt"`)) {
		t.Fatalf("expected bucket_corrupt error, got %s", string(body))
	}
}
