package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/bucket-hub/bucketd/internal/bucket"
	"github.com/bucket-hub/bucketd/internal/logging"
)

// BucketHandler 负责把 HTTP 动词翻译为桶操作：GET 流式读取、PUT 流式写入、
// PATCH 调整 eol、DELETE 立即过期，任何阶段出错都会输出结构化日志。
type BucketHandler struct {
	cache  *bucket.Cache
	logger *logrus.Logger
	now    func() time.Time
}

// NewBucketHandler constructs a handler around the shared disk cache/logger.
func NewBucketHandler(cache *bucket.Cache, logger *logrus.Logger) *BucketHandler {
	return &BucketHandler{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Get 流式返回桶 payload；头部在缓存层被拆掉，客户端只会看到原始内容。
func (h *BucketHandler) Get(c fiber.Ctx, route *DomainRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	loc := locatorFromRequest(c, route)

	result, err := h.cache.GetStream(requestContext(c), loc)
	if err != nil {
		return h.renderBucketError(c, route, loc, "get", requestID, err)
	}
	defer result.Reader.Close()

	c.Set("X-Bucket-EOL", strconv.FormatInt(result.EOL, 10))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Response().Header.SetContentLength(int(result.Size))
	c.Status(fiber.StatusOK)

	_, err = io.Copy(c.Response().BodyWriter(), result.Reader)
	h.logResult(route, loc, "get", requestID, fiber.StatusOK, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read bucket failed: %v", err))
	}
	return nil
}

// Put 把请求体流式写入桶；`ttl`/`eol_ms` 查询参数可覆盖 Domain 默认 TTL。
func (h *BucketHandler) Put(c fiber.Ctx, route *DomainRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	loc := locatorFromRequest(c, route)

	eol, err := h.resolveEOL(c, route)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl"})
	}

	// 空请求体或已被缓冲的请求体没有 BodyStream，退回缓冲读取
	var src io.Reader = c.Request().BodyStream()
	if src == nil {
		src = bytes.NewReader(c.Body())
	}
	if err := h.cache.SetStream(requestContext(c), loc, src, eol); err != nil {
		return h.renderBucketError(c, route, loc, "put", requestID, err)
	}

	h.logResult(route, loc, "put", requestID, fiber.StatusCreated, started, nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"domain": loc.Domain,
		"key":    loc.Key,
		"eol_ms": eol.UnixMilli(),
	})
}

// Patch 原地调整既有桶的 eol；`ttl` 缺省时回到 Domain 默认 TTL。
func (h *BucketHandler) Patch(c fiber.Ctx, route *DomainRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	loc := locatorFromRequest(c, route)

	ttl := route.CacheTTL
	if raw := c.Query("ttl"); raw != "" {
		parsed, err := parseTTL(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl"})
		}
		ttl = parsed
	}
	eol := h.now().Add(ttl)

	if err := h.cache.SetEOL(requestContext(c), loc, eol); err != nil {
		return h.renderBucketError(c, route, loc, "patch", requestID, err)
	}

	h.logResult(route, loc, "patch", requestID, fiber.StatusOK, started, nil)
	return c.JSON(fiber.Map{
		"domain": loc.Domain,
		"key":    loc.Key,
		"eol_ms": eol.UnixMilli(),
	})
}

// Delete 通过把 eol 置为立即过期来删除桶文件。
func (h *BucketHandler) Delete(c fiber.Ctx, route *DomainRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	loc := locatorFromRequest(c, route)

	if err := h.cache.SetEOL(requestContext(c), loc, time.Time{}); err != nil {
		return h.renderBucketError(c, route, loc, "delete", requestID, err)
	}

	h.logResult(route, loc, "delete", requestID, fiber.StatusNoContent, started, nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// resolveEOL 按 eol_ms > ttl > Domain 默认 的优先级决定写入的过期时间。
func (h *BucketHandler) resolveEOL(c fiber.Ctx, route *DomainRoute) (time.Time, error) {
	if raw := c.Query("eol_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	}

	ttl := route.CacheTTL
	if raw := c.Query("ttl"); raw != "" {
		parsed, err := parseTTL(raw)
		if err != nil {
			return time.Time{}, err
		}
		ttl = parsed
	}
	return h.now().Add(ttl), nil
}

// parseTTL 兼容 Go Duration 字符串与纯秒数值两种写法，与配置层保持一致。
func parseTTL(raw string) (time.Duration, error) {
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed, nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid ttl value: %s", raw)
}

// renderBucketError 统一错误码映射；过期对读是 410，对写是 400。
func (h *BucketHandler) renderBucketError(c fiber.Ctx, route *DomainRoute, loc bucket.Locator, action, requestID string, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, bucket.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		status = fiber.StatusNotFound
		code = "bucket_not_found"
	case errors.Is(err, bucket.ErrEndOfLife):
		if action == "get" {
			status = fiber.StatusGone
		} else {
			status = fiber.StatusBadRequest
		}
		code = "end_of_life"
	case errors.Is(err, bucket.ErrBadHeaderSize), errors.Is(err, bucket.ErrBadHeaderFormat):
		status = fiber.StatusBadGateway
		code = "bucket_corrupt"
	default:
		var access *bucket.AccessError
		var badWrite *bucket.BadWriteError
		if errors.As(err, &access) {
			code = "bucket_access_failed"
		} else if errors.As(err, &badWrite) {
			code = "bucket_write_truncated"
		}
	}

	fields := logging.BucketFields(action, loc.Domain, loc.Key, code)
	fields["status"] = status
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if status >= fiber.StatusInternalServerError {
		h.logger.WithFields(fields).Error(err.Error())
	} else {
		h.logger.WithFields(fields).Info(err.Error())
	}

	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *BucketHandler) logResult(route *DomainRoute, loc bucket.Locator, action, requestID string, status int, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "stream_error"
	}
	fields := logging.BucketFields(action, loc.Domain, loc.Key, outcome)
	fields["status"] = status
	fields["duration_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}

	if err != nil {
		h.logger.WithFields(fields).Error(err.Error())
		return
	}
	h.logger.WithFields(fields).Info("bucket request served")
}

// locatorFromRequest 用路径通配段作为桶 key；key 原样保留，
// sanitize 只发生在缓存层。
func locatorFromRequest(c fiber.Ctx, route *DomainRoute) bucket.Locator {
	return bucket.Locator{
		Domain: route.Config.Name,
		Key:    c.Params("*"),
	}
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
