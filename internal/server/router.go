package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BucketAPI describes the component translating HTTP requests into bucket
// operations. It allows injecting fake handlers during tests.
type BucketAPI interface {
	Get(fiber.Ctx, *DomainRoute) error
	Put(fiber.Ctx, *DomainRoute) error
	Patch(fiber.Ctx, *DomainRoute) error
	Delete(fiber.Ctx, *DomainRoute) error
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *DomainRegistry
	Buckets    BucketAPI
	ListenPort int
}

const (
	contextKeyRoute     = "_bucketd_route"
	contextKeyRequestID = "_bucketd_request_id"
)

// NewApp builds a Fiber application with domain-segment routing middleware
// and structured error handling. Request bodies are streamed so large bucket
// payloads never get buffered in memory.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("domain registry is required")
	}
	if opts.Buckets == nil {
		return nil, errors.New("bucket handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:     true,
		StreamRequestBody: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	dispatch := func(op func(fiber.Ctx, *DomainRoute) error) fiber.Handler {
		return func(c fiber.Ctx) error {
			if isDiagnosticsPath(string(c.Request().URI().Path())) {
				return c.Next()
			}
			route, _ := getRouteFromContext(c)
			if route == nil {
				return renderDomainUnmapped(c, opts.Logger, "", opts.ListenPort)
			}
			return op(c, route)
		}
	}

	app.Get("/:domain/*", dispatch(opts.Buckets.Get))
	app.Put("/:domain/*", dispatch(opts.Buckets.Put))
	app.Patch("/:domain/*", dispatch(opts.Buckets.Patch))
	app.Delete("/:domain/*", dispatch(opts.Buckets.Delete))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于路径首段查找 DomainRoute。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) {
			return c.Next()
		}

		rawDomain := firstPathSegment(path)
		route, ok := opts.Registry.Lookup(rawDomain)
		if !ok {
			return renderDomainUnmapped(c, opts.Logger, rawDomain, opts.ListenPort)
		}

		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderDomainUnmapped(c fiber.Ctx, logger *logrus.Logger, domain string, port int) error {
	fields := logrus.Fields{
		"action": "domain_lookup",
		"domain": domain,
		"port":   port,
	}
	logger.WithFields(fields).Warn("domain unmapped")

	if domain != "" {
		c.Set("X-Bucketd-Domain", domain)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "domain_unmapped",
	})
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func getRouteFromContext(c fiber.Ctx) (*DomainRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*DomainRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
