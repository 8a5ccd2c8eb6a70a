package routes

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/bucket-hub/bucketd/internal/server"
	"github.com/bucket-hub/bucketd/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/healthz 与 /-/domains 诊断接口，
// 供 SRE 查询服务状态与 Domain 绑定关系。
func RegisterDiagnosticsRoutes(app *fiber.App, registry *server.DomainRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	app.Get("/-/domains", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"domains": encodeDomains(registry.List()),
		})
	})
}

type domainPayload struct {
	Name       string `json:"name"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Port       int    `json:"port"`
}

func encodeDomains(routes []server.DomainRoute) []domainPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]domainPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, domainPayload{
			Name:       route.Config.Name,
			TTLSeconds: int64(route.CacheTTL / time.Second),
			Port:       route.ListenPort,
		})
	}
	return result
}
