package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bucket-hub/bucketd/internal/bucket"
	"github.com/bucket-hub/bucketd/internal/config"
)

// DomainRoute 将 Domain 配置与派生属性（如生效的缓存 TTL）聚合在一起，
// 供路由/处理层直接复用，避免重复解析配置。
type DomainRoute struct {
	// Config 是用户在 config.toml 中声明的 Domain 字段副本，避免外部修改。
	Config config.DomainConfig
	// ListenPort 记录当前 CLI 监听端口，方便日志输出。
	ListenPort int
	// CacheTTL 是对当前 Domain 生效的 TTL，若未覆盖则等于全局值。
	CacheTTL time.Duration
}

// DomainRegistry 提供 Domain 名称到 DomainRoute 的查询能力。未在配置中
// 声明的名称一律拒绝，唯一的例外是始终存在的 default Domain。
type DomainRegistry struct {
	routes  map[string]*DomainRoute
	ordered []*DomainRoute
}

// NewDomainRegistry 根据配置构建 Domain 映射。调用方应在启动阶段创建一次并复用。
func NewDomainRegistry(cfg *config.Config) (*DomainRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &DomainRegistry{
		routes: make(map[string]*DomainRoute, len(cfg.Domains)+1),
	}

	for _, domain := range cfg.Domains {
		name := normalizeDomainName(domain.Name)
		if name == "" {
			return nil, errors.New("invalid empty domain name")
		}
		if _, exists := registry.routes[name]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", name)
		}

		route := &DomainRoute{
			Config:     domain,
			ListenPort: cfg.Global.ListenPort,
			CacheTTL:   cfg.EffectiveCacheTTL(domain),
		}
		registry.routes[name] = route
		registry.ordered = append(registry.ordered, route)
	}

	// default Domain 始终可用，除非配置显式覆盖了它
	if _, exists := registry.routes[bucket.DefaultDomain]; !exists {
		route := &DomainRoute{
			Config:     config.DomainConfig{Name: bucket.DefaultDomain},
			ListenPort: cfg.Global.ListenPort,
			CacheTTL:   cfg.Global.CacheTTL.DurationValue(),
		}
		registry.routes[bucket.DefaultDomain] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Domain 名称查找 DomainRoute。
func (r *DomainRegistry) Lookup(name string) (*DomainRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalized := normalizeDomainName(name)
	if normalized == "" {
		return nil, false
	}

	route, ok := r.routes[normalized]
	return route, ok
}

// List 返回当前注册的 DomainRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *DomainRegistry) List() []DomainRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]DomainRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func normalizeDomainName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
