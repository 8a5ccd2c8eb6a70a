package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Domain 共享同一份参数。
type GlobalConfig struct {
	ListenPort    int      `mapstructure:"ListenPort"`
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	StoragePath   string   `mapstructure:"StoragePath"`
	Namespace     string   `mapstructure:"Namespace"`
	CacheTTL      Duration `mapstructure:"CacheTTL"`
}

// DomainConfig 是 StoragePath 下的一个桶分组，可覆盖全局 TTL。
type DomainConfig struct {
	Name     string   `mapstructure:"Name"`
	CacheTTL Duration `mapstructure:"CacheTTL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Domains []DomainConfig `mapstructure:"Domain"`
}

// EffectiveCacheTTL 返回 Domain 覆盖后的 TTL，未覆盖时回退到全局值。
func (c *Config) EffectiveCacheTTL(domain DomainConfig) time.Duration {
	if ttl := domain.CacheTTL.DurationValue(); ttl > 0 {
		return ttl
	}
	return c.Global.CacheTTL.DurationValue()
}

// DomainSummaries 返回所有 Domain 的 name:ttl 摘要，供启动日志输出。
func DomainSummaries(cfg *Config) []string {
	if cfg == nil || len(cfg.Domains) == 0 {
		return nil
	}
	result := make([]string, len(cfg.Domains))
	for i, domain := range cfg.Domains {
		result[i] = fmt.Sprintf("%s:%s", domain.Name, cfg.EffectiveCacheTTL(domain))
	}
	return result
}
