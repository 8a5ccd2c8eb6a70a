package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if err := validateNamespace(g.Namespace); err != nil {
		return newFieldError("Global.Namespace", err.Error())
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Domains {
		domain := &c.Domains[i]
		if domain.Name == "" {
			return newFieldError("Domain[].Name", "不能为空")
		}
		if _, exists := seenNames[domain.Name]; exists {
			return newFieldError(domainField(domain.Name, "Name"), "重复")
		}
		seenNames[domain.Name] = struct{}{}

		if err := validateDomainName(domain.Name); err != nil {
			return newFieldError(domainField(domain.Name, "Name"), err.Error())
		}
		if domain.CacheTTL.DurationValue() < 0 {
			return newFieldError(domainField(domain.Name, "CacheTTL"), "不能为负数")
		}
	}

	return nil
}

// validateDomainName 约束 Domain 名称可以直接充当一级目录名与 URL 段。
func validateDomainName(name string) error {
	if strings.ContainsAny(name, "/\\") {
		return errors.New("不允许包含路径分隔符")
	}
	if strings.Contains(name, " ") {
		return errors.New("不允许包含空格")
	}
	if name == "." || name == ".." {
		return errors.New("不允许使用保留目录名")
	}
	return nil
}

func validateNamespace(namespace string) error {
	if namespace == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(namespace, "/\\") {
		return errors.New("不允许包含路径分隔符")
	}
	return nil
}
