package bucket

import (
	"path/filepath"
	"strings"
)

// Locator 唯一定位一个桶（Domain + 原始 Key）。Key 是调用方提供的任意
// 字符串，不要求文件系统安全。
type Locator struct {
	Domain string
	Key    string
}

const (
	// DefaultDomain 在 Locator 未指定 Domain 时生效。
	DefaultDomain = "default"

	// bucketPrefix/bucketSuffix 固定包裹 sanitize 后的 key，
	// 使桶文件在目录里一眼可辨。
	bucketPrefix = "__"
	bucketSuffix = ".bucket"

	// tmpSuffix 标记发布前的临时文件，仅持锁写入方可见。
	tmpSuffix = ".tmp"
)

// lockKey 返回锁服务使用的标识：domain 限定下的原始（未 sanitize）key。
func (l Locator) lockKey() string {
	domain := l.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	return domain + "::" + l.Key
}

// bucketPath 把 Locator 确定性地映射为磁盘路径：
//
//	<base>/<namespace>/<domain>/__<sanitized-key>.bucket
//
// sanitize 可能把不同 key 映射到同一文件名，这一碰撞行为是继承下来的
// 已接受限制，这里不做检测。
func bucketPath(base, namespace string, loc Locator) string {
	domain := loc.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	name := bucketPrefix + sanitizeName(loc.Key) + bucketSuffix
	return filepath.Join(base, namespace, sanitizeName(domain), name)
}

// reservedNameRunes 列出在主流文件系统上不能出现在文件名里的字符。
const reservedNameRunes = `/\:*?"<>|`

// sanitizeName 把任意字符串确定性地转换为文件名安全的形式：路径分隔符、
// 控制字符与保留字符统一替换为下划线，空串与纯点串退化为固定标记。
// 同一输入永远得到同一输出。
func sanitizeName(raw string) string {
	if raw == "" {
		return "root"
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(reservedNameRunes, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}
