package bucket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultNamespace 是 StoragePath 下存放所有桶的命名空间目录。
const DefaultNamespace = "buckets"

// DefaultTTL 在配置未覆盖时作为缺省存活时长。
const DefaultTTL = 24 * time.Hour

// Options 控制 Cache 的构造；除 BaseDir 外所有字段都有缺省值。
type Options struct {
	// BaseDir 是缓存根目录，必填。
	BaseDir string
	// Namespace 是根目录下的命名空间子目录，默认 DefaultNamespace。
	Namespace string
	// TTL 是调用方未显式给出 eol 时的默认存活时长，默认 DefaultTTL。
	TTL time.Duration
	// Locker 按 key 串行化写入，默认进程内 KeyedMutex。
	Locker Locker
	// Now 是注入的时钟，默认 time.Now，便于测试控制过期判定。
	Now func() time.Time
}

// Cache 是磁盘桶缓存。读操作从不加锁；写操作（Set/SetStream/SetEOL）
// 通过 Locker 按 key 串行，锁一旦取得必在返回前释放。
type Cache struct {
	baseDir   string
	namespace string
	ttl       time.Duration
	locker    Locker
	now       func() time.Time
}

// New 构造 Cache 并确保命名空间根目录存在。
func New(opts Options) (*Cache, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("base dir required")
	}

	abs, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	locker := opts.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Join(abs, namespace), 0o755); err != nil {
		return nil, fmt.Errorf("create namespace dir: %w", err)
	}

	return &Cache{
		baseDir:   abs,
		namespace: namespace,
		ttl:       ttl,
		locker:    locker,
		now:       now,
	}, nil
}

// Path 返回 Locator 对应的磁盘路径，供诊断与测试使用。
func (c *Cache) Path(loc Locator) string {
	return bucketPath(c.baseDir, c.namespace, loc)
}

// TTL 返回默认存活时长。
func (c *Cache) TTL() time.Duration { return c.ttl }

// nowMillis 每个操作只在入口读取一次时钟，换算为头部存储的毫秒单位；
// 操作中途不会重新判定过期。
func (c *Cache) nowMillis() int64 { return c.now().UnixMilli() }

// resolveEOL 把零值 eol 归一化为 now+TTL 的默认过期毫秒时间戳。
func (c *Cache) resolveEOL(eol time.Time, nowMs int64) int64 {
	if eol.IsZero() {
		return nowMs + c.ttl.Milliseconds()
	}
	return eol.UnixMilli()
}

// Get 读取整个桶并返回 payload 部分。文件缺失或不可读返回
// NotFoundError；头部损坏时解码错误原样透出；已过期返回 EndOfLifeError。
func (c *Cache) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nowMs := c.nowMillis()

	raw, err := os.ReadFile(c.Path(loc))
	if err != nil {
		return nil, &NotFoundError{Key: loc.lockKey(), Err: err}
	}

	eol, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if int64(eol) < nowMs {
		return nil, &EndOfLifeError{EOL: int64(eol)}
	}

	return raw[HeaderSize:], nil
}

// Set 原子写入一个桶：eol 预检 → 加锁 → 独占创建 .tmp 写 header+payload
// → 删除旧文件（尽力而为）→ rename 发布。eol 早于当前时间时不加锁、
// 不触盘，直接返回 EndOfLifeError。
func (c *Cache) Set(ctx context.Context, loc Locator, data []byte, eol time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nowMs := c.nowMillis()
	eolMs := c.resolveEOL(eol, nowMs)
	if eolMs < nowMs {
		return &EndOfLifeError{EOL: eolMs}
	}

	key := loc.lockKey()
	c.locker.Acquire(key)
	defer c.locker.Release(key)

	path := c.Path(loc)
	if err := c.writeTemp(path, key, func(f *os.File) error {
		if _, err := f.Write(EncodeHeader(float64(eolMs))); err != nil {
			return err
		}
		_, err := f.Write(data)
		return err
	}); err != nil {
		return err
	}
	return c.publish(path, key)
}

// writeTemp 以独占创建模式打开 <path>.tmp 并交给 fill 写入全部内容。
// 独占创建挡住绕过锁的同 key 并发写；任何失败都会清理临时文件并包装为
// AccessError。
func (c *Cache) writeTemp(path, key string, fill func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &AccessError{Key: key, Err: err}
	}

	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &AccessError{Key: key, Err: err}
	}

	err = fill(f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return &AccessError{Key: key, Err: err}
	}
	return nil
}

// publish 先尽力删除旧桶（可能不存在，错误忽略），再把 .tmp rename 为
// 正式路径。rename 是唯一的发布点，读方要么看到旧桶要么看到新桶。
func (c *Cache) publish(path, key string) error {
	_ = os.Remove(path)
	if err := os.Rename(path+tmpSuffix, path); err != nil {
		os.Remove(path + tmpSuffix)
		return &AccessError{Key: key, Err: err}
	}
	return nil
}
