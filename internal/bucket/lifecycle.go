package bucket

import (
	"context"
	"os"
	"time"
)

// SetEOL 更新或删除既有桶的过期时间。eol 早于当前时间（零值 time.Time
// 即立即过期）时加锁删除桶文件，删除错误原样返回；否则原地只改写头部
// 窗口，payload 不动。打开不存在的文件时错误不做包装，由调用方判断。
func (c *Cache) SetEOL(ctx context.Context, loc Locator, eol time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nowMs := c.nowMillis()
	eolMs := int64(0)
	if !eol.IsZero() {
		eolMs = eol.UnixMilli()
	}

	key := loc.lockKey()
	c.locker.Acquire(key)
	defer c.locker.Release(key)

	path := c.Path(loc)
	if eolMs < nowMs {
		return os.Remove(path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	n, err := f.WriteAt(EncodeHeader(float64(eolMs)), 0)
	if err != nil {
		f.Close()
		return &AccessError{Key: key, Err: err}
	}
	if n != HeaderSize {
		f.Close()
		return &BadWriteError{Written: n}
	}
	return f.Close()
}
