package bucket

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// StreamResult 组合桶的元信息与从 payload 首字节开始的只读流。
// 调用方负责 Close。
type StreamResult struct {
	// EOL 是头部记录的过期毫秒时间戳。
	EOL int64
	// Size 是 payload 的字节数（文件长度减去头部长度）。
	Size int64
	// Reader 定位在 payload 第一个字节，消费方绝不会读到头部内容。
	Reader io.ReadCloser
}

// GetStream 打开桶文件并在交付前完成头部拆分与过期校验：先精确读满
// HeaderSize 字节再解码，payload 不做任何缓冲。头部损坏或已过期时流
// 不会交给调用方。
func (c *Cache) GetStream(ctx context.Context, loc Locator) (*StreamResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nowMs := c.nowMillis()

	f, err := os.Open(c.Path(loc))
	if err != nil {
		return nil, &NotFoundError{Key: loc.lockKey(), Err: err}
	}

	eol, err := readHeader(f)
	if err != nil {
		f.Close()
		if errors.Is(err, ErrBadHeaderSize) || errors.Is(err, ErrBadHeaderFormat) {
			return nil, err
		}
		return nil, &NotFoundError{Key: loc.lockKey(), Err: err}
	}
	if int64(eol) < nowMs {
		f.Close()
		return nil, &EndOfLifeError{EOL: int64(eol)}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &NotFoundError{Key: loc.lockKey(), Err: err}
	}

	return &StreamResult{
		EOL:    int64(eol),
		Size:   info.Size() - HeaderSize,
		Reader: f,
	}, nil
}

// readHeader 是流式读取的头部拆分变换：从 r 精确读取 HeaderSize 字节并
// 解码，返回后 r 的读取位置正好落在 payload 首字节。读满前遇到 EOF 视作
// 头部长度不足。
func readHeader(r io.Reader) (float64, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrBadHeaderSize
		}
		return 0, err
	}
	return DecodeHeader(buf[:])
}

// SetStream 与 Set 遵循同样的 eol 预检与锁纪律，但逐块搬运 src，
// 不缓冲完整 payload。
func (c *Cache) SetStream(ctx context.Context, loc Locator, src io.Reader, eol time.Time) error {
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
		_, err := copyChunks(ctx, f, src)
		return err
	}); err != nil {
		return err
	}
	return c.publish(path, key)
}

// copyChunks 在每轮读写前检查 ctx，是 io.Copy 的可取消版本。
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
