package bucket

import (
	"errors"
	"fmt"
	"time"
)

// 哨兵错误供调用方用 errors.Is 分类；携带上下文的错误类型通过 Is
// 方法映射回对应哨兵。
var (
	ErrNotFound        = errors.New("bucket not found")
	ErrEndOfLife       = errors.New("bucket end of life")
	ErrBadHeaderSize   = errors.New("bucket header too short")
	ErrBadHeaderFormat = errors.New("bucket header magic mismatch")
)

// NotFoundError 表示目标桶文件缺失或不可读，并附带出错的 key。
type NotFoundError struct {
	Key string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bucket %q not found: %v", e.Key, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// EndOfLifeError 表示桶已过期，或写入请求携带的 eol 早于当前时间。
// EOL 为头部存储单位的毫秒时间戳。
type EndOfLifeError struct {
	EOL int64
}

func (e *EndOfLifeError) Error() string {
	return fmt.Sprintf("bucket end of life: eol=%d (%s)",
		e.EOL, time.UnixMilli(e.EOL).UTC().Format(time.RFC3339))
}

func (e *EndOfLifeError) Is(target error) bool { return target == ErrEndOfLife }

// AccessError 包装独占创建、写入与 rename 阶段的 I/O 失败，附带 key。
type AccessError struct {
	Key string
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("bucket %q access failed: %v", e.Key, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// BadWriteError 表示原地改写头部时实际写入的字节数不等于 HeaderSize。
type BadWriteError struct {
	Written int
}

func (e *BadWriteError) Error() string {
	return fmt.Sprintf("bucket header short write: wrote %d of %d bytes", e.Written, HeaderSize)
}
