package bucket

import (
	"bytes"
	"encoding/binary"
	"math"
)

// HeaderSize 是桶文件头部的固定长度，编码与解码共用同一常量。
// 比最小布局（4 字节 magic + 8 字节 eol）多出的部分为保留填充区。
const HeaderSize = 24

// eolOffset 是 eol 在头部中的固定偏移，紧跟 magic 之后。
const eolOffset = 4

// fillerByte 填充头部保留区，保证头部长度恒定。
const fillerByte = 0x00

// headerMagic 标识一个合法的桶文件，固定 4 字节 ASCII。
var headerMagic = [4]byte{'b', 'c', 'k', 't'}

// EncodeHeader 将 eol（毫秒时间戳）编码为固定 HeaderSize 字节的头部：
// magic 在偏移 0，eol 以 little-endian IEEE-754 double 写在固定偏移，
// 其余字节为填充值。未指定 eol 时调用方传 0。
func EncodeHeader(eol float64) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, headerMagic[:])
	binary.LittleEndian.PutUint64(buf[eolOffset:], math.Float64bits(eol))
	for i := eolOffset + 8; i < HeaderSize; i++ {
		buf[i] = fillerByte
	}
	return buf
}

// DecodeHeader 从 b 的前 HeaderSize 字节解出 eol。长度不足返回
// ErrBadHeaderSize；magic 不匹配返回 ErrBadHeaderFormat。解码是纯函数，
// 绝不读取超过 HeaderSize 的内容。
func DecodeHeader(b []byte) (float64, error) {
	if len(b) < HeaderSize {
		return 0, ErrBadHeaderSize
	}
	if !bytes.Equal(b[:len(headerMagic)], headerMagic[:]) {
		return 0, ErrBadHeaderFormat
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[eolOffset : eolOffset+8])), nil
}
