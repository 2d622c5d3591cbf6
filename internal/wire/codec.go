// Package wire 定义控制块与结果块的定宽小端二进制布局。
//
// 所有函数均为全函数：长度不符时返回 ErrMalformedInput，绝不越界读取。
// 编码函数接收 Allocator，输出缓冲区在尺寸已知后一次性分配，不扩容、不填充。
package wire

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/uint128"

	"stopscan/pkg/contract"
)

// DecodeInterval 解析 32 字节控制块：前 16 字节为 Left，后 16 字节为 Right（均小端）。
// 同时拒绝 Right < Left 的逆序区间。
func DecodeInterval(buf []byte) (contract.Interval, error) {
	if len(buf) != contract.IntervalSize {
		return contract.Interval{}, fmt.Errorf("%w: control block is %d bytes, want %d", contract.ErrMalformedInput, len(buf), contract.IntervalSize)
	}
	iv := contract.Interval{
		Left:  uint128.FromBytes(buf[:contract.U128Size]),
		Right: uint128.FromBytes(buf[contract.U128Size:contract.IntervalSize]),
	}
	if err := iv.Validate(); err != nil {
		return contract.Interval{}, err
	}
	return iv, nil
}

// EncodeInterval 生成 32 字节控制块。
func EncodeInterval(iv contract.Interval) []byte {
	buf := make([]byte, contract.IntervalSize)
	putInterval(buf, iv)
	return buf
}

func putInterval(dst []byte, iv contract.Interval) {
	iv.Left.PutBytes(dst[:contract.U128Size])
	iv.Right.PutBytes(dst[contract.U128Size:contract.IntervalSize])
}

func putLengths(dst []byte, values []uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*contract.LengthSize:], v)
	}
}

// EncodeLengths 将每个值写为 4 字节小端并按序拼接；总长恰为 4*len(values)。
func EncodeLengths(values []uint32) []byte {
	buf := make([]byte, contract.LengthSize*len(values))
	putLengths(buf, values)
	return buf
}

// EncodeMax 生成恰好 4 字节的最大值块。
func EncodeMax(v uint32) []byte {
	buf := make([]byte, contract.LengthSize)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// EncodeIntervalEchoPlusLengths 先写 32 字节区间回显，再写长度序列。
func EncodeIntervalEchoPlusLengths(iv contract.Interval, values []uint32) []byte {
	buf := make([]byte, contract.IntervalSize+contract.LengthSize*len(values))
	putInterval(buf, iv)
	putLengths(buf[contract.IntervalSize:], values)
	return buf
}

// Encode 按 r.Mode 将结果编码进 alloc 一次性分配的缓冲区。
// alloc 为 nil 时使用 HeapAllocator；返回尺寸不符视为 ErrInvariantViolation。
func Encode(r contract.Result, alloc contract.Allocator) ([]byte, error) {
	if !r.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", contract.ErrInvariantViolation, r.Mode)
	}
	if alloc == nil {
		alloc = contract.HeapAllocator
	}
	size := r.Size()
	buf := alloc.Alloc(size)
	if len(buf) != size {
		return nil, fmt.Errorf("%w: allocator returned %d bytes, want %d", contract.ErrInvariantViolation, len(buf), size)
	}
	switch r.Mode {
	case contract.ModeMaximum:
		binary.LittleEndian.PutUint32(buf, r.Max)
	case contract.ModeFiniteOnly:
		putLengths(buf, r.Lengths)
	case contract.ModePerNumber:
		putInterval(buf, r.Interval)
		putLengths(buf[contract.IntervalSize:], r.Lengths)
	}
	return buf, nil
}

// DecodeLengths 解析 4*k 字节的长度序列。
func DecodeLengths(buf []byte) ([]uint32, error) {
	if len(buf)%contract.LengthSize != 0 {
		return nil, fmt.Errorf("%w: length block is %d bytes, not a multiple of %d", contract.ErrMalformedInput, len(buf), contract.LengthSize)
	}
	out := make([]uint32, len(buf)/contract.LengthSize)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*contract.LengthSize:])
	}
	return out, nil
}

// DecodeMax 解析恰好 4 字节的最大值块。
func DecodeMax(buf []byte) (uint32, error) {
	if len(buf) != contract.LengthSize {
		return 0, fmt.Errorf("%w: max block is %d bytes, want %d", contract.ErrMalformedInput, len(buf), contract.LengthSize)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// DecodeIntervalEchoPlusLengths 解析 32 字节回显 + 4*k 字节长度序列；k 不得超过区间长度。
func DecodeIntervalEchoPlusLengths(buf []byte) (contract.Interval, []uint32, error) {
	if len(buf) < contract.IntervalSize {
		return contract.Interval{}, nil, fmt.Errorf("%w: echo block is %d bytes, want at least %d", contract.ErrMalformedInput, len(buf), contract.IntervalSize)
	}
	iv, err := DecodeInterval(buf[:contract.IntervalSize])
	if err != nil {
		return contract.Interval{}, nil, err
	}
	lens, err := DecodeLengths(buf[contract.IntervalSize:])
	if err != nil {
		return contract.Interval{}, nil, err
	}
	// 剔除溢出项后条数只减不增
	if iv.Len().Cmp64(uint64(len(lens))) < 0 {
		return contract.Interval{}, nil, fmt.Errorf("%w: %d lengths for interval %s", contract.ErrMalformedInput, len(lens), iv)
	}
	return iv, lens, nil
}

// Decode 按 mode 还原结果块。maximum/finite_only 不携带区间，由调用方另行提供。
// 解码得到的 Max 对列表模式取列表最大值，便于统一汇总。
func Decode(mode contract.Mode, buf []byte) (contract.Result, error) {
	r := contract.Result{Mode: mode}
	switch mode {
	case contract.ModeMaximum:
		m, err := DecodeMax(buf)
		if err != nil {
			return contract.Result{}, err
		}
		r.Max = m
	case contract.ModeFiniteOnly:
		lens, err := DecodeLengths(buf)
		if err != nil {
			return contract.Result{}, err
		}
		r.Lengths = lens
		r.Max = maxOf(lens)
	case contract.ModePerNumber:
		iv, lens, err := DecodeIntervalEchoPlusLengths(buf)
		if err != nil {
			return contract.Result{}, err
		}
		r.Interval, r.Lengths, r.Max = iv, lens, maxOf(lens)
	default:
		return contract.Result{}, fmt.Errorf("%w: unknown mode %q", contract.ErrMalformedInput, mode)
	}
	return r, nil
}

func maxOf(vs []uint32) uint32 {
	var m uint32
	for _, v := range vs {
		m = max(m, v)
	}
	return m
}
