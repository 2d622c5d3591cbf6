package contract

import (
	"fmt"

	"lukechampine.com/uint128"
)

// U128: 定宽 128 位无符号整数（值类型，Lo/Hi 两个 uint64）。
type U128 = uint128.Uint128

// TaskID: 单个任务的逻辑标识（通常为控制块文件路径或区间文本，需规范化）。
type TaskID string

// Interval: 半开区间 [Left, Right)。
// 约束：Right >= Left；Left == Right 为合法空区间（不产出任何结果）。
// 单次调用内只读。
type Interval struct {
	Left  U128
	Right U128
}

// NewInterval 以 uint64 端点构造区间（测试与小范围工具便捷入口）。
func NewInterval(left, right uint64) Interval {
	return Interval{Left: uint128.From64(left), Right: uint128.From64(right)}
}

// Validate 校验 Right >= Left。
func (iv Interval) Validate() error {
	if iv.Right.Cmp(iv.Left) < 0 {
		return fmt.Errorf("%w: right %s < left %s", ErrMalformedInput, iv.Right, iv.Left)
	}
	return nil
}

// Empty 报告区间是否为空（Left == Right）。
func (iv Interval) Empty() bool { return iv.Left.Cmp(iv.Right) >= 0 }

// Len 返回区间内整数个数；非法区间（Right < Left）返回 0。
func (iv Interval) Len() U128 {
	if iv.Empty() {
		return uint128.Zero
	}
	return iv.Right.Sub(iv.Left)
}

// Contains 报告 n 是否落在 [Left, Right) 内。
func (iv Interval) Contains(n U128) bool {
	return n.Cmp(iv.Left) >= 0 && n.Cmp(iv.Right) < 0
}

func (iv Interval) String() string { return fmt.Sprintf("[%s,%s)", iv.Left, iv.Right) }

// Outcome: 单个起始值的求值结果：有限步数或溢出。
// 仅在 per_number 模式下按位序保留；其余模式即时折叠。
type Outcome struct {
	Length   uint32
	Overflow bool
}

// Finite 构造有限步数结果。
func Finite(n uint32) Outcome { return Outcome{Length: n} }

// Overflowed 构造溢出结果（步数无意义，恒为 0）。
func Overflowed() Outcome { return Outcome{Overflow: true} }

// IsFinite 报告是否为有限结果。
func (o Outcome) IsFinite() bool { return !o.Overflow }

func (o Outcome) String() string {
	if o.Overflow {
		return "overflow"
	}
	return fmt.Sprintf("finite(%d)", o.Length)
}

// Mode: 聚合输出形态（由配置选择，与输入数据无关）。
type Mode string

const (
	// ModePerNumber: 32 字节区间回显 + 有限步数列表。
	ModePerNumber Mode = "per_number"
	// ModeMaximum: 仅最大有限步数（4 字节）。
	ModeMaximum Mode = "maximum"
	// ModeFiniteOnly: 仅有限步数列表（4*k 字节）。
	ModeFiniteOnly Mode = "finite_only"
)

// Valid 报告 m 是否为已知模式。
func (m Mode) Valid() bool {
	switch m {
	case ModePerNumber, ModeMaximum, ModeFiniteOnly:
		return true
	default:
		return false
	}
}

// 编码宽度（字节）。
const (
	U128Size     = 16
	IntervalSize = 2 * U128Size
	LengthSize   = 4
)

// Result: 聚合结果（AggregateResult）。扫描期增量构建，完成后交由编解码器，随后丢弃。
// - per_number / finite_only 使用 Lengths（按起始值升序、溢出项已剔除）；
// - maximum 使用 Max；
// - Interval 仅 per_number 编码时回显。
type Result struct {
	Mode     Mode
	Interval Interval
	Lengths  []uint32
	Max      uint32
}

// Size 返回该结果按 Mode 编码后的精确字节数。
func (r Result) Size() int {
	switch r.Mode {
	case ModeMaximum:
		return LengthSize
	case ModeFiniteOnly:
		return LengthSize * len(r.Lengths)
	case ModePerNumber:
		return IntervalSize + LengthSize*len(r.Lengths)
	default:
		return 0
	}
}
