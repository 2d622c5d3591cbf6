package contract

import "context"

// Report: 结果块的解码视图（调用方侧）。
// Count 为有限结果条数（maximum 模式下为 0，无法从 4 字节推知）。
type Report struct {
	TaskID   TaskID
	Interval Interval
	Mode     Mode
	Count    int
	Max      uint32
	Lengths  []uint32
}

// Decoder: 将结果块（与其控制块）解码为 Report。
// control 用于 finite_only/maximum 模式下恢复区间；per_number 模式下与回显交叉校验。
type Decoder interface {
	Decode(ctx context.Context, id TaskID, control, blob []byte) (Report, error)
}
