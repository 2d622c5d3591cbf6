package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"stopscan/pkg/contract"
)

// Options: 预留占位，线性装配无需配置。
type Options struct{}

// Row: 汇总中的单行（JSON Lines）。端点以十进制字符串表示，避免 128 位精度丢失。
type Row struct {
	Task  contract.TaskID `json:"task"`
	Left  string          `json:"left"`
	Right string          `json:"right"`
	Mode  contract.Mode   `json:"mode"`
	Count *int            `json:"count,omitempty"`
	Max   uint32          `json:"max"`
}

// Assembler 按区间顺序线性拼接报告；无状态。
type Assembler struct{}

// New 创建线性装配器。
func New(_ *Options) *Assembler { return &Assembler{} }

// Assemble 按 Left 升序输出每个报告一行（仅空区间后允许同起点）；
// 发现逆序或重叠即返回 ErrSeqInvalid。maximum 模式的行不含 count。
func (a *Assembler) Assemble(ctx context.Context, reports []contract.Report) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := 1; i < len(reports); i++ {
		prev, cur := reports[i-1].Interval, reports[i].Interval
		// 空区间不占位：其后区间可与之同起点
		c := cur.Left.Cmp(prev.Left)
		if c < 0 || (c == 0 && !prev.Empty()) {
			return nil, fmt.Errorf("%w: %s not after %s", contract.ErrSeqInvalid, cur, prev)
		}
		if !prev.Empty() && prev.Right.Cmp(cur.Left) > 0 {
			return nil, fmt.Errorf("%w: %s overlaps %s", contract.ErrSeqInvalid, cur, prev)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range reports {
		row := Row{
			Task:  r.TaskID,
			Left:  r.Interval.Left.String(),
			Right: r.Interval.Right.String(),
			Mode:  r.Mode,
			Max:   r.Max,
		}
		if r.Mode != contract.ModeMaximum {
			n := r.Count
			row.Count = &n
		}
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}

var _ contract.Assembler = (*Assembler)(nil)
