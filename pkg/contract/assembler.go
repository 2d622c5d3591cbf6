package contract

import (
	"context"
	"io"
)

// Assembler: 将一次运行的 Report 序列装配为单份汇总。
// 约束：
//  1. 按 Interval.Left 严格升序；
//  2. 区间不得重叠（允许空隙：任务可被跳过或来源不连续）；
//  3. 不引入跨运行状态；
//  4. 序列违规返回 ErrSeqInvalid。
type Assembler interface {
	Assemble(ctx context.Context, reports []Report) (io.Reader, error)
}
