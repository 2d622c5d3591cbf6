package contract

import "context"

// Source: 任务来源抽象（控制块文件/目录/STDIN，或内存中按跨度生成）。
// 约束：
// 1) 按任务维度回调，yield 的 control 在回调返回后不得再被修改；
// 2) TaskID 稳定且去平台差异化；
// 3) 不解析控制块内容，仅提供字节；
// 4) 不在内部起并发；产出顺序稳定。
type Source interface {
	Iterate(ctx context.Context, roots []string, yield func(id TaskID, control []byte) error) error
}
