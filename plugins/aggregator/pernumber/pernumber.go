package pernumber

import (
	"iter"

	"stopscan/pkg/contract"
)

// Options: per_number 聚合器当前无可调项；保留结构以便严格解码拒绝未知字段。
type Options struct{}

// Aggregator 保留每个有限结果的步数（按起始值升序），溢出项直接剔除。
// 编码时附带 32 字节区间回显。
type Aggregator struct{}

func New(_ *Options) *Aggregator { return &Aggregator{} }

func (Aggregator) Mode() contract.Mode { return contract.ModePerNumber }

func (Aggregator) Aggregate(iv contract.Interval, outcomes iter.Seq2[contract.U128, contract.Outcome]) (contract.Result, error) {
	r := contract.Result{Mode: contract.ModePerNumber, Interval: iv}
	for _, o := range outcomes {
		if !o.IsFinite() {
			continue
		}
		r.Lengths = append(r.Lengths, o.Length)
		r.Max = max(r.Max, o.Length)
	}
	return r, nil
}
