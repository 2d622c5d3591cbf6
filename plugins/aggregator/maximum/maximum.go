package maximum

import (
	"iter"

	"stopscan/pkg/contract"
)

// Options: maximum 无可调项。
type Options struct{}

// Aggregator 以 0 为种子对有限步数取最大值。
// 区间内没有任何有限结果时同样得到 0，与“最大步数恰为 0”（区间仅含 1）无法区分。
type Aggregator struct{}

func New(_ *Options) *Aggregator { return &Aggregator{} }

func (Aggregator) Mode() contract.Mode { return contract.ModeMaximum }

func (Aggregator) Aggregate(iv contract.Interval, outcomes iter.Seq2[contract.U128, contract.Outcome]) (contract.Result, error) {
	r := contract.Result{Mode: contract.ModeMaximum, Interval: iv}
	for _, o := range outcomes {
		if o.IsFinite() && o.Length > r.Max {
			r.Max = o.Length
		}
	}
	return r, nil
}
