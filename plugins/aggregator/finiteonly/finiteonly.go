package finiteonly

import (
	"iter"

	"stopscan/pkg/contract"
)

// Options: finite_only 无可调项。
type Options struct{}

// Aggregator 与 per_number 选取相同元素（仅有限步数、溢出剔除），
// 区别只在编码：不回显区间，输出恰为 4*k 字节。
type Aggregator struct{}

func New(_ *Options) *Aggregator { return &Aggregator{} }

func (Aggregator) Mode() contract.Mode { return contract.ModeFiniteOnly }

func (Aggregator) Aggregate(iv contract.Interval, outcomes iter.Seq2[contract.U128, contract.Outcome]) (contract.Result, error) {
	r := contract.Result{Mode: contract.ModeFiniteOnly, Interval: iv}
	for _, o := range outcomes {
		if o.Overflow {
			continue
		}
		r.Lengths = append(r.Lengths, o.Length)
		r.Max = max(r.Max, o.Length)
	}
	return r, nil
}
