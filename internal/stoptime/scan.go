package stoptime

import (
	"iter"

	"stopscan/pkg/contract"
)

// Scan 返回区间 [Left, Right) 上的惰性结果序列：严格升序、逐值一次、不跳过。
// 序列可重复遍历（每次遍历重新求值，无副作用）；消费方 break 即停止。
// 空区间或非法区间（Right <= Left）不产出任何元素。
func Scan(iv contract.Interval) iter.Seq2[contract.U128, contract.Outcome] {
	return func(yield func(contract.U128, contract.Outcome) bool) {
		for n := iv.Left; n.Cmp(iv.Right) < 0; n = n.Add64(1) {
			if !yield(n, Evaluate(n)) {
				return
			}
		}
	}
}

// Entry: 扫描序列的物化元素。
type Entry struct {
	N       contract.U128
	Outcome contract.Outcome
}

// Collect 物化整段扫描结果（测试与调试工具使用；大区间慎用）。
func Collect(iv contract.Interval) []Entry {
	var out []Entry
	for n, o := range Scan(iv) {
		out = append(out, Entry{N: n, Outcome: o})
	}
	return out
}
