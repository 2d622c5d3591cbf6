package stoptime

import (
	"math"

	"stopscan/pkg/contract"
)

// Evaluate 从 start 反复应用 Step 直至到达 1，统计步数。
// - Evaluate(1) == Finite(0)；
// - 任一步溢出立即返回 Overflowed()，失败的一步不计数；
// - 步数超出 uint32 同样按溢出处理（结果槽位为 4 字节）。
// 除溢出外不设迭代上限。
func Evaluate(start contract.U128) contract.Outcome {
	cur := start
	var length uint32
	for !cur.Equals64(1) {
		next, ok := Step(cur)
		if !ok || length == math.MaxUint32 {
			return contract.Overflowed()
		}
		cur = next
		length++
	}
	return contract.Finite(length)
}
