package stoptime

import (
	"lukechampine.com/uint128"

	"stopscan/pkg/contract"
)

// oddLimit: 使 3n+1 仍可容纳于 128 位的最大 n，即 floor((2^128-2)/3)。
// 只读常量，初始化后不再修改。
var oddLimit = uint128.Max.Sub64(1).Div64(3)

// Step 对 n 执行一次递推：偶数 n/2，奇数 3n+1。
// 返回 ok=false 表示溢出：
//   - 奇数 n > oddLimit 时 3n+1 超出 128 位；
//   - n == 0 不在定义域内（0/2 == 0 为不动点），按溢出拦截以保证求值终止。
//
// 仅比较回绕结果与 n（c <= n）并不充分：n 位于 [2^127, 2^128/1.5) 时回绕后的值仍大于 n。
func Step(n contract.U128) (contract.U128, bool) {
	if n.IsZero() {
		return uint128.Zero, false
	}
	if n.Lo&1 == 0 {
		return n.Rsh(1), true
	}
	if n.Cmp(oddLimit) > 0 {
		return uint128.Zero, false
	}
	return n.Mul64(3).Add64(1), true
}
