package rate

import (
	"encoding/json"
	"strings"
)

// DeriveKey 从 worker 名称与其原样 Options JSON 推导限流分组键。
// Options 含非空 "rate_key" 时为 worker:rate_key，否则为 worker 名称。
// 分组键同时出现在 gate 日志与有效配置输出中，用于区分同一 worker 的不同限额档位。
func DeriveKey(worker string, raw json.RawMessage) LimitKey {
	var obj struct {
		RateKey string `json:"rate_key"`
	}
	_ = json.Unmarshal(raw, &obj)
	if key := strings.TrimSpace(obj.RateKey); key != "" {
		return LimitKey(worker + ":" + key)
	}
	return LimitKey(worker)
}
