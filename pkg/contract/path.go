package contract

import (
	"path"
	"strings"
)

// NormalizeTaskID 规范化路径，统一为跨平台稳定的 TaskID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeTaskID(p string) TaskID {
	s := strings.ReplaceAll(p, "\\", "/")
	return TaskID(path.Clean(s))
}

// IntervalTaskID 由区间端点生成任务标识，形如 "task-<left>-<right>"（十进制）。
func IntervalTaskID(iv Interval) TaskID {
	return TaskID("task-" + iv.Left.String() + "-" + iv.Right.String())
}

// ResultArtifact 返回任务结果块的工件标识：<task 基名，去扩展名>.bin。
func ResultArtifact(id TaskID) ArtifactID {
	base := path.Base(string(id))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return ArtifactID(base + ".bin")
}
