package prompts

import "time"

// LoadResult 加载结果
type LoadResult struct {
	Template *Template
	Path     string
	Error    error
	Action   string // "created", "updated", "failed"
}

// Now 返回当前时间（用于测试）
var Now = func() time.Time {
	return time.Now()
}
