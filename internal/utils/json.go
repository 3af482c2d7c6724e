package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ExtractJSON 从文本中提取第一个完整的 JSON 对象
// 找不到闭合的对象时返回原始内容
func ExtractJSON(content string) string {
	start := -1
	end := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range content {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if start >= 0 && end > start {
		return content[start:end]
	}

	return content
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// StripCodeFence 去掉 ```json ... ``` 代码块包裹
// 没有代码块时返回原始内容
func StripCodeFence(content string) string {
	const fence = "```"
	start := strings.Index(content, fence)
	if start < 0 {
		return content
	}

	body := content[start+len(fence):]
	// 跳过语言标识（json、JSON 等）直到换行
	if nl := strings.IndexAny(body, "\r\n"); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl:]
	}
	body = strings.TrimLeft(body, "\r\n")

	end := strings.LastIndex(body, fence)
	if end < 0 {
		klog.V(6).Infof("[StripCodeFence] 代码块未闭合，返回剩余内容")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[:end])
}
