package consensus

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PadOptions 每个要点桶的数量与长度约束
type PadOptions struct {
	Min    int
	Max    int
	MinLen int
}

// DefaultPadOptions 3..5 条，每条至少 4 个字符
func DefaultPadOptions() PadOptions {
	return PadOptions{Min: 3, Max: 5, MinLen: 4}
}

func bulletKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// PadBullets 去重（忽略大小写与空白）、丢弃过短条目，
// 不足 Min 时追加 "<bucket> point #<n>" 占位，超过 Max 时截断
func PadBullets(bucket string, items []string, opts PadOptions) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, opts.Max)
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if utf8.RuneCountInString(item) < opts.MinLen {
			continue
		}
		key := bulletKey(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}

	for n := len(out) + 1; len(out) < opts.Min; n++ {
		filler := fmt.Sprintf("%s point #%d", bucket, n)
		key := bulletKey(filler)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, filler)
	}

	if opts.Max > 0 && len(out) > opts.Max {
		out = out[:opts.Max]
	}
	return out
}

// dedupe 去重并截断，不补齐
func dedupe(items []string, max int) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if item == "" {
			continue
		}
		key := bulletKey(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
