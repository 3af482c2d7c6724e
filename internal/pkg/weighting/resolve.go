package weighting

import (
	"math"
	"strings"
	"unicode"

	"github.com/weibaohui/decision-council/internal/domain"
)

// Options 权重调整参数
type Options struct {
	// Cap 所有角色累计绝对偏移的上限
	Cap float64
	// PerRoleMax 单个角色相对基线的最大偏移
	PerRoleMax float64
	// MaxHits 最多生效的规则数，<=0 表示不限
	MaxHits int
}

// DefaultOptions cap=0.25, perRoleMax=0.15, 不限命中数
func DefaultOptions() Options {
	return Options{Cap: 0.25, PerRoleMax: 0.15}
}

// Tokenize 把文本切成小写词元，保留字母数字以及 % / -
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '%', '/', '-':
			return false
		}
		return true
	})
}

func matches(keyword string, tokens []string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return false
	}
	for _, tok := range tokens {
		if strings.Contains(tok, keyword) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Resolve 根据请求文本和启发式规则调整基线权重
// 目标角色不在基线中的规则会被跳过，结果只在基线角色上归一化
// 相同输入得到逐位相同的输出
func Resolve(baseline domain.WeightMap, text string, rules []Rule, opts Options) (domain.WeightMap, []Rule) {
	if len(baseline) == 0 {
		return domain.WeightMap{}, nil
	}
	base := baseline.Normalize()
	roles := base.Roles()
	tokens := Tokenize(text)

	deltas := make(map[domain.RoleKey]float64, len(roles))
	var applied []Rule
	for _, rule := range SortRules(rules) {
		if opts.MaxHits > 0 && len(applied) >= opts.MaxHits {
			break
		}
		if _, ok := base[rule.Role]; !ok {
			continue
		}
		if !matches(rule.Keyword, tokens) {
			continue
		}
		deltas[rule.Role] += rule.Delta
		applied = append(applied, rule)
	}
	if len(applied) == 0 {
		return base, nil
	}

	var total float64
	for _, r := range roles {
		total += math.Abs(deltas[r])
	}
	scale := 1.0
	if total > 0 && opts.Cap >= 0 {
		scale = math.Min(1, opts.Cap/total)
	}

	adjusted := make(domain.WeightMap, len(roles))
	for _, r := range roles {
		d := clamp(deltas[r]*scale, -opts.PerRoleMax, opts.PerRoleMax)
		adjusted[r] = clamp(base[r]+d, 0, 1)
	}
	adjusted = adjusted.Normalize()

	return bound(base, adjusted, opts.PerRoleMax), applied
}

// bound 归一化后仍保证 |w-baseline| <= perRoleMax
// 通过向基线收缩实现，凸组合保持总和为 1 且非负
func bound(base, w domain.WeightMap, perRoleMax float64) domain.WeightMap {
	var worst float64
	for _, r := range base.Roles() {
		worst = math.Max(worst, math.Abs(w[r]-base[r]))
	}
	if worst <= perRoleMax || worst == 0 {
		return w
	}
	t := perRoleMax / worst
	out := make(domain.WeightMap, len(base))
	for _, r := range base.Roles() {
		out[r] = base[r] + t*(w[r]-base[r])
	}
	return out
}
