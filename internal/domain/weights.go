package domain

import (
	"math"
	"sort"
)

// WeightTolerance 归一化后权重和允许的误差
const WeightTolerance = 0.01

// WeightMap 角色 -> 权重（0..1，归一化后总和为 1）
// 对外不暴露原始数值，只暴露 Emphasis 的定性描述
type WeightMap map[RoleKey]float64

// Uniform 返回给定角色的均匀分布
func Uniform(roles []RoleKey) WeightMap {
	w := make(WeightMap, len(roles))
	if len(roles) == 0 {
		return w
	}
	share := 1.0 / float64(len(roles))
	for _, r := range roles {
		w[r] = share
	}
	return w
}

// Roles 按字典序返回角色，保证遍历顺序确定
func (w WeightMap) Roles() []RoleKey {
	roles := make([]RoleKey, 0, len(w))
	for r := range w {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Sum 按确定顺序求和
func (w WeightMap) Sum() float64 {
	var sum float64
	for _, r := range w.Roles() {
		sum += w[r]
	}
	return sum
}

func (w WeightMap) Clone() WeightMap {
	out := make(WeightMap, len(w))
	for r, v := range w {
		out[r] = v
	}
	return out
}

// Normalize 返回归一化后的副本；总和约为 0 时退化为均匀分布
func (w WeightMap) Normalize() WeightMap {
	sum := w.Sum()
	if math.Abs(sum) < 1e-9 {
		return Uniform(w.Roles())
	}
	out := make(WeightMap, len(w))
	for r, v := range w {
		out[r] = v / sum
	}
	return out
}

// IsNormalized 总和是否在容差内等于 1
func (w WeightMap) IsNormalized() bool {
	return len(w) > 0 && math.Abs(w.Sum()-1) <= WeightTolerance
}

// Restrict 只保留给定角色
func (w WeightMap) Restrict(roles []RoleKey) WeightMap {
	out := make(WeightMap, len(roles))
	for _, r := range roles {
		if v, ok := w[r]; ok {
			out[r] = v
		}
	}
	return out
}

// RankedRoles 按权重从高到低排序，权重相同按角色名
func (w WeightMap) RankedRoles() []RoleKey {
	roles := w.Roles()
	sort.SliceStable(roles, func(i, j int) bool {
		return w[roles[i]] > w[roles[j]]
	})
	return roles
}

// Emphasis 定性描述角色的影响力
type Emphasis string

const (
	EmphasisLead       Emphasis = "lead voice"
	EmphasisStrong     Emphasis = "strong voice"
	EmphasisStandard   Emphasis = "standard voice"
	EmphasisSupporting Emphasis = "supporting voice"
)

// Emphasis 相对均匀份额给出角色的定性影响力
func (w WeightMap) Emphasis(r RoleKey) Emphasis {
	if len(w) == 0 {
		return EmphasisStandard
	}
	ratio := w[r] * float64(len(w))
	switch {
	case ratio >= 1.35:
		return EmphasisLead
	case ratio >= 1.1:
		return EmphasisStrong
	case ratio >= 0.85:
		return EmphasisStandard
	default:
		return EmphasisSupporting
	}
}

// EmphasisMap 所有角色的定性影响力，可安全对外暴露
func (w WeightMap) EmphasisMap() map[RoleKey]Emphasis {
	out := make(map[RoleKey]Emphasis, len(w))
	for r := range w {
		out[r] = w.Emphasis(r)
	}
	return out
}
