package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrEmptyLineup 阵容为空
	ErrEmptyLineup = errors.New("lineup has no roles")
	// ErrDuplicateRole 阵容中角色重复
	ErrDuplicateRole = errors.New("duplicate role in lineup")
	// ErrNegativeWeight 权重为负
	ErrNegativeWeight = errors.New("negative role weight")
)

// LineupRole 阵容中的一个席位
type LineupRole struct {
	RoleKey  RoleKey `json:"role_key" toml:"role_key"`
	Weight   float64 `json:"weight" toml:"weight"`
	Position int     `json:"position" toml:"position"`
}

// Lineup 一次咨询的议会阵容
type Lineup struct {
	Roles []LineupRole `json:"roles" toml:"roles"`
}

// Preset 预置阵容
type Preset struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Description string `json:"description" toml:"description"`
	Lineup      Lineup `json:"lineup" toml:"lineup"`
}

// Validate 校验阵容：非空、角色合法且不重复、权重非负
func (l Lineup) Validate() error {
	if len(l.Roles) == 0 {
		return ErrEmptyLineup
	}
	seen := make(map[RoleKey]bool, len(l.Roles))
	for _, r := range l.Roles {
		if !r.RoleKey.IsCouncilRole() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, string(r.RoleKey))
		}
		if seen[r.RoleKey] {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.RoleKey)
		}
		if r.Weight < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeWeight, r.RoleKey)
		}
		seen[r.RoleKey] = true
	}
	return nil
}

// Ordered 按 position 排序，position 相同按角色名
func (l Lineup) Ordered() []LineupRole {
	out := append([]LineupRole(nil), l.Roles...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].RoleKey < out[j].RoleKey
	})
	return out
}

// RoleKeys 按顺序返回角色
func (l Lineup) RoleKeys() []RoleKey {
	ordered := l.Ordered()
	keys := make([]RoleKey, 0, len(ordered))
	for _, r := range ordered {
		keys = append(keys, r.RoleKey)
	}
	return keys
}

// Baseline 由阵容得到归一化的基线权重
// 权重全为 0 时使用角色默认基线
func (l Lineup) Baseline() (WeightMap, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	w := make(WeightMap, len(l.Roles))
	var total float64
	for _, r := range l.Roles {
		w[r.RoleKey] = r.Weight
		total += r.Weight
	}
	if total == 0 {
		for _, r := range l.Roles {
			w[r.RoleKey] = DefaultBaseline(r.RoleKey)
		}
	}
	return w.Normalize(), nil
}

// DefaultLineup 全部角色、默认基线
func DefaultLineup() Lineup {
	roles := AllRoles()
	l := Lineup{Roles: make([]LineupRole, 0, len(roles))}
	for i, r := range roles {
		l.Roles = append(l.Roles, LineupRole{RoleKey: r, Weight: DefaultBaseline(r), Position: i + 1})
	}
	return l
}
