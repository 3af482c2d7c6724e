package service

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
)

// presetFile presets.toml 的结构
type presetFile struct {
	Presets []domain.Preset `toml:"presets"`
}

// PresetService 阵容预置
type PresetService interface {
	Get(id string) (*domain.Preset, bool)
	List() []domain.Preset
}

// presetService 构造后只读
type presetService struct {
	presets map[string]domain.Preset
}

// BuiltinPresets 内置预置：balanced、finance-first、risk-review
func BuiltinPresets() []domain.Preset {
	seat := func(role domain.RoleKey, weight float64, pos int) domain.LineupRole {
		return domain.LineupRole{RoleKey: role, Weight: weight, Position: pos}
	}
	return []domain.Preset{
		{
			ID:          "balanced",
			Name:        "Balanced council",
			Description: "All six advisors at their default baseline.",
			Lineup:      domain.DefaultLineup(),
		},
		{
			ID:          "finance-first",
			Name:        "Finance first",
			Description: "Budget and profitability questions; the financial analyst leads.",
			Lineup: domain.Lineup{Roles: []domain.LineupRole{
				seat(domain.RoleFinancialAnalyst, 0.35, 1),
				seat(domain.RoleStrategist, 0.20, 2),
				seat(domain.RoleRiskOfficer, 0.15, 3),
				seat(domain.RoleCustomerAdvocate, 0.10, 4),
				seat(domain.RoleLegalAdvisor, 0.10, 5),
				seat(domain.RoleDataScientist, 0.10, 6),
			}},
		},
		{
			ID:          "risk-review",
			Name:        "Risk review",
			Description: "Regulatory or high-exposure decisions; risk and legal lead.",
			Lineup: domain.Lineup{Roles: []domain.LineupRole{
				seat(domain.RoleRiskOfficer, 0.30, 1),
				seat(domain.RoleLegalAdvisor, 0.25, 2),
				seat(domain.RoleFinancialAnalyst, 0.15, 3),
				seat(domain.RoleStrategist, 0.10, 4),
				seat(domain.RoleCustomerAdvocate, 0.10, 5),
				seat(domain.RoleDataScientist, 0.10, 6),
			}},
		},
	}
}

// DecodePresets 解析 TOML 预置，角色名统一规范化
func DecodePresets(data []byte) ([]domain.Preset, error) {
	var file presetFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	for i := range file.Presets {
		p := &file.Presets[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("preset #%d: id is required", i+1)
		}
		for j := range p.Lineup.Roles {
			key, err := domain.ParseRoleKey(string(p.Lineup.Roles[j].RoleKey))
			if err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.ID, err)
			}
			p.Lineup.Roles[j].RoleKey = key
		}
		if err := p.Lineup.Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.ID, err)
		}
	}
	return file.Presets, nil
}

// NewPresetService 加载内置预置，path 非空时用文件中的同名预置覆盖
func NewPresetService(path string) (PresetService, error) {
	s := &presetService{presets: make(map[string]domain.Preset)}
	for _, p := range BuiltinPresets() {
		s.presets[p.ID] = p
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			klog.V(6).Infof("[presets] 预置文件不存在，仅使用内置预置: %s", path)
			return s, nil
		}
		return nil, fmt.Errorf("read presets %s: %w", path, err)
	}
	loaded, err := DecodePresets(data)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		s.presets[p.ID] = p
	}
	klog.V(6).Infof("[presets] 加载预置: path=%s, count=%d", path, len(loaded))
	return s, nil
}

func (s *presetService) Get(id string) (*domain.Preset, bool) {
	p, ok := s.presets[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	return &p, true
}

// List 按 ID 排序
func (s *presetService) List() []domain.Preset {
	out := make([]domain.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
