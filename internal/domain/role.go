package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RoleKey 议会角色标识（固定枚举）
type RoleKey string

const (
	RoleStrategist       RoleKey = "STRATEGIST"
	RoleRiskOfficer      RoleKey = "RISK_OFFICER"
	RoleFinancialAnalyst RoleKey = "FINANCIAL_ANALYST"
	RoleCustomerAdvocate RoleKey = "CUSTOMER_ADVOCATE"
	RoleLegalAdvisor     RoleKey = "LEGAL_ADVISOR"
	RoleDataScientist    RoleKey = "DATA_SCIENTIST"

	// RoleAdvisorDigest 二级角色：把其它角色的输出蒸馏为每个角色的要点
	RoleAdvisorDigest RoleKey = "ADVISOR_DIGEST"
)

// ErrUnknownRole 未知角色
var ErrUnknownRole = errors.New("unknown role")

// AllRoles 返回所有可参与投票的议会角色（不含 ADVISOR_DIGEST）
func AllRoles() []RoleKey {
	return []RoleKey{
		RoleStrategist,
		RoleRiskOfficer,
		RoleFinancialAnalyst,
		RoleCustomerAdvocate,
		RoleLegalAdvisor,
		RoleDataScientist,
	}
}

// IsCouncilRole 是否为可出现在阵容中的角色
func (r RoleKey) IsCouncilRole() bool {
	switch r {
	case RoleStrategist, RoleRiskOfficer, RoleFinancialAnalyst,
		RoleCustomerAdvocate, RoleLegalAdvisor, RoleDataScientist:
		return true
	default:
		return false
	}
}

// IsValid 是否为已知角色
func (r RoleKey) IsValid() bool {
	return r.IsCouncilRole() || r == RoleAdvisorDigest
}

func (r RoleKey) String() string {
	return string(r)
}

// Title 面向用户的角色名
func (r RoleKey) Title() string {
	return ContractFor(r).Title()
}

// ParseRoleKey 解析角色标识，大小写与分隔符不敏感（risk-officer / Risk Officer 均可）
func ParseRoleKey(s string) (RoleKey, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	key := RoleKey(normalized)
	if !key.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return key, nil
}

// DefaultBaseline 角色的默认基线权重（未归一化）
func DefaultBaseline(r RoleKey) float64 {
	switch r {
	case RoleStrategist:
		return 1.2
	case RoleRiskOfficer, RoleFinancialAnalyst:
		return 1.0
	case RoleCustomerAdvocate, RoleDataScientist:
		return 0.9
	case RoleLegalAdvisor:
		return 0.8
	default:
		return 0
	}
}
