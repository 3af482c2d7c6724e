package weighting

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weibaohui/decision-council/internal/domain"
)

// ErrInvalidRule 规则不合法
var ErrInvalidRule = errors.New("invalid heuristic rule")

// AnyLocale 对所有语言生效的规则
const AnyLocale = "*"

// Rule 启发式规则：关键词出现时调整目标角色的权重
type Rule struct {
	Locale   string         `yaml:"locale" json:"locale"`
	Keyword  string         `yaml:"keyword" json:"keyword"`
	Role     domain.RoleKey `yaml:"role" json:"role"`
	Delta    float64        `yaml:"delta" json:"-"`
	Priority int            `yaml:"priority" json:"priority"`
}

// Validate 规范化并校验规则
func (r *Rule) Validate() error {
	r.Keyword = strings.ToLower(strings.TrimSpace(r.Keyword))
	if r.Keyword == "" {
		return fmt.Errorf("%w: keyword is required", ErrInvalidRule)
	}
	// 关键词按单个词元匹配，含空格等分隔符的关键词永远不会命中
	if tokens := Tokenize(r.Keyword); len(tokens) != 1 || tokens[0] != r.Keyword {
		return fmt.Errorf("%w: keyword %q must be a single word", ErrInvalidRule, r.Keyword)
	}
	role, err := domain.ParseRoleKey(string(r.Role))
	if err != nil || !role.IsCouncilRole() {
		return fmt.Errorf("%w: keyword %q: unknown role %q", ErrInvalidRule, r.Keyword, r.Role)
	}
	r.Role = role
	if r.Locale == "" {
		r.Locale = AnyLocale
	}
	r.Locale = strings.ToLower(r.Locale)
	return nil
}

// AppliesTo 规则是否适用于该语言
func (r Rule) AppliesTo(locale string) bool {
	return r.Locale == AnyLocale || r.Locale == "" || strings.EqualFold(r.Locale, locale)
}

// SortRules 按优先级降序，再按关键词、角色升序，返回副本
func SortRules(rules []Rule) []Rule {
	out := append([]Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Delta < out[j].Delta
	})
	return out
}

// FilterLocale 只保留适用于该语言的规则
func FilterLocale(rules []Rule, locale string) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppliesTo(locale) {
			out = append(out, r)
		}
	}
	return out
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules 解析 YAML 规则文件内容
func ParseRules(content []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	for i := range f.Rules {
		if err := f.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return f.Rules, nil
}

// BuiltinRules 内置英文规则
func BuiltinRules() []Rule {
	rules := []Rule{
		{Keyword: "budget", Role: domain.RoleFinancialAnalyst, Delta: 0.10, Priority: 10},
		{Keyword: "profit", Role: domain.RoleFinancialAnalyst, Delta: 0.10, Priority: 10},
		{Keyword: "cost", Role: domain.RoleFinancialAnalyst, Delta: 0.08, Priority: 8},
		{Keyword: "revenue", Role: domain.RoleFinancialAnalyst, Delta: 0.08, Priority: 8},
		{Keyword: "margin", Role: domain.RoleFinancialAnalyst, Delta: 0.06, Priority: 6},
		{Keyword: "risk", Role: domain.RoleRiskOfficer, Delta: 0.10, Priority: 10},
		{Keyword: "exposure", Role: domain.RoleRiskOfficer, Delta: 0.06, Priority: 6},
		{Keyword: "compliance", Role: domain.RoleLegalAdvisor, Delta: 0.10, Priority: 10},
		{Keyword: "regulat", Role: domain.RoleLegalAdvisor, Delta: 0.08, Priority: 8},
		{Keyword: "contract", Role: domain.RoleLegalAdvisor, Delta: 0.06, Priority: 6},
		{Keyword: "gdpr", Role: domain.RoleLegalAdvisor, Delta: 0.08, Priority: 8},
		{Keyword: "customer", Role: domain.RoleCustomerAdvocate, Delta: 0.10, Priority: 10},
		{Keyword: "churn", Role: domain.RoleCustomerAdvocate, Delta: 0.08, Priority: 8},
		{Keyword: "nps", Role: domain.RoleCustomerAdvocate, Delta: 0.06, Priority: 6},
		{Keyword: "data", Role: domain.RoleDataScientist, Delta: 0.08, Priority: 8},
		{Keyword: "metric", Role: domain.RoleDataScientist, Delta: 0.08, Priority: 8},
		{Keyword: "%", Role: domain.RoleDataScientist, Delta: 0.04, Priority: 4},
		{Keyword: "a/b", Role: domain.RoleDataScientist, Delta: 0.06, Priority: 6},
		{Keyword: "market", Role: domain.RoleStrategist, Delta: 0.08, Priority: 8},
		{Keyword: "growth", Role: domain.RoleStrategist, Delta: 0.08, Priority: 8},
		{Keyword: "competit", Role: domain.RoleStrategist, Delta: 0.06, Priority: 6},
	}
	for i := range rules {
		rules[i].Locale = "en"
	}
	return rules
}
