package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrContractViolation 角色输出不符合契约
var ErrContractViolation = errors.New("role output violates contract")

// FieldKind 契约字段类型
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldStringList
	FieldObjectList
	FieldObject
)

// Field 契约中的一个字段
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Example  any
}

// RoleContract 每个角色的结构化输出契约
// 通过 ContractFor 的 switch 获取，不开放外部实现
type RoleContract interface {
	Key() RoleKey
	Title() string
	SchemaName() string
	Fields() []Field
	sealed()
}

type contractBase struct{}

func (contractBase) sealed() {}

func commonFields(recommendation string) []Field {
	return []Field{
		{Name: "summary", Kind: FieldString, Required: true, Example: "One paragraph assessment from this perspective"},
		{Name: "recommendation", Kind: FieldString, Required: true, Example: recommendation},
		{Name: "key_points", Kind: FieldStringList, Required: true, Example: []any{"First key point", "Second key point", "Third key point"}},
	}
}

type strategistContract struct{ contractBase }

func (strategistContract) Key() RoleKey       { return RoleStrategist }
func (strategistContract) Title() string      { return "Strategist" }
func (strategistContract) SchemaName() string { return "council.strategist.v1" }
func (strategistContract) Fields() []Field {
	return append(commonFields("Proceed, pause, or pivot with a short reason"),
		Field{Name: "strategic_options", Kind: FieldStringList, Required: true, Example: []any{"Option A", "Option B"}},
		Field{Name: "time_horizon", Kind: FieldString, Example: "next two quarters"},
	)
}

type riskOfficerContract struct{ contractBase }

func (riskOfficerContract) Key() RoleKey       { return RoleRiskOfficer }
func (riskOfficerContract) Title() string      { return "Risk Officer" }
func (riskOfficerContract) SchemaName() string { return "council.risk_officer.v1" }
func (riskOfficerContract) Fields() []Field {
	return append(commonFields("Accept, mitigate, or reject the exposure"),
		Field{Name: "risks", Kind: FieldObjectList, Required: true, Example: []any{
			map[string]any{"risk": "Main exposure", "severity": "medium", "mitigation": "How to reduce it"},
		}},
		Field{Name: "red_flags", Kind: FieldStringList, Example: []any{"Early warning sign"}},
	)
}

type financialAnalystContract struct{ contractBase }

func (financialAnalystContract) Key() RoleKey       { return RoleFinancialAnalyst }
func (financialAnalystContract) Title() string      { return "Financial Analyst" }
func (financialAnalystContract) SchemaName() string { return "council.financial_analyst.v1" }
func (financialAnalystContract) Fields() []Field {
	return append(commonFields("Fund, defer, or cut with a short reason"),
		Field{Name: "budget_considerations", Kind: FieldStringList, Required: true, Example: []any{"Cost driver to watch"}},
		Field{Name: "financial_impact", Kind: FieldObject, Example: map[string]any{
			"cost": "Expected cost range", "revenue": "Expected revenue effect", "payback": "Payback horizon",
		}},
	)
}

type customerAdvocateContract struct{ contractBase }

func (customerAdvocateContract) Key() RoleKey       { return RoleCustomerAdvocate }
func (customerAdvocateContract) Title() string      { return "Customer Advocate" }
func (customerAdvocateContract) SchemaName() string { return "council.customer_advocate.v1" }
func (customerAdvocateContract) Fields() []Field {
	return append(commonFields("What customers need from this decision"),
		Field{Name: "customer_impact", Kind: FieldStringList, Required: true, Example: []any{"Effect on existing customers"}},
	)
}

type legalAdvisorContract struct{ contractBase }

func (legalAdvisorContract) Key() RoleKey       { return RoleLegalAdvisor }
func (legalAdvisorContract) Title() string      { return "Legal Advisor" }
func (legalAdvisorContract) SchemaName() string { return "council.legal_advisor.v1" }
func (legalAdvisorContract) Fields() []Field {
	return append(commonFields("Legal posture for this decision"),
		Field{Name: "legal_considerations", Kind: FieldStringList, Required: true, Example: []any{"Contract or regulatory point"}},
		Field{Name: "compliance_flags", Kind: FieldStringList, Example: []any{"Compliance item to verify"}},
	)
}

type dataScientistContract struct{ contractBase }

func (dataScientistContract) Key() RoleKey       { return RoleDataScientist }
func (dataScientistContract) Title() string      { return "Data Scientist" }
func (dataScientistContract) SchemaName() string { return "council.data_scientist.v1" }
func (dataScientistContract) Fields() []Field {
	return append(commonFields("What the evidence supports"),
		Field{Name: "metrics_to_track", Kind: FieldStringList, Required: true, Example: []any{"Leading indicator"}},
		Field{Name: "data_gaps", Kind: FieldStringList, Example: []any{"Missing evidence"}},
	)
}

type advisorDigestContract struct{ contractBase }

func (advisorDigestContract) Key() RoleKey       { return RoleAdvisorDigest }
func (advisorDigestContract) Title() string      { return "Advisor Digest" }
func (advisorDigestContract) SchemaName() string { return "council.advisor_digest.v1" }
func (advisorDigestContract) Fields() []Field {
	return []Field{
		{Name: "overall_theme", Kind: FieldString, Required: true, Example: "Common thread across advisors"},
		{Name: "advisor_bullets", Kind: FieldObject, Required: true, Example: map[string]any{
			"STRATEGIST": []any{"Distilled point from this advisor"},
		}},
	}
}

// ContractFor 返回角色的输出契约
func ContractFor(r RoleKey) RoleContract {
	switch r {
	case RoleStrategist:
		return strategistContract{}
	case RoleRiskOfficer:
		return riskOfficerContract{}
	case RoleFinancialAnalyst:
		return financialAnalystContract{}
	case RoleCustomerAdvocate:
		return customerAdvocateContract{}
	case RoleLegalAdvisor:
		return legalAdvisorContract{}
	case RoleDataScientist:
		return dataScientistContract{}
	case RoleAdvisorDigest:
		return advisorDigestContract{}
	default:
		panic(fmt.Sprintf("domain: no contract for role %q", string(r)))
	}
}

// Skeleton 契约的示例对象，带 _schema 标签
func Skeleton(c RoleContract) map[string]any {
	out := map[string]any{"_schema": c.SchemaName()}
	for _, f := range c.Fields() {
		out[f.Name] = f.Example
	}
	return out
}

// SchemaHint 以 JSON 文本形式给出契约示例
func SchemaHint(c RoleContract) string {
	data, err := json.Marshal(Skeleton(c))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ValidateOutput 在反序列化边界校验角色输出
func ValidateOutput(c RoleContract, data map[string]any) error {
	if data == nil {
		return fmt.Errorf("%w: %s: empty object", ErrContractViolation, c.Key())
	}
	var problems []string
	for _, f := range c.Fields() {
		v, ok := data[f.Name]
		if !ok || v == nil {
			if f.Required {
				problems = append(problems, f.Name+" missing")
			}
			continue
		}
		if !kindMatches(f.Kind, v) {
			problems = append(problems, f.Name+" has wrong type")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrContractViolation, c.Key(), strings.Join(problems, "; "))
	}
	return nil
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case FieldString:
		s, ok := v.(string)
		return ok && strings.TrimSpace(s) != ""
	case FieldStringList:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	case FieldObjectList:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if _, ok := item.(map[string]any); !ok {
				return false
			}
		}
		return true
	case FieldObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// StringList 从输出对象中取字符串列表，忽略非字符串元素
func StringList(data map[string]any, name string) []string {
	items, _ := data[name].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
