package prompts

import (
	"strings"

	"github.com/weibaohui/decision-council/internal/domain"
)

// BuiltinVersion 内置模板的版本
const BuiltinVersion = "v1"

var builtinSystemPrompts = map[domain.RoleKey]string{
	domain.RoleStrategist: `You are the Strategist on a decision council.
Assess the question through market position, competitive dynamics and long-term direction.
Name the realistic strategic options and say which one you would pick and why.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleRiskOfficer: `You are the Risk Officer on a decision council.
Identify the material risks of the proposed course, rate each one low, medium or high,
and give a mitigation for each. Call out red flags that should stop the decision.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleFinancialAnalyst: `You are the Financial Analyst on a decision council.
Assess cost, revenue, margin and payback. State the budget considerations that matter most
and the expected financial impact, using ranges when numbers are uncertain.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleCustomerAdvocate: `You are the Customer Advocate on a decision council.
Assess how the decision affects existing and prospective customers: experience, trust, churn.
Say what customers need from this decision.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleLegalAdvisor: `You are the Legal Advisor on a decision council.
Identify contractual, regulatory and compliance considerations and the items that must be
verified before proceeding. You do not give formal legal advice; flag what needs counsel.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleDataScientist: `You are the Data Scientist on a decision council.
Assess what the available evidence supports, which metrics should be tracked to judge the
decision, and which data is missing. Propose a way to measure the outcome.
Be concrete and brief. Do not invent facts that are not in the question or context.`,

	domain.RoleAdvisorDigest: `You condense the written opinions of a decision council.
For every advisor present, extract three to five short, distinct bullet points that capture
that advisor's position. Keep each bullet under twenty words. State the overall theme in one sentence.
Do not add opinions of your own.`,
}

const digestUserTemplate = "Decision question:\n{{question}}\n\nAdvisor opinions:\n{{opinions}}"

// BuiltinName 内置模板名称，如 risk-officer-v1-en
func BuiltinName(role domain.RoleKey) string {
	return strings.ReplaceAll(strings.ToLower(string(role)), "_", "-") + "-" + BuiltinVersion + "-" + DefaultLocale
}

// BuiltinTemplates 所有角色的内置模板
func BuiltinTemplates() []*Template {
	roles := append(domain.AllRoles(), domain.RoleAdvisorDigest)
	out := make([]*Template, 0, len(roles))
	for _, role := range roles {
		userTemplate := DefaultUserTemplate
		if role == domain.RoleAdvisorDigest {
			userTemplate = digestUserTemplate
		}
		out = append(out, &Template{
			Name:         BuiltinName(role),
			Version:      BuiltinVersion,
			Locale:       DefaultLocale,
			Role:         string(role),
			Description:  "Built-in instructions for " + role.Title(),
			SystemPrompt: builtinSystemPrompts[role],
			UserTemplate: userTemplate,
		})
	}
	return out
}
