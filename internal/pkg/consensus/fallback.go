package consensus

import (
	"fmt"
	"math"
	"strings"

	"github.com/weibaohui/decision-council/internal/domain"
)

// Fallback 不调用模型，直接从各角色输出拼出共识
// 决策取影响力最高且给出建议的角色，置信度随覆盖率增长
func Fallback(question string, present map[domain.RoleKey]map[string]any, weights domain.WeightMap) *domain.Consensus {
	ranked := weights.RankedRoles()
	c := &domain.Consensus{AdvisorBullets: map[string][]string{}}

	for _, r := range ranked {
		data, ok := present[r]
		if !ok {
			continue
		}
		if rec := stringField(data, "recommendation"); rec != "" && c.Decision == "" {
			c.Decision = rec
		}
		if points := domain.StringList(data, "key_points"); len(points) > 0 {
			c.ConsensusBullets = append(c.ConsensusBullets, points[0])
		}
	}
	if c.Decision == "" {
		c.Decision = "No clear recommendation; review the advisor notes before deciding."
	}

	titles := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if _, ok := present[r]; ok {
			titles = append(titles, r.Title())
		}
	}
	c.Summary = fmt.Sprintf("Assembled directly from %d advisor opinions (%s) on: %s",
		len(titles), strings.Join(titles, ", "), strings.TrimSpace(question))

	if risk, ok := present[domain.RoleRiskOfficer]; ok {
		if items, ok := risk["risks"].([]any); ok {
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if s := stringField(m, "risk"); s != "" {
						c.TopRisks = append(c.TopRisks, s)
					}
				}
			}
		}
		c.TopRisks = append(c.TopRisks, domain.StringList(risk, "red_flags")...)
	}
	if legal, ok := present[domain.RoleLegalAdvisor]; ok {
		c.Conditions = append(c.Conditions, domain.StringList(legal, "compliance_flags")...)
	}
	if fin, ok := present[domain.RoleFinancialAnalyst]; ok {
		c.Conditions = append(c.Conditions, domain.StringList(fin, "budget_considerations")...)
	}
	if ds, ok := present[domain.RoleDataScientist]; ok {
		c.NextSteps = append(c.NextSteps, domain.StringList(ds, "metrics_to_track")...)
	}

	coverage := float64(len(present)) / float64(len(domain.AllRoles()))
	c.Confidence = math.Round((0.3+0.4*math.Min(coverage, 1))*100) / 100
	return c
}

func stringField(data map[string]any, name string) string {
	s, _ := data[name].(string)
	return strings.TrimSpace(s)
}
