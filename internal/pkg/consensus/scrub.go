package consensus

import (
	"regexp"

	"github.com/weibaohui/decision-council/internal/domain"
)

var (
	// "weight of 0.35"、"weighting: 35%" 之类的数值披露
	numericWeightPattern = regexp.MustCompile(`(?i)\b(weight(?:s|ing|ed)?|emphasis)\s*(?:of|=|:|at)?\s*\(?\d+(?:\.\d+)?(?:\s*%)?\)?`)

	// weights 在复合词中同样替换，如 counterweights、role_weights
	weightsPattern    = regexp.MustCompile(`(?i)weights`)
	weightWordPattern = regexp.MustCompile(`(?i)\bweight\b`)
)

// ScrubText 去掉权重数值披露，并把 weight/weights 替换为 emphasis
func ScrubText(s string) string {
	s = numericWeightPattern.ReplaceAllString(s, "emphasis")
	s = weightsPattern.ReplaceAllString(s, "emphasis")
	return weightWordPattern.ReplaceAllString(s, "emphasis")
}

func scrubList(items []string) []string {
	for i := range items {
		items[i] = ScrubText(items[i])
	}
	return items
}

// Scrub 原地清理共识中所有对外可见的文本
func Scrub(c *domain.Consensus) {
	if c == nil {
		return
	}
	c.Decision = ScrubText(c.Decision)
	c.Summary = ScrubText(c.Summary)
	c.ConsensusBullets = scrubList(c.ConsensusBullets)
	c.TopRisks = scrubList(c.TopRisks)
	c.Conditions = scrubList(c.Conditions)
	c.Disagreements = scrubList(c.Disagreements)
	c.NextSteps = scrubList(c.NextSteps)
	for role, bullets := range c.AdvisorBullets {
		c.AdvisorBullets[role] = scrubList(bullets)
	}
}
