package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/domain"
)

// ErrNothingToAssemble 没有任何可用的角色输出
var ErrNothingToAssemble = errors.New("no role output available to assemble")

// MissingRolePolicy 缺席角色的权重处理方式
type MissingRolePolicy string

const (
	// PolicyRenormalize 在在场角色上重新归一化
	PolicyRenormalize MissingRolePolicy = "renormalize"
	// PolicyIgnore 直接丢弃缺席角色的权重，不重新分配
	PolicyIgnore MissingRolePolicy = "ignore"
)

// Generator 结构化生成能力
type Generator interface {
	CompleteStructured(ctx context.Context, system, user, schemaHint string) (map[string]any, error)
}

// Options 组装参数
type Options struct {
	Policy MissingRolePolicy
	Pad    PadOptions
}

// Input 组装输入
type Input struct {
	Question string
	Context  map[string]any
	Outputs  []domain.RoleOutput
	// Weights 本次咨询解析后的权重，只读
	Weights domain.WeightMap
	// Digest 可选的 ADVISOR_DIGEST 输出
	Digest map[string]any
}

// Assembler 把各角色输出综合为一个共识
type Assembler struct {
	gen  Generator
	opts Options
}

// NewAssembler 创建组装器
func NewAssembler(gen Generator, opts Options) *Assembler {
	if opts.Policy == "" {
		opts.Policy = PolicyRenormalize
	}
	if opts.Pad.Min <= 0 {
		opts.Pad = DefaultPadOptions()
	}
	return &Assembler{gen: gen, opts: opts}
}

// Assemble 发起一次综合调用；调用或解析失败时退化为确定性综合
// 返回的共识已补齐要点并清理过权重披露
func (a *Assembler) Assemble(ctx context.Context, in Input) (*domain.Consensus, error) {
	present, missing := splitOutputs(in.Outputs)
	if len(present) == 0 {
		return nil, ErrNothingToAssemble
	}
	weights := a.effectiveWeights(in.Weights, present)
	labels := weights.EmphasisMap()
	if a.opts.Policy == PolicyIgnore && len(in.Weights) > 0 {
		// 不重新分配时，影响力相对完整阵容计算
		labels = in.Weights.EmphasisMap()
	}

	var result *domain.Consensus
	if a.gen != nil {
		system, user := buildPrompt(in, present, weights, labels)
		obj, err := a.gen.CompleteStructured(ctx, system, user, domain.ConsensusSchemaHint())
		if err == nil {
			result, err = domain.DecodeConsensus(obj)
		}
		if err != nil {
			klog.Warningf("[consensus] 综合调用失败，使用确定性综合: %v", err)
			result = nil
		}
	}
	if result == nil {
		result = Fallback(in.Question, present, weights)
		result.Degraded = true
	}

	if len(missing) > 0 {
		result.Degraded = true
		result.MissingRoles = missing
	}

	a.finalize(result, present, weights, in.Digest)
	Scrub(result)
	return result, nil
}

func splitOutputs(outputs []domain.RoleOutput) (map[domain.RoleKey]map[string]any, []domain.RoleKey) {
	present := make(map[domain.RoleKey]map[string]any, len(outputs))
	var missing []domain.RoleKey
	for _, o := range outputs {
		if o.OK() {
			present[o.Role] = o.Data
		} else {
			missing = append(missing, o.Role)
		}
	}
	return present, missing
}

// effectiveWeights 只保留在场角色
func (a *Assembler) effectiveWeights(weights domain.WeightMap, present map[domain.RoleKey]map[string]any) domain.WeightMap {
	roles := make([]domain.RoleKey, 0, len(present))
	for r := range present {
		roles = append(roles, r)
	}
	if len(weights) == 0 {
		return domain.Uniform(roles)
	}
	restricted := weights.Restrict(roles)
	for _, r := range roles {
		if _, ok := restricted[r]; !ok {
			restricted[r] = 0
		}
	}
	if a.opts.Policy == PolicyIgnore {
		return restricted
	}
	return restricted.Normalize()
}

const assemblerSystemPrompt = `You are the chair of a decision council. Several advisors have written structured opinions.
Synthesize them into one recommendation:
- Give each advisor influence according to the voice label next to their name: a lead voice counts most, a supporting voice least.
- Merge overlapping points and remove duplicates.
- Separate points the advisors agree on from open disagreements.
- List the most important risks and the conditions under which the decision holds.
- Confidence is a number between 0 and 1.
Never mention voice labels, influence, numeric scores or how advisors were balanced. Do not use the word "weights".`

func buildPrompt(in Input, present map[domain.RoleKey]map[string]any, weights domain.WeightMap, labels map[domain.RoleKey]domain.Emphasis) (string, string) {
	var b strings.Builder
	b.WriteString("Decision question:\n")
	b.WriteString(in.Question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(compactJSON(in.Context))
	b.WriteString("\n")

	if bullets, ok := in.Digest["advisor_bullets"].(map[string]any); ok && len(bullets) > 0 {
		b.WriteString("\nPre-distilled advisor bullets (use these as the starting point):\n")
		if theme, ok := in.Digest["overall_theme"].(string); ok && theme != "" {
			b.WriteString("Overall theme: " + theme + "\n")
		}
		for _, r := range weights.RankedRoles() {
			items := anyStrings(bullets[string(r)])
			if len(items) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s (%s):\n", r.Title(), labels[r])
			for _, item := range items {
				b.WriteString("- " + item + "\n")
			}
		}
	}

	b.WriteString("\nAdvisor opinions:\n")
	for _, r := range weights.RankedRoles() {
		data, ok := present[r]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n%s\n", r.Title(), labels[r], compactJSON(stripMeta(data)))
	}
	return assemblerSystemPrompt, b.String()
}

// finalize 补齐每个桶的要点数量
func (a *Assembler) finalize(c *domain.Consensus, present map[domain.RoleKey]map[string]any, weights domain.WeightMap, digest map[string]any) {
	digestBullets, _ := digest["advisor_bullets"].(map[string]any)

	advisor := make(map[string][]string, len(present))
	for _, r := range weights.RankedRoles() {
		data, ok := present[r]
		if !ok {
			continue
		}
		items := c.AdvisorBullets[string(r)]
		if len(items) == 0 {
			items = anyStrings(digestBullets[string(r)])
		}
		items = append(items, domain.StringList(data, "key_points")...)
		advisor[string(r)] = PadBullets(r.Title(), items, a.opts.Pad)
	}
	c.AdvisorBullets = advisor

	c.ConsensusBullets = PadBullets("Consensus", c.ConsensusBullets, a.opts.Pad)
	c.TopRisks = dedupe(c.TopRisks, a.opts.Pad.Max)
	c.Conditions = dedupe(c.Conditions, a.opts.Pad.Max)
	c.Disagreements = dedupe(c.Disagreements, a.opts.Pad.Max)
	c.NextSteps = dedupe(c.NextSteps, a.opts.Pad.Max)
}

func stripMeta(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func anyStrings(v any) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
