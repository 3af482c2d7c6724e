package llm

import (
	"math"
	"strings"

	"github.com/weibaohui/decision-council/config"
)

// Price 每千 token 的美元价格
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PriceTable 模型 -> 价格
type PriceTable map[string]Price

// DefaultPrices 内置价格表
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"gpt-4.1-mini":  {InputPer1K: 0.0004, OutputPer1K: 0.0016},
		"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		"mock":          {},
	}
}

// NewPriceTable 内置价格表叠加配置中的价格
func NewPriceTable(cfg *config.Config) PriceTable {
	table := DefaultPrices()
	for name, p := range cfg.LLM.Prices {
		table[strings.ToLower(name)] = Price{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	return table
}

// lookup 精确匹配，否则取最长的前缀匹配（gpt-4o-mini-2024-07-18 -> gpt-4o-mini）
func (t PriceTable) lookup(model string) (Price, bool) {
	model = strings.ToLower(model)
	if p, ok := t[model]; ok {
		return p, true
	}
	best := ""
	for name := range t {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Price{}, false
	}
	return t[best], true
}

// Estimate 估算一次调用的美元成本，未知模型返回 0
func (t PriceTable) Estimate(model string, promptTokens, completionTokens int) float64 {
	p, ok := t.lookup(model)
	if !ok {
		return 0
	}
	cost := float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
	// 保留到 1e-8 美元，避免浮点尾数
	return math.Round(cost*1e8) / 1e8
}
