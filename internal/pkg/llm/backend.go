package llm

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
)

// NewBackend 按配置构造生成后端，进程启动时调用一次后向下注入
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	name, err := cfg.EffectiveBackend()
	if err != nil {
		return nil, err
	}
	switch name {
	case "mock":
		if cfg.LLM.Backend != "mock" {
			klog.Warningf("[llm] 未配置 API Key，使用 mock 后端")
		}
		return NewMockBackend(), nil
	case "eino":
		return NewEinoBackend(ctx, cfg)
	default:
		return NewClient(cfg), nil
	}
}
