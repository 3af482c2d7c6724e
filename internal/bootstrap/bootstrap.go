package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/eventbus"
	"github.com/weibaohui/decision-council/internal/pkg/audit"
	"github.com/weibaohui/decision-council/internal/pkg/database"
	"github.com/weibaohui/decision-council/internal/pkg/llm"
	"github.com/weibaohui/decision-council/internal/pkg/prompts"
	"github.com/weibaohui/decision-council/internal/pkg/ratelimit"
	"github.com/weibaohui/decision-council/internal/pkg/weighting"
	"github.com/weibaohui/decision-council/internal/repository"
	"github.com/weibaohui/decision-council/internal/service"
	"github.com/weibaohui/decision-council/internal/service/orchestrator"
	"github.com/weibaohui/decision-council/internal/subscriber"
)

const counterPurgeInterval = time.Minute

// App 装配完成的服务依赖
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Council      service.CouncilService
	Audit        service.AuditService
	Cost         service.CostService
	Orchestrator *orchestrator.Orchestrator
	Backend      string

	closers []func()
}

// New 按配置装配全部组件，配置不可用时返回 ConfigurationError
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if cfg.Database.Type != "none" {
		db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		app.DB = db
	}

	backend, err := llm.NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Backend = backend.Name()

	var observer llm.UsageObserver
	if app.DB != nil {
		app.Cost = service.NewCostService(repository.NewCostRepository(app.DB))
		observer = app.Cost
	}
	gen := llm.NewStructuredClient(backend, llm.StructuredOptions{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Prices:      llm.NewPriceTable(cfg),
		Observer:    observer,
	})

	promptManager, err := prompts.NewManager(&prompts.Config{Dir: cfg.Prompts.Dir, AutoReload: cfg.Prompts.Watch})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, promptManager.Stop)

	rules, err := app.ruleSource(cfg)
	if err != nil {
		return nil, err
	}

	presets, err := service.NewPresetService(cfg.Presets.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	bus := eventbus.NewCouncilEventBus()
	if err := app.auditTrail(cfg, bus); err != nil {
		return nil, err
	}

	orch, err := orchestrator.NewOrchestrator(cfg.Council.MaxWorkers)
	if err != nil {
		return nil, err
	}
	app.Orchestrator = orch
	app.closers = append(app.closers, orch.Stop)

	deps := service.CouncilDeps{
		Config:    cfg,
		Generator: gen,
		Prompts:   promptManager,
		Runner:    orch,
		Rules:     rules,
		Presets:   presets,
		Bus:       bus,
	}
	if limiter := app.limiter(cfg); limiter != nil {
		deps.Limiter = limiter
	}
	if app.DB != nil {
		deps.Consultations = repository.NewConsultationRepository(app.DB)
		deps.RoleOutputs = repository.NewRoleOutputRepository(app.DB)
	}
	app.Council, err = service.NewCouncilService(deps)
	if err != nil {
		return nil, err
	}

	klog.V(6).Infof("[bootstrap] 装配完成: backend=%s, database=%s, audit=%v", app.Backend, cfg.Database.Type, app.Audit != nil)
	ok = true
	return app, nil
}

// ruleSource 内置规则 + 规则文件 + 数据库规则
func (a *App) ruleSource(cfg *config.Config) (weighting.Source, error) {
	sources := weighting.MultiSource{weighting.Builtin()}
	if cfg.Rules.Path != "" {
		fileSource, err := weighting.NewFileSource(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		if cfg.Rules.Watch {
			if _, statErr := os.Stat(cfg.Rules.Path); statErr == nil {
				if err := fileSource.Watch(); err != nil {
					klog.Warningf("[bootstrap] 规则文件热加载启动失败: %v", err)
				}
			}
		}
		a.closers = append(a.closers, fileSource.Close)
		sources = append(sources, fileSource)
	}
	if a.DB != nil {
		sources = append(sources, repository.NewHeuristicRuleRepository(a.DB))
	}
	return sources, nil
}

// limiter 限流关闭时返回 nil；数据库存储不可用时退回内存存储
func (a *App) limiter(cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled || rl.Store == "none" {
		return nil
	}
	windows := []ratelimit.Window{
		{Name: "short", Length: rl.ShortWindow, Limit: int64(rl.ShortLimit)},
		{Name: "long", Length: rl.LongWindow, Limit: int64(rl.LongLimit)},
	}

	var store ratelimit.Store
	switch {
	case rl.Store == "database" && a.DB != nil:
		counters := repository.NewRateLimitRepository(a.DB)
		store = counters
		a.startCounterPurge(counters)
	case rl.Store == "database":
		klog.Warningf("[bootstrap] 数据库未启用，限流计数改用内存存储")
		store = ratelimit.NewMemoryStore()
	default:
		store = ratelimit.NewMemoryStore()
	}
	return ratelimit.NewLimiter(store, windows)
}

// startCounterPurge 定期清理过期的限流计数
func (a *App) startCounterPurge(counters repository.RateLimitRepository) {
	ctx, cancel := context.WithCancel(context.Background())
	a.closers = append(a.closers, cancel)
	go func() {
		ticker := time.NewTicker(counterPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := counters.PurgeExpired(ctx); err != nil {
					klog.Warningf("[bootstrap] 清理限流计数失败: %v", err)
				} else if n > 0 {
					klog.V(6).Infof("[bootstrap] 清理过期限流计数 %d 条", n)
				}
			}
		}
	}()
}

// auditTrail 签名审计需要数据库存储
func (a *App) auditTrail(cfg *config.Config, bus *eventbus.CouncilEventBus) error {
	if !cfg.Audit.Enabled {
		return nil
	}
	if a.DB == nil {
		klog.Warningf("[bootstrap] 数据库未启用，审计轨迹关闭")
		return nil
	}
	signer, err := audit.NewSigner(cfg.Audit.HMACKey)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	auditRepo := repository.NewAuditRepository(a.DB)
	trail := audit.NewTrail(auditRepo, signer, cfg.Audit.QueueSize)
	a.closers = append(a.closers, trail.Close)
	subscriber.NewAuditEventSubscriber(trail).Register(bus)
	a.Audit = service.NewAuditService(auditRepo, signer)
	return nil
}

// Close 逆序释放资源，审计队列在编排器之后排空
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
