package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/eventbus"
	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/consensus"
	"github.com/weibaohui/decision-council/internal/pkg/llm"
	"github.com/weibaohui/decision-council/internal/pkg/prompts"
	"github.com/weibaohui/decision-council/internal/pkg/ratelimit"
	"github.com/weibaohui/decision-council/internal/pkg/weighting"
	"github.com/weibaohui/decision-council/internal/repository"
	"github.com/weibaohui/decision-council/internal/service/orchestrator"
	"github.com/weibaohui/decision-council/internal/utils"
)

const assemblerLabel = "assembler"

// ConsultRequest 一次咨询请求，lineup 与 preset_id 二选一
type ConsultRequest struct {
	Question     string         `json:"question"`
	Context      map[string]any `json:"context,omitempty"`
	Lineup       *domain.Lineup `json:"lineup,omitempty"`
	PresetID     string         `json:"preset_id,omitempty"`
	Locale       string         `json:"locale,omitempty"`
	Origin       string         `json:"-"`
	SessionToken string         `json:"-"`
}

// AppliedRule 命中的启发式规则，只暴露关键词与角色
type AppliedRule struct {
	Keyword string         `json:"keyword"`
	Role    domain.RoleKey `json:"role"`
}

// ConsultResponse 咨询结果
type ConsultResponse struct {
	ID           string                             `json:"id"`
	Status       string                             `json:"status"`
	Question     string                             `json:"question,omitempty"`
	PresetID     string                             `json:"preset_id,omitempty"`
	Consensus    *domain.Consensus                  `json:"consensus,omitempty"`
	RoleOutputs  []domain.RoleOutput                `json:"role_outputs"`
	Emphasis     map[domain.RoleKey]domain.Emphasis `json:"emphasis,omitempty"`
	AppliedRules []AppliedRule                      `json:"applied_rules,omitempty"`
	Backend      string                             `json:"backend,omitempty"`
	CreatedAt    time.Time                          `json:"created_at"`
	CompletedAt  *time.Time                         `json:"completed_at,omitempty"`
}

// WeightPreview 权重解析预览，只给出定性影响力
type WeightPreview struct {
	Roles        []domain.RoleKey                   `json:"roles"`
	Emphasis     map[domain.RoleKey]domain.Emphasis `json:"emphasis"`
	AppliedRules []AppliedRule                      `json:"applied_rules"`
}

// RoleInfo 角色目录
type RoleInfo struct {
	Key    domain.RoleKey `json:"key"`
	Title  string         `json:"title"`
	Schema string         `json:"schema"`
	Fields []string       `json:"fields"`
}

// CouncilService 议会咨询服务
type CouncilService interface {
	Consult(ctx context.Context, req ConsultRequest) (*ConsultResponse, error)
	Get(ctx context.Context, id string) (*ConsultResponse, error)
	Preview(ctx context.Context, req ConsultRequest) (*WeightPreview, error)
	Roles() []RoleInfo
	Presets() []domain.Preset
}

// Generator 带用量信息的结构化生成
type Generator interface {
	consensus.Generator
	Complete(ctx context.Context, system, user, schemaHint string) (*llm.StructuredResult, error)
	BackendName() string
}

// InstructionSource 角色指令来源
type InstructionSource interface {
	GetRoleInstructions(role domain.RoleKey, packVersion, locale string) (string, string, error)
}

// Admitter 准入控制
type Admitter interface {
	Admit(ctx context.Context, callerKey string) ratelimit.Decision
}

// Runner 并发执行一组任务
type Runner interface {
	Run(ctx context.Context, jobs []orchestrator.Job) []orchestrator.JobResult
}

// CouncilDeps 显式注入的依赖，可选项为 nil 时对应功能关闭
type CouncilDeps struct {
	Config        *config.Config
	Generator     Generator
	Prompts       InstructionSource
	Runner        Runner
	Rules         weighting.Source // 可选，默认内置规则
	Limiter       Admitter         // 可选
	Presets       PresetService    // 可选，默认内置预置
	Consultations repository.ConsultationRepository
	RoleOutputs   repository.RoleOutputRepository
	Bus           *eventbus.CouncilEventBus
}

type councilService struct {
	cfg           *config.Config
	gen           Generator
	prompts       InstructionSource
	runner        Runner
	rules         weighting.Source
	limiter       Admitter
	presets       PresetService
	consultations repository.ConsultationRepository
	roleOutputs   repository.RoleOutputRepository
	bus           *eventbus.CouncilEventBus
	assembler     *consensus.Assembler
	weighting     weighting.Options
	now           func() time.Time
}

// NewCouncilService 创建议会服务，缺少必需依赖时返回 ConfigurationError
func NewCouncilService(deps CouncilDeps) (CouncilService, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("%w: council config is nil", config.ErrConfiguration)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: no generation backend", config.ErrConfiguration)
	case deps.Prompts == nil:
		return nil, fmt.Errorf("%w: no prompt registry", config.ErrConfiguration)
	case deps.Runner == nil:
		return nil, fmt.Errorf("%w: no job runner", config.ErrConfiguration)
	}

	s := &councilService{
		cfg:           deps.Config,
		gen:           deps.Generator,
		prompts:       deps.Prompts,
		runner:        deps.Runner,
		rules:         deps.Rules,
		limiter:       deps.Limiter,
		presets:       deps.Presets,
		consultations: deps.Consultations,
		roleOutputs:   deps.RoleOutputs,
		bus:           deps.Bus,
		now:           time.Now,
	}
	if s.rules == nil {
		s.rules = weighting.Builtin()
	}
	if s.presets == nil {
		s.presets, _ = NewPresetService("")
	}

	council := deps.Config.Council
	s.weighting = weighting.Options{
		Cap:        council.Weighting.Cap,
		PerRoleMax: council.Weighting.PerRoleMax,
		MaxHits:    council.Weighting.MaxHits,
	}
	s.assembler = consensus.NewAssembler(deps.Generator, consensus.Options{
		Policy: consensus.MissingRolePolicy(council.MissingRolePolicy),
		Pad: consensus.PadOptions{
			Min:    council.Bullets.Min,
			Max:    council.Bullets.Max,
			MinLen: council.Bullets.MinLen,
		},
	})
	return s, nil
}

// Consult 准入 → 权重解析 → 角色并发 → 可选摘要 → 综合 → 持久化
func (s *councilService) Consult(ctx context.Context, req ConsultRequest) (*ConsultResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, invalidRequest("question is required")
	}
	lineup, presetID, err := s.resolveLineup(req)
	if err != nil {
		return nil, err
	}

	callerKey := ratelimit.CallerKey(req.Origin, req.SessionToken)
	if s.limiter != nil {
		decision := s.limiter.Admit(ctx, callerKey)
		if !decision.Allowed {
			klog.V(6).Infof("[council] 拒绝准入: window=%s, retry_after=%ds", decision.Window, decision.RetryAfterSeconds())
			s.publish(ctx, eventbus.CouncilEvent{
				Type:      eventbus.CouncilEventAdmissionDenied,
				CallerKey: callerKey,
				Payload:   map[string]any{"window": decision.Window, "retry_after": decision.RetryAfterSeconds()},
			})
			return nil, &ConsultError{
				Kind:       domain.KindAdmissionDenied,
				Message:    "too many consultations, retry later",
				RetryAfter: decision.RetryAfterSeconds(),
			}
		}
	}

	locale := s.locale(req.Locale)
	weights, applied, err := s.resolveWeights(ctx, lineup, question, req.Context, locale)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(WithConsultationID(ctx, id), s.cfg.Council.Deadline)
	defer cancel()

	record := &model.Consultation{
		ID:            id,
		CallerKey:     callerKey,
		Question:      question,
		Context:       utils.ToJSON(req.Context),
		Lineup:        lineupJSON(lineup),
		PresetID:      presetID,
		Status:        model.ConsultationStatusRunning,
		Emphasis:      utils.ToJSON(weights.EmphasisMap()),
		AppliedRules:  utils.ToJSON(applied),
		SchemaVersion: s.cfg.Council.SchemaVersion,
		PromptVersion: s.cfg.Council.PackVersion,
		Locale:        locale,
		Backend:       s.gen.BackendName(),
		CreatedAt:     s.now().UTC(),
	}
	s.saveConsultation(ctx, record)
	klog.V(6).Infof("[council] 开始咨询: id=%s, roles=%d, rules=%d", id, len(lineup.Roles), len(applied))

	vars := prompts.Vars{Question: question, Context: contextText(req.Context)}
	outputs := s.fanOut(ctx, id, callerKey, lineup, vars, locale)

	succeeded := 0
	for _, o := range outputs {
		if o.OK() {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, s.fail(ctx, record, outputs, &ConsultError{
			Kind:    domain.KindBackendUnavailable,
			Message: "all advisory roles failed",
		})
	}

	digest := s.digest(ctx, id, callerKey, vars, outputs, locale)

	result, err := s.assembler.Assemble(llm.WithLabel(ctx, assemblerLabel), consensus.Input{
		Question: question,
		Context:  req.Context,
		Outputs:  outputs,
		Weights:  weights,
		Digest:   digest,
	})
	if err != nil {
		return nil, s.fail(ctx, record, outputs, &ConsultError{Kind: domain.KindUnparsableOutput, Message: "consensus could not be assembled"})
	}

	status := model.ConsultationStatusCompleted
	if result.Degraded || len(result.MissingRoles) > 0 {
		status = model.ConsultationStatusDegraded
	}
	completedAt := s.now().UTC()
	record.Status = status
	record.Consensus = utils.ToJSON(result)
	record.CompletedAt = &completedAt
	s.saveConsultation(ctx, record)

	s.publish(ctx, eventbus.CouncilEvent{
		Type:           eventbus.CouncilEventConsensusAssembled,
		ConsultationID: id,
		CallerKey:      callerKey,
		Payload: map[string]any{
			"status":        status,
			"decision":      result.Decision,
			"confidence":    result.Confidence,
			"degraded":      result.Degraded,
			"missing_roles": result.MissingRoles,
		},
	})
	klog.V(6).Infof("[council] 咨询完成: id=%s, status=%s, ok=%d/%d", id, status, succeeded, len(outputs))

	return &ConsultResponse{
		ID:           id,
		Status:       status,
		Question:     question,
		PresetID:     presetID,
		Consensus:    result,
		RoleOutputs:  outputs,
		Emphasis:     weights.EmphasisMap(),
		AppliedRules: applied,
		Backend:      record.Backend,
		CreatedAt:    record.CreatedAt,
		CompletedAt:  record.CompletedAt,
	}, nil
}

// Preview 只做权重解析，不调用后端
func (s *councilService) Preview(ctx context.Context, req ConsultRequest) (*WeightPreview, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, invalidRequest("question is required")
	}
	lineup, _, err := s.resolveLineup(req)
	if err != nil {
		return nil, err
	}
	weights, applied, err := s.resolveWeights(ctx, lineup, question, req.Context, s.locale(req.Locale))
	if err != nil {
		return nil, err
	}
	return &WeightPreview{
		Roles:        weights.RankedRoles(),
		Emphasis:     weights.EmphasisMap(),
		AppliedRules: applied,
	}, nil
}

func (s *councilService) Get(ctx context.Context, id string) (*ConsultResponse, error) {
	if s.consultations == nil {
		return nil, notFound("consultation %s not found: persistence is disabled", id)
	}
	record, err := s.consultations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("consultation %s not found", id)
		}
		return nil, err
	}

	resp := &ConsultResponse{
		ID:          record.ID,
		Status:      record.Status,
		Question:    record.Question,
		PresetID:    record.PresetID,
		Backend:     record.Backend,
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
		RoleOutputs: []domain.RoleOutput{},
	}
	decodeJSONField(record.ID, "consensus", record.Consensus, &resp.Consensus)
	decodeJSONField(record.ID, "emphasis", record.Emphasis, &resp.Emphasis)
	decodeJSONField(record.ID, "applied_rules", record.AppliedRules, &resp.AppliedRules)

	if s.roleOutputs != nil {
		rows, err := s.roleOutputs.GetByConsultation(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			resp.RoleOutputs = append(resp.RoleOutputs, roleOutputFromRecord(row))
		}
	}
	return resp, nil
}

func (s *councilService) Roles() []RoleInfo {
	roles := domain.AllRoles()
	out := make([]RoleInfo, 0, len(roles))
	for _, r := range roles {
		c := domain.ContractFor(r)
		info := RoleInfo{Key: r, Title: c.Title(), Schema: c.SchemaName()}
		for _, f := range c.Fields() {
			info.Fields = append(info.Fields, f.Name)
		}
		out = append(out, info)
	}
	return out
}

func (s *councilService) Presets() []domain.Preset {
	return s.presets.List()
}

// resolveLineup 显式阵容优先，否则按 preset_id 查找
func (s *councilService) resolveLineup(req ConsultRequest) (domain.Lineup, string, error) {
	if req.Lineup != nil && len(req.Lineup.Roles) > 0 {
		lineup := domain.Lineup{Roles: make([]domain.LineupRole, 0, len(req.Lineup.Roles))}
		for _, r := range req.Lineup.Roles {
			key, err := domain.ParseRoleKey(string(r.RoleKey))
			if err != nil {
				return domain.Lineup{}, "", invalidRequest("invalid lineup: %v", err)
			}
			r.RoleKey = key
			lineup.Roles = append(lineup.Roles, r)
		}
		if err := lineup.Validate(); err != nil {
			return domain.Lineup{}, "", invalidRequest("invalid lineup: %v", err)
		}
		return lineup, "", nil
	}
	if id := strings.TrimSpace(req.PresetID); id != "" {
		preset, ok := s.presets.Get(id)
		if !ok {
			return domain.Lineup{}, "", invalidRequest("unknown preset_id %q", id)
		}
		return preset.Lineup, preset.ID, nil
	}
	return domain.Lineup{}, "", invalidRequest("lineup or preset_id is required")
}

// resolveWeights 规则来源出错时退回无规则的基线权重
func (s *councilService) resolveWeights(ctx context.Context, lineup domain.Lineup, question string, reqContext map[string]any, locale string) (domain.WeightMap, []AppliedRule, error) {
	baseline, err := lineup.Baseline()
	if err != nil {
		return nil, nil, invalidRequest("invalid lineup: %v", err)
	}
	rules, err := s.rules.Rules(ctx, locale)
	if err != nil {
		klog.Warningf("[council] 加载启发式规则失败，使用基线权重: %v", err)
		rules = nil
	}
	weights, hits := weighting.Resolve(baseline, requestText(question, reqContext), rules, s.weighting)
	applied := make([]AppliedRule, 0, len(hits))
	for _, h := range hits {
		applied = append(applied, AppliedRule{Keyword: h.Keyword, Role: h.Role})
	}
	return weights, applied, nil
}

func (s *councilService) locale(requested string) string {
	if l := strings.TrimSpace(requested); l != "" {
		return l
	}
	return s.cfg.Council.Locale
}

// outputCollector 收集角色输出，关闭后迟到的结果被丢弃
type outputCollector struct {
	mu      sync.Mutex
	closed  bool
	outputs map[domain.RoleKey]domain.RoleOutput
}

func (c *outputCollector) set(out domain.RoleOutput) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.outputs[out.Role] = out
	return true
}

func (c *outputCollector) close() map[domain.RoleKey]domain.RoleOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.outputs
}

// fanOut 并发调用阵容中的每个角色，失败的角色得到带分类的占位输出
func (s *councilService) fanOut(ctx context.Context, id, callerKey string, lineup domain.Lineup, vars prompts.Vars, locale string) []domain.RoleOutput {
	ordered := lineup.RoleKeys()
	collector := &outputCollector{outputs: make(map[domain.RoleKey]domain.RoleOutput, len(ordered))}

	jobs := make([]orchestrator.Job, 0, len(ordered))
	for _, role := range ordered {
		role := role
		jobs = append(jobs, orchestrator.Job{
			Key:        id + "/" + string(role),
			Timeout:    s.cfg.RoleTimeout(),
			MaxRetries: s.cfg.Council.RoleRetries,
			Fn: func(ctx context.Context) error {
				out, err := s.callRole(llm.WithLabel(ctx, string(role)), role, vars, locale)
				if err != nil {
					return err
				}
				if !collector.set(*out) {
					return context.DeadlineExceeded
				}
				return nil
			},
		})
	}

	results := s.runner.Run(ctx, jobs)
	collected := collector.close()

	outputs := make([]domain.RoleOutput, 0, len(ordered))
	for i, role := range ordered {
		res := results[i]
		out, ok := collected[role]
		if !ok {
			out = domain.RoleOutput{Role: role, Failure: roleFailure(res)}
		}
		outputs = append(outputs, out)
		s.recordRole(ctx, id, callerKey, out, res.Elapsed)
	}
	return outputs
}

// callRole 取指令、渲染、结构化生成并按契约校验
func (s *councilService) callRole(ctx context.Context, role domain.RoleKey, vars prompts.Vars, locale string) (*domain.RoleOutput, error) {
	system, userTemplate, err := s.prompts.GetRoleInstructions(role, s.cfg.Council.PackVersion, locale)
	if err != nil {
		return nil, &llm.GenerationError{Kind: domain.KindConfiguration, Message: err.Error(), Err: err}
	}
	vars.RoleTitle = role.Title()
	contract := domain.ContractFor(role)

	res, err := s.gen.Complete(ctx, system, prompts.Render(userTemplate, vars), domain.SchemaHint(contract))
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateOutput(contract, res.Object); err != nil {
		return nil, &llm.GenerationError{Kind: domain.KindUnparsableOutput, Message: err.Error(), Err: err}
	}
	return &domain.RoleOutput{Role: role, Data: res.Object, Repaired: res.Repaired}, nil
}

func roleFailure(res orchestrator.JobResult) *domain.RoleFailure {
	switch {
	case res.Err == nil:
		return &domain.RoleFailure{Kind: domain.KindBackendUnavailable, Message: "role produced no output"}
	case res.TimedOut():
		return &domain.RoleFailure{Kind: domain.KindBackendUnavailable, Message: "role call timed out"}
	default:
		return &domain.RoleFailure{Kind: llm.KindOf(res.Err), Message: res.Err.Error()}
	}
}

// recordRole 持久化角色输出并发布事件
func (s *councilService) recordRole(ctx context.Context, id, callerKey string, out domain.RoleOutput, elapsed time.Duration) {
	row := &model.RoleOutputRecord{
		ConsultationID: id,
		Role:           string(out.Role),
		Repaired:       out.Repaired,
		LatencyMs:      elapsed.Milliseconds(),
	}
	event := eventbus.CouncilEvent{ConsultationID: id, CallerKey: callerKey, Role: out.Role}
	if out.OK() {
		row.Status = "ok"
		row.Output = utils.ToJSON(out.Data)
		event.Type = eventbus.CouncilEventRoleCompleted
		event.Payload = map[string]any{"status": "ok", "repaired": out.Repaired, "output": out.Data}
	} else {
		row.Status = "failed"
		row.FailureKind = string(out.Failure.Kind)
		row.FailureMsg = out.Failure.Message
		event.Type = eventbus.CouncilEventRoleFailed
		event.Payload = map[string]any{"status": "failed", "kind": out.Failure.Kind, "message": out.Failure.Message}
		klog.Warningf("[council] 角色失败: id=%s, role=%s, kind=%s, err=%s", id, out.Role, out.Failure.Kind, out.Failure.Message)
	}

	if s.roleOutputs != nil {
		writeCtx, cancel := persistContext(ctx)
		if err := s.roleOutputs.Upsert(writeCtx, row); err != nil {
			klog.Errorf("[council] 保存角色输出失败: id=%s, role=%s, err=%v", id, out.Role, err)
		}
		cancel()
	}
	s.publish(ctx, event)
}

// digest 可选的 ADVISOR_DIGEST 预提炼，失败时返回 nil
func (s *councilService) digest(ctx context.Context, id, callerKey string, vars prompts.Vars, outputs []domain.RoleOutput, locale string) map[string]any {
	if !s.cfg.Council.UseAdvisorDigest {
		return nil
	}
	var sb strings.Builder
	for _, o := range outputs {
		if !o.OK() {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n%s\n\n", o.Role.Title(), utils.ToJSON(o.Data))
	}
	vars.Extra = map[string]string{"opinions": strings.TrimSpace(sb.String())}

	digestCtx, cancel := context.WithTimeout(llm.WithLabel(ctx, string(domain.RoleAdvisorDigest)), s.cfg.RoleTimeout())
	defer cancel()
	out, err := s.callRole(digestCtx, domain.RoleAdvisorDigest, vars, locale)
	if err != nil {
		klog.Warningf("[council] 摘要失败，跳过: id=%s, err=%v", id, err)
		return nil
	}
	s.publish(ctx, eventbus.CouncilEvent{
		Type:           eventbus.CouncilEventDigestCompleted,
		ConsultationID: id,
		CallerKey:      callerKey,
		Role:           domain.RoleAdvisorDigest,
		Payload:        map[string]any{"output": out.Data},
	})
	return out.Data
}

// fail 记录失败终态并返回给调用方的错误
func (s *councilService) fail(ctx context.Context, record *model.Consultation, outputs []domain.RoleOutput, cerr *ConsultError) error {
	completedAt := s.now().UTC()
	record.Status = model.ConsultationStatusFailed
	record.ErrorKind = string(cerr.Kind)
	record.ErrorMsg = cerr.Message
	record.CompletedAt = &completedAt
	s.saveConsultation(ctx, record)

	kinds := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if o.Failure != nil {
			kinds = append(kinds, string(o.Role)+":"+string(o.Failure.Kind))
		}
	}
	s.publish(ctx, eventbus.CouncilEvent{
		Type:           eventbus.CouncilEventConsultationFailed,
		ConsultationID: record.ID,
		CallerKey:      record.CallerKey,
		Payload:        map[string]any{"kind": cerr.Kind, "message": cerr.Message, "role_failures": kinds},
	})
	klog.Errorf("[council] 咨询失败: id=%s, kind=%s, err=%s", record.ID, cerr.Kind, cerr.Message)
	return cerr
}

func (s *councilService) saveConsultation(ctx context.Context, record *model.Consultation) {
	if s.consultations == nil {
		return
	}
	writeCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.consultations.Save(writeCtx, record); err != nil {
		klog.Errorf("[council] 保存咨询失败: id=%s, status=%s, err=%v", record.ID, record.Status, err)
	}
}

func (s *councilService) publish(ctx context.Context, event eventbus.CouncilEvent) {
	if s.bus == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	if err := s.bus.Publish(ctx, event.Type, event); err != nil {
		klog.Warningf("[council] 发布事件失败: type=%s, id=%s, err=%v", event.Type, event.ConsultationID, err)
	}
}

// persistContext 持久化不受咨询截止时间影响
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// lineupJSON 只保存角色与位置
func lineupJSON(l domain.Lineup) string {
	type seat struct {
		RoleKey  domain.RoleKey `json:"role_key"`
		Position int            `json:"position"`
	}
	seats := make([]seat, 0, len(l.Roles))
	for _, r := range l.Ordered() {
		seats = append(seats, seat{RoleKey: r.RoleKey, Position: r.Position})
	}
	return utils.ToJSON(seats)
}

// contextText 渲染进提示词的上下文
func contextText(reqContext map[string]any) string {
	if len(reqContext) == 0 {
		return "(none)"
	}
	data, err := json.MarshalIndent(reqContext, "", "  ")
	if err != nil {
		return "(none)"
	}
	return string(data)
}

// requestText 参与关键词匹配的文本：问题加上下文中的字符串值，按键排序
func requestText(question string, reqContext map[string]any) string {
	keys := make([]string, 0, len(reqContext))
	for k := range reqContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := []string{question}
	for _, k := range keys {
		if v, ok := reqContext[k].(string); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

func roleOutputFromRecord(row model.RoleOutputRecord) domain.RoleOutput {
	out := domain.RoleOutput{Role: domain.RoleKey(row.Role), Repaired: row.Repaired}
	if row.Status != "ok" {
		out.Failure = &domain.RoleFailure{Kind: domain.ErrorKind(row.FailureKind), Message: row.FailureMsg}
		return out
	}
	decodeJSONField(row.ConsultationID, "role_output", row.Output, &out.Data)
	return out
}

func decodeJSONField(id, field, raw string, dst any) {
	if raw == "" || raw == "null" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		klog.Warningf("[council] 解析存储字段失败: id=%s, field=%s, err=%v", id, field, err)
	}
}
