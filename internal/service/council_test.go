package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/eventbus"
	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/llm"
	"github.com/weibaohui/decision-council/internal/pkg/prompts"
	"github.com/weibaohui/decision-council/internal/pkg/ratelimit"
	"github.com/weibaohui/decision-council/internal/repository"
	"github.com/weibaohui/decision-council/internal/service/orchestrator"
)

// scriptedGenerator 按 schema 名返回骨架对象或预设错误
type scriptedGenerator struct {
	mu        sync.Mutex
	failures  map[string]error
	overrides map[string]map[string]any
	block     map[string]bool
	calls     map[string]int

	assembleErr    error
	assemblePrompt string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		failures:  map[string]error{},
		overrides: map[string]map[string]any{},
		block:     map[string]bool{},
		calls:     map[string]int{},
	}
}

func (g *scriptedGenerator) Complete(ctx context.Context, system, user, schemaHint string) (*llm.StructuredResult, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(schemaHint), &obj); err != nil {
		return nil, err
	}
	schema, _ := obj["_schema"].(string)

	g.mu.Lock()
	g.calls[schema]++
	err := g.failures[schema]
	override := g.overrides[schema]
	block := g.block[schema]
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if override != nil {
		obj = override
	}
	return &llm.StructuredResult{Object: obj}, nil
}

func (g *scriptedGenerator) CompleteStructured(ctx context.Context, system, user, schemaHint string) (map[string]any, error) {
	g.mu.Lock()
	g.assemblePrompt = user
	err := g.assembleErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return domain.ConsensusSkeleton(), nil
}

func (g *scriptedGenerator) BackendName() string { return "scripted" }

func (g *scriptedGenerator) callCount(schema string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[schema]
}

type testEnv struct {
	svc           CouncilService
	consultations repository.ConsultationRepository
	roleOutputs   repository.RoleOutputRepository
	bus           *eventbus.CouncilEventBus
	events        *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.CouncilEvent
}

func (r *eventRecorder) handle(ctx context.Context, e eventbus.CouncilEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) count(t eventbus.CouncilEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Council.Deadline = 5 * time.Second
	cfg.Council.UseAdvisorDigest = false
	return cfg
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Consultation{}, &model.RoleOutputRecord{}, &model.CostRecord{}, &model.AuditEntry{}))
	return db
}

func newTestEnv(t *testing.T, cfg *config.Config, gen Generator, mutate func(*CouncilDeps)) *testEnv {
	t.Helper()
	orch, err := orchestrator.NewOrchestrator(8)
	require.NoError(t, err)
	t.Cleanup(orch.Stop)

	manager, err := prompts.NewManager(&prompts.Config{})
	require.NoError(t, err)
	t.Cleanup(manager.Stop)

	db := openServiceDB(t)
	env := &testEnv{
		consultations: repository.NewConsultationRepository(db),
		roleOutputs:   repository.NewRoleOutputRepository(db),
		bus:           eventbus.NewCouncilEventBus(),
		events:        &eventRecorder{},
	}
	for _, et := range []eventbus.CouncilEventType{
		eventbus.CouncilEventRoleCompleted,
		eventbus.CouncilEventRoleFailed,
		eventbus.CouncilEventDigestCompleted,
		eventbus.CouncilEventConsensusAssembled,
		eventbus.CouncilEventConsultationFailed,
		eventbus.CouncilEventAdmissionDenied,
	} {
		env.bus.Subscribe(et, env.events.handle)
	}

	deps := CouncilDeps{
		Config:        cfg,
		Generator:     gen,
		Prompts:       manager,
		Runner:        orch,
		Consultations: env.consultations,
		RoleOutputs:   env.roleOutputs,
		Bus:           env.bus,
	}
	if mutate != nil {
		mutate(&deps)
	}
	env.svc, err = NewCouncilService(deps)
	require.NoError(t, err)
	return env
}

func fiveRoleLineup() *domain.Lineup {
	return &domain.Lineup{Roles: []domain.LineupRole{
		{RoleKey: domain.RoleStrategist, Weight: 1, Position: 1},
		{RoleKey: domain.RoleRiskOfficer, Weight: 1, Position: 2},
		{RoleKey: domain.RoleFinancialAnalyst, Weight: 1, Position: 3},
		{RoleKey: domain.RoleCustomerAdvocate, Weight: 1, Position: 4},
		{RoleKey: domain.RoleDataScientist, Weight: 1, Position: 5},
	}}
}

func requireConsultError(t *testing.T, err error, kind domain.ErrorKind) *ConsultError {
	t.Helper()
	var ce *ConsultError
	require.True(t, errors.As(err, &ce), "expected ConsultError, got %v", err)
	require.Equal(t, kind, ce.Kind)
	return ce
}

func TestNewCouncilServiceRequiresBackend(t *testing.T) {
	_, err := NewCouncilService(CouncilDeps{Config: testConfig()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
}

func TestConsultRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t, testConfig(), newScriptedGenerator(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ConsultRequest
	}{
		{"empty question", ConsultRequest{Question: "  ", PresetID: "balanced"}},
		{"no lineup", ConsultRequest{Question: "Launch?"}},
		{"unknown preset", ConsultRequest{Question: "Launch?", PresetID: "nope"}},
		{"unknown role", ConsultRequest{Question: "Launch?", Lineup: &domain.Lineup{Roles: []domain.LineupRole{{RoleKey: "CHAIR"}}}}},
		{"duplicate role", ConsultRequest{Question: "Launch?", Lineup: &domain.Lineup{Roles: []domain.LineupRole{
			{RoleKey: domain.RoleStrategist}, {RoleKey: "strategist"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Consult(ctx, tt.req)
			ce := requireConsultError(t, err, domain.KindInvalidRequest)
			assert.Equal(t, 400, ce.HTTPStatus())
		})
	}
}

func TestConsultEndToEndWithMockBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Council.UseAdvisorDigest = true
	backend := llm.NewMockBackend()
	gen := llm.NewStructuredClient(backend, llm.StructuredOptions{Model: "mock"})
	env := newTestEnv(t, cfg, gen, nil)

	resp, err := env.svc.Consult(context.Background(), ConsultRequest{
		Question: "We need a tighter budget to improve profitability next year",
		PresetID: "balanced",
		Origin:   "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusCompleted, resp.Status)
	assert.Equal(t, "balanced", resp.PresetID)
	require.Len(t, resp.RoleOutputs, 6)
	for _, o := range resp.RoleOutputs {
		assert.True(t, o.OK(), "role %s should succeed", o.Role)
	}
	require.NotNil(t, resp.Consensus)
	assert.NotEmpty(t, resp.Consensus.Decision)
	assert.GreaterOrEqual(t, len(resp.Consensus.ConsensusBullets), 3)
	assert.LessOrEqual(t, len(resp.Consensus.ConsensusBullets), 5)
	assert.Equal(t, domain.EmphasisLead, resp.Emphasis[domain.RoleFinancialAnalyst])

	var financeRule bool
	for _, r := range resp.AppliedRules {
		if r.Role == domain.RoleFinancialAnalyst {
			financeRule = true
		}
	}
	assert.True(t, financeRule, "budget keywords should favour the financial analyst")

	// 6 个角色 + 摘要 + 综合
	assert.Equal(t, int64(8), backend.Calls())

	data, err := json.Marshal(resp.Consensus)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(data)), "weight")

	stored, err := env.svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Status, stored.Status)
	assert.Len(t, stored.RoleOutputs, 6)
	require.NotNil(t, stored.Consensus)
	assert.Equal(t, resp.Consensus.Decision, stored.Consensus.Decision)

	assert.Equal(t, 6, env.events.count(eventbus.CouncilEventRoleCompleted))
	assert.Equal(t, 1, env.events.count(eventbus.CouncilEventDigestCompleted))
	assert.Equal(t, 1, env.events.count(eventbus.CouncilEventConsensusAssembled))
}

func TestConsultDegradesWhenOneRoleFails(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failures[domain.ContractFor(domain.RoleRiskOfficer).SchemaName()] = &llm.GenerationError{
		Kind:    domain.KindBackendUnavailable,
		Status:  503,
		Message: "upstream unavailable",
	}
	env := newTestEnv(t, testConfig(), gen, nil)

	resp, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Enter the German market?", Lineup: fiveRoleLineup()})
	require.NoError(t, err)

	assert.Equal(t, model.ConsultationStatusDegraded, resp.Status)
	require.Len(t, resp.RoleOutputs, 5)
	var failed []domain.RoleKey
	for _, o := range resp.RoleOutputs {
		if !o.OK() {
			failed = append(failed, o.Role)
			assert.Equal(t, domain.KindBackendUnavailable, o.Failure.Kind)
		}
	}
	assert.Equal(t, []domain.RoleKey{domain.RoleRiskOfficer}, failed)
	assert.Contains(t, resp.Consensus.MissingRoles, domain.RoleRiskOfficer)
	assert.NotContains(t, gen.assemblePrompt, "Risk Officer (")

	assert.Equal(t, 4, env.events.count(eventbus.CouncilEventRoleCompleted))
	assert.Equal(t, 1, env.events.count(eventbus.CouncilEventRoleFailed))

	rows, err := env.roleOutputs.GetByConsultation(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestConsultFailsWhenAllRolesFail(t *testing.T) {
	gen := newScriptedGenerator()
	for _, r := range domain.AllRoles() {
		gen.failures[domain.ContractFor(r).SchemaName()] = errors.New("connection refused")
	}
	env := newTestEnv(t, testConfig(), gen, nil)

	_, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Launch?", PresetID: "risk-review"})
	ce := requireConsultError(t, err, domain.KindBackendUnavailable)
	assert.Equal(t, 500, ce.HTTPStatus())
	assert.Equal(t, 1, env.events.count(eventbus.CouncilEventConsultationFailed))
	assert.Equal(t, 0, env.events.count(eventbus.CouncilEventConsensusAssembled))

	list, err := env.consultations.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ConsultationStatusFailed, list[0].Status)
	assert.Equal(t, string(domain.KindBackendUnavailable), list[0].ErrorKind)
}

func TestConsultMarksContractViolationUnparsable(t *testing.T) {
	gen := newScriptedGenerator()
	gen.overrides[domain.ContractFor(domain.RoleStrategist).SchemaName()] = map[string]any{"summary": "only a summary"}
	env := newTestEnv(t, testConfig(), gen, nil)

	resp, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Launch?", Lineup: fiveRoleLineup()})
	require.NoError(t, err)

	for _, o := range resp.RoleOutputs {
		if o.Role == domain.RoleStrategist {
			require.NotNil(t, o.Failure)
			assert.Equal(t, domain.KindUnparsableOutput, o.Failure.Kind)
		}
	}
}

func TestConsultRoleTimeoutIsBackendFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Council.Deadline = 2 * time.Second
	cfg.Council.RoleTimeoutRatio = 0.1
	gen := newScriptedGenerator()
	gen.block[domain.ContractFor(domain.RoleDataScientist).SchemaName()] = true
	env := newTestEnv(t, cfg, gen, nil)

	start := time.Now()
	resp, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Launch?", Lineup: fiveRoleLineup()})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	for _, o := range resp.RoleOutputs {
		if o.Role == domain.RoleDataScientist {
			require.NotNil(t, o.Failure)
			assert.Equal(t, domain.KindBackendUnavailable, o.Failure.Kind)
		} else {
			assert.True(t, o.OK())
		}
	}
}

func TestConsultRetriesRoleWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Council.RoleRetries = 2
	gen := newScriptedGenerator()
	schema := domain.ContractFor(domain.RoleLegalAdvisor).SchemaName()
	gen.failures[schema] = errors.New("flaky")
	env := newTestEnv(t, cfg, gen, nil)

	_, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Sign the contract?", PresetID: "balanced"})
	require.NoError(t, err)
	assert.Equal(t, 3, gen.callCount(schema))
}

func TestConsultAdmissionDenied(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultWindows(),
		ratelimit.WithClock(func() time.Time { return now }))
	gen := newScriptedGenerator()
	env := newTestEnv(t, testConfig(), gen, func(d *CouncilDeps) { d.Limiter = limiter })

	req := ConsultRequest{Question: "Launch?", PresetID: "balanced", Origin: "203.0.113.7"}
	for i := 0; i < 2; i++ {
		_, err := env.svc.Consult(context.Background(), req)
		require.NoError(t, err)
	}
	_, err := env.svc.Consult(context.Background(), req)
	ce := requireConsultError(t, err, domain.KindAdmissionDenied)
	assert.Equal(t, 429, ce.HTTPStatus())
	assert.Equal(t, 1, ce.RetryAfter)
	assert.Equal(t, 1, env.events.count(eventbus.CouncilEventAdmissionDenied))

	other := req
	other.Origin = "198.51.100.1"
	_, err = env.svc.Consult(context.Background(), other)
	assert.NoError(t, err)
}

func TestConsultFallsBackWhenAssemblyFails(t *testing.T) {
	gen := newScriptedGenerator()
	gen.assembleErr = &llm.GenerationError{Kind: domain.KindUnparsableOutput, Message: "not json"}
	env := newTestEnv(t, testConfig(), gen, nil)

	resp, err := env.svc.Consult(context.Background(), ConsultRequest{Question: "Launch?", PresetID: "balanced"})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusDegraded, resp.Status)
	assert.True(t, resp.Consensus.Degraded)
}

func TestGetUnknownConsultation(t *testing.T) {
	env := newTestEnv(t, testConfig(), newScriptedGenerator(), nil)
	_, err := env.svc.Get(context.Background(), "missing")
	ce := requireConsultError(t, err, domain.KindNotFound)
	assert.Equal(t, 404, ce.HTTPStatus())
}

func TestPreviewExposesOnlyQualitativeEmphasis(t *testing.T) {
	env := newTestEnv(t, testConfig(), newScriptedGenerator(), nil)

	preview, err := env.svc.Preview(context.Background(), ConsultRequest{
		Question: "Cut the budget to protect profit margins",
		PresetID: "balanced",
	})
	require.NoError(t, err)
	require.NotEmpty(t, preview.Roles)
	assert.Equal(t, domain.RoleFinancialAnalyst, preview.Roles[0])

	data, err := json.Marshal(preview)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "0.")
}

func TestRolesCatalog(t *testing.T) {
	env := newTestEnv(t, testConfig(), newScriptedGenerator(), nil)
	roles := env.svc.Roles()
	require.Len(t, roles, 6)
	assert.Equal(t, domain.RoleStrategist, roles[0].Key)
	assert.Contains(t, roles[0].Fields, "strategic_options")
	assert.Len(t, env.svc.Presets(), 3)
}

func TestRequestTextIsDeterministic(t *testing.T) {
	ctx := map[string]any{"b": "churn risk", "a": "budget", "n": 3}
	assert.Equal(t, "Q\nbudget\nchurn risk", requestText("Q", ctx))
}
