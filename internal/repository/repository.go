package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/audit"
	"github.com/weibaohui/decision-council/internal/pkg/weighting"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type ConsultationRepository interface {
	Save(ctx context.Context, c *model.Consultation) error
	Get(ctx context.Context, id string) (*model.Consultation, error)
	List(ctx context.Context, limit int) ([]model.Consultation, error)
}

type RoleOutputRepository interface {
	// Upsert 以 (consultation_id, role) 幂等写入
	Upsert(ctx context.Context, record *model.RoleOutputRecord) error
	GetByConsultation(ctx context.Context, consultationID string) ([]model.RoleOutputRecord, error)
}

// CostSummary 一段时间内的成本汇总
type CostSummary struct {
	Calls            int64   `json:"calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

type CostRepository interface {
	Create(ctx context.Context, record *model.CostRecord) error
	GetByConsultation(ctx context.Context, consultationID string) ([]model.CostRecord, error)
	SumSince(ctx context.Context, since time.Time) (*CostSummary, error)
}

type AuditRepository interface {
	audit.Store
	ListByConsultation(ctx context.Context, consultationID string) ([]audit.Entry, error)
	ListByPartition(ctx context.Context, day string) ([]audit.Entry, error)
}

type RateLimitRepository interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Put(ctx context.Context, key string, value int64, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type HeuristicRuleRepository interface {
	weighting.Source
	Create(ctx context.Context, rule *model.HeuristicRule) error
	List(ctx context.Context) ([]model.HeuristicRule, error)
}
