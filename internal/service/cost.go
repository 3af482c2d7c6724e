package service

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/llm"
	"github.com/weibaohui/decision-council/internal/repository"
)

type consultationKey struct{}

// WithConsultationID 把咨询 ID 放入上下文，供成本记录关联
func WithConsultationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, consultationKey{}, id)
}

// ConsultationIDFrom 读取上下文中的咨询 ID
func ConsultationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(consultationKey{}).(string)
	return id
}

// CostReport 单次咨询的成本汇总
type CostReport struct {
	ConsultationID string                 `json:"consultation_id"`
	Calls          []CostLine             `json:"calls"`
	Total          repository.CostSummary `json:"total"`
}

// CostLine 单次调用
type CostLine struct {
	Label            string  `json:"label"`
	Backend          string  `json:"backend"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	LatencyMs        int64   `json:"latency_ms"`
	CostUSD          float64 `json:"cost_usd"`
	Repair           bool    `json:"repair"`
	Error            string  `json:"error,omitempty"`
}

// CostService 记录每次生成调用的成本，写入失败只记日志
type CostService interface {
	llm.UsageObserver
	Report(ctx context.Context, consultationID string) (*CostReport, error)
	SumSince(ctx context.Context, since time.Time) (*repository.CostSummary, error)
}

type costService struct {
	repo repository.CostRepository
	now  func() time.Time
}

// NewCostService 创建成本服务
func NewCostService(repo repository.CostRepository) CostService {
	return &costService{repo: repo, now: time.Now}
}

// ObserveCall 实现 llm.UsageObserver
func (s *costService) ObserveCall(ctx context.Context, rec llm.CallRecord) {
	record := &model.CostRecord{
		ConsultationID:   ConsultationIDFrom(ctx),
		Label:            rec.Label,
		Backend:          rec.Backend,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		LatencyMs:        rec.Latency.Milliseconds(),
		CostUSD:          rec.CostUSD,
		Repair:           rec.Repair,
		CreatedAt:        s.now().UTC(),
	}
	if rec.Err != nil {
		record.Error = rec.Err.Error()
	}

	// 调用方的上下文可能已到期，成本记录不应随之丢失
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.Create(writeCtx, record); err != nil {
		klog.Warningf("[cost] 写入成本记录失败: consultation=%s, label=%s, err=%v", record.ConsultationID, record.Label, err)
		return
	}
	klog.V(6).Infof("[cost] 记录调用: consultation=%s, label=%s, tokens=%d/%d, cost=%.6f",
		record.ConsultationID, record.Label, record.PromptTokens, record.CompletionTokens, record.CostUSD)
}

// Report 汇总单次咨询的全部调用
func (s *costService) Report(ctx context.Context, consultationID string) (*CostReport, error) {
	records, err := s.repo.GetByConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	report := &CostReport{ConsultationID: consultationID, Calls: make([]CostLine, 0, len(records))}
	for _, r := range records {
		report.Calls = append(report.Calls, CostLine{
			Label:            r.Label,
			Backend:          r.Backend,
			Model:            r.Model,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			LatencyMs:        r.LatencyMs,
			CostUSD:          r.CostUSD,
			Repair:           r.Repair,
			Error:            r.Error,
		})
		report.Total.Calls++
		report.Total.PromptTokens += int64(r.PromptTokens)
		report.Total.CompletionTokens += int64(r.CompletionTokens)
		report.Total.CostUSD += r.CostUSD
	}
	return report, nil
}

// SumSince 供外部日消费告警使用
func (s *costService) SumSince(ctx context.Context, since time.Time) (*repository.CostSummary, error) {
	return s.repo.SumSince(ctx, since)
}
