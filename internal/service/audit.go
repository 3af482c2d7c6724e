package service

import (
	"context"
	"time"

	"github.com/weibaohui/decision-council/internal/pkg/audit"
	"github.com/weibaohui/decision-council/internal/repository"
)

// AuditRecord 审计条目及其签名校验结果
// 字段与 audit.Entry 的 JSON 形式一致，可直接离线校验
type AuditRecord struct {
	ID             string         `json:"id"`
	ConsultationID string         `json:"consultation_id"`
	Kind           audit.Kind     `json:"kind"`
	Partition      string         `json:"partition"`
	Payload        map[string]any `json:"payload"`
	Diff           string         `json:"diff,omitempty"`
	Signature      string         `json:"signature"`
	Verified       bool           `json:"verified"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditService 审计查询
type AuditService interface {
	ListByConsultation(ctx context.Context, consultationID string) ([]AuditRecord, error)
	ListByDay(ctx context.Context, day string) ([]AuditRecord, error)
}

type auditService struct {
	repo   repository.AuditRepository
	signer *audit.Signer
}

// NewAuditService signer 为 nil 时所有条目都视为未校验
func NewAuditService(repo repository.AuditRepository, signer *audit.Signer) AuditService {
	return &auditService{repo: repo, signer: signer}
}

func (s *auditService) ListByConsultation(ctx context.Context, consultationID string) ([]AuditRecord, error) {
	entries, err := s.repo.ListByConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, notFound("no audit entries for consultation %s", consultationID)
	}
	return s.toRecords(entries), nil
}

// ListByDay day 形如 2006-01-02
func (s *auditService) ListByDay(ctx context.Context, day string) ([]AuditRecord, error) {
	if _, err := time.Parse(audit.PartitionLayout, day); err != nil {
		return nil, invalidRequest("invalid day %q, expected %s", day, audit.PartitionLayout)
	}
	entries, err := s.repo.ListByPartition(ctx, day)
	if err != nil {
		return nil, err
	}
	return s.toRecords(entries), nil
}

func (s *auditService) toRecords(entries []audit.Entry) []AuditRecord {
	out := make([]AuditRecord, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, AuditRecord{
			ID:             e.ID,
			ConsultationID: e.ConsultationID,
			Kind:           e.Kind,
			Partition:      e.Partition,
			Payload:        e.Payload,
			Diff:           e.Diff,
			Signature:      e.Signature,
			Verified:       s.signer != nil && audit.VerifyEntry(s.signer, e),
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}
