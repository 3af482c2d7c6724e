package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/audit"
	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计仓储，只追加不更新
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// AppendEntry 写入一条已签名的审计条目
func (r *auditRepository) AppendEntry(ctx context.Context, entry *audit.Entry) error {
	record := model.AuditEntry{
		ID:             entry.ID,
		ConsultationID: entry.ConsultationID,
		Partition:      entry.Partition,
		Kind:           string(entry.Kind),
		Payload:        audit.Canonicalize(entry.Payload),
		Diff:           entry.Diff,
		Signature:      entry.Signature,
		CreatedAt:      entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

func (r *auditRepository) ListByConsultation(ctx context.Context, consultationID string) ([]audit.Entry, error) {
	var records []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("consultation_id = ?", consultationID).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEntries(records)
}

// ListByPartition 按天读取审计条目，day 形如 2006-01-02
func (r *auditRepository) ListByPartition(ctx context.Context, day string) ([]audit.Entry, error) {
	var records []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("day_partition = ?", day).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEntries(records)
}

func toEntries(records []model.AuditEntry) ([]audit.Entry, error) {
	entries := make([]audit.Entry, 0, len(records))
	for _, rec := range records {
		var payload map[string]any
		if rec.Payload != "" && rec.Payload != "null" {
			if err := json.Unmarshal([]byte(rec.Payload), &payload); err != nil {
				return nil, fmt.Errorf("decode audit payload %s: %w", rec.ID, err)
			}
		}
		entries = append(entries, audit.Entry{
			ID:             rec.ID,
			ConsultationID: rec.ConsultationID,
			Kind:           audit.Kind(rec.Kind),
			Payload:        payload,
			Diff:           rec.Diff,
			Partition:      rec.Partition,
			Signature:      rec.Signature,
			CreatedAt:      rec.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
