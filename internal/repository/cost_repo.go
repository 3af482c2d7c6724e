package repository

import (
	"context"
	"time"

	"github.com/weibaohui/decision-council/internal/model"
	"gorm.io/gorm"
)

type costRepository struct {
	db *gorm.DB
}

// NewCostRepository 创建成本记录仓储
func NewCostRepository(db *gorm.DB) CostRepository {
	return &costRepository{db: db}
}

// Create 新增一条调用成本记录
func (r *costRepository) Create(ctx context.Context, record *model.CostRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *costRepository) GetByConsultation(ctx context.Context, consultationID string) ([]model.CostRecord, error) {
	var records []model.CostRecord
	err := r.db.WithContext(ctx).
		Where("consultation_id = ?", consultationID).
		Order("id").
		Find(&records).Error
	return records, err
}

// SumSince 汇总某个时间点之后的调用成本，供外部日消费告警使用
func (r *costRepository) SumSince(ctx context.Context, since time.Time) (*CostSummary, error) {
	var summary CostSummary
	err := r.db.WithContext(ctx).
		Model(&model.CostRecord{}).
		Select("COUNT(*) AS calls, COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens, " +
			"COALESCE(SUM(completion_tokens), 0) AS completion_tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("created_at >= ?", since).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
