package repository

import (
	"context"
	"errors"

	"github.com/weibaohui/decision-council/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type consultationRepository struct {
	db *gorm.DB
}

// NewConsultationRepository 创建咨询仓储
func NewConsultationRepository(db *gorm.DB) ConsultationRepository {
	return &consultationRepository{db: db}
}

// Save 按主键插入或整体覆盖
func (r *consultationRepository) Save(ctx context.Context, c *model.Consultation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(c).Error
}

func (r *consultationRepository) Get(ctx context.Context, id string) (*model.Consultation, error) {
	var c model.Consultation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List 最近的咨询，limit <= 0 时取 50 条
func (r *consultationRepository) List(ctx context.Context, limit int) ([]model.Consultation, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []model.Consultation
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

type roleOutputRepository struct {
	db *gorm.DB
}

// NewRoleOutputRepository 创建角色输出仓储
func NewRoleOutputRepository(db *gorm.DB) RoleOutputRepository {
	return &roleOutputRepository{db: db}
}

func (r *roleOutputRepository) Upsert(ctx context.Context, record *model.RoleOutputRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "consultation_id"}, {Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "output", "failure_kind", "failure_msg", "repaired", "latency_ms", "updated_at",
			}),
		}).
		Create(record).Error
}

func (r *roleOutputRepository) GetByConsultation(ctx context.Context, consultationID string) ([]model.RoleOutputRecord, error) {
	var records []model.RoleOutputRecord
	err := r.db.WithContext(ctx).
		Where("consultation_id = ?", consultationID).
		Order("role").
		Find(&records).Error
	return records, err
}
