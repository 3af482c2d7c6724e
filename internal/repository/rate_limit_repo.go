package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weibaohui/decision-council/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rateLimitRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRateLimitRepository 创建数据库限流计数存储
func NewRateLimitRepository(db *gorm.DB) RateLimitRepository {
	return &rateLimitRepository{db: db, now: time.Now}
}

// Get 读取计数，过期记录视为不存在
func (r *rateLimitRepository) Get(ctx context.Context, key string) (int64, bool, error) {
	var counter model.RateLimitCounter
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !counter.ExpiresAt.After(r.now()) {
		return 0, false, nil
	}
	return counter.Value, true, nil
}

// Put 写入计数并刷新过期时间
func (r *rateLimitRepository) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	counter := model.RateLimitCounter{
		Key:       key,
		Value:     value,
		ExpiresAt: r.now().Add(ttl),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(&counter).Error
}

// PurgeExpired 清理过期计数
func (r *rateLimitRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Delete(&model.RateLimitCounter{})
	return result.RowsAffected, result.Error
}
