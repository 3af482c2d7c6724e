package repository

import (
	"context"
	"fmt"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/model"
	"github.com/weibaohui/decision-council/internal/pkg/weighting"
	"gorm.io/gorm"
	"k8s.io/klog/v2"
)

type heuristicRuleRepository struct {
	db *gorm.DB
}

// NewHeuristicRuleRepository 创建启发式规则仓储，同时作为规则来源
func NewHeuristicRuleRepository(db *gorm.DB) HeuristicRuleRepository {
	return &heuristicRuleRepository{db: db}
}

// Create 校验后写入规则
func (r *heuristicRuleRepository) Create(ctx context.Context, rule *model.HeuristicRule) error {
	wr := toWeightingRule(*rule)
	if err := wr.Validate(); err != nil {
		return err
	}
	rule.Keyword = wr.Keyword
	rule.Role = string(wr.Role)
	rule.Locale = wr.Locale
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *heuristicRuleRepository) List(ctx context.Context) ([]model.HeuristicRule, error) {
	var rules []model.HeuristicRule
	err := r.db.WithContext(ctx).Order("priority DESC, keyword, role").Find(&rules).Error
	return rules, err
}

// Rules 读取启用的规则，非法记录跳过
func (r *heuristicRuleRepository) Rules(ctx context.Context, locale string) ([]weighting.Rule, error) {
	var records []model.HeuristicRule
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("locale IN ?", []string{weighting.AnyLocale, locale}).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load heuristic rules: %w", err)
	}

	out := make([]weighting.Rule, 0, len(records))
	for _, rec := range records {
		rule := toWeightingRule(rec)
		if err := rule.Validate(); err != nil {
			klog.Warningf("[repository] 跳过非法规则: id=%d, err=%v", rec.ID, err)
			continue
		}
		out = append(out, rule)
	}
	return weighting.FilterLocale(out, locale), nil
}

func toWeightingRule(rec model.HeuristicRule) weighting.Rule {
	return weighting.Rule{
		Locale:   rec.Locale,
		Keyword:  rec.Keyword,
		Role:     domain.RoleKey(rec.Role),
		Delta:    rec.Delta,
		Priority: rec.Priority,
	}
}
