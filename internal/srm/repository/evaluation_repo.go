package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vendo/internal/srm/entity"
	"gorm.io/gorm"
)

// EvaluationRepository 评估仓库，实现生命周期控制器的存储契约
type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create 创建评估
func (r *EvaluationRepository) Create(ctx context.Context, eval *entity.SupplierEvaluation) error {
	return r.db.WithContext(ctx).Create(eval).Error
}

// Update 更新评估
func (r *EvaluationRepository) Update(ctx context.Context, eval *entity.SupplierEvaluation) error {
	return r.db.WithContext(ctx).Save(eval).Error
}

// FindByID 根据ID查找评估，带出供应商
func (r *EvaluationRepository) FindByID(ctx context.Context, id string) (*entity.SupplierEvaluation, error) {
	var eval entity.SupplierEvaluation
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("id = ?", id).
		First(&eval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &eval, nil
}

// Delete 删除评估
func (r *EvaluationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&entity.SupplierEvaluation{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBySupplier 某供应商的全部评估，按评估日期倒序
func (r *EvaluationRepository) FindBySupplier(ctx context.Context, supplierID string) ([]entity.SupplierEvaluation, error) {
	var items []entity.SupplierEvaluation
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("evaluation_date DESC").
		Find(&items).Error
	return items, err
}

// SupplierStats 供应商评估汇总
type SupplierStats struct {
	Count      int64
	AvgScore   float64
	LatestTier string
}

// FindSupplierStats 统计供应商的评估数量、平均得分与最近等级
func (r *EvaluationRepository) FindSupplierStats(ctx context.Context, supplierID string) (*SupplierStats, error) {
	var agg struct {
		Cnt      int64
		AvgScore float64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.SupplierEvaluation{}).
		Select("COUNT(*) as cnt, COALESCE(AVG(score), 0) as avg_score").
		Where("supplier_id = ? AND score IS NOT NULL", supplierID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats := &SupplierStats{Count: agg.Cnt, AvgScore: agg.AvgScore}
	if agg.Cnt == 0 {
		return stats, nil
	}

	var latest entity.SupplierEvaluation
	err = r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("evaluation_date DESC").
		First(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	stats.LatestTier = latest.Tier
	return stats, nil
}
