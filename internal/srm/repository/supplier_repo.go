package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vendo/internal/srm/entity"
	"gorm.io/gorm"
)

// SupplierRepository 供应商仓库
type SupplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// Create 创建供应商
func (r *SupplierRepository) Create(ctx context.Context, supplier *entity.Supplier) error {
	return r.db.WithContext(ctx).Create(supplier).Error
}

// FindByID 根据ID查找供应商
func (r *SupplierRepository) FindByID(ctx context.Context, id string) (*entity.Supplier, error) {
	var supplier entity.Supplier
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

// FindAll 供应商列表
func (r *SupplierRepository) FindAll(ctx context.Context, status string) ([]entity.Supplier, error) {
	var items []entity.Supplier
	query := r.db.WithContext(ctx).Model(&entity.Supplier{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("code ASC").Find(&items).Error
	return items, err
}

// UpdateSummary 更新供应商评估汇总字段
func (r *SupplierRepository) UpdateSummary(ctx context.Context, id string, count int64, avgScore float64, latestTier string) error {
	updates := map[string]interface{}{
		"evaluation_count": count,
		"latest_tier":      latestTier,
	}
	if count > 0 {
		updates["avg_score"] = avgScore
	} else {
		updates["avg_score"] = nil
	}
	return r.db.WithContext(ctx).
		Model(&entity.Supplier{}).
		Where("id = ?", id).
		Updates(updates).Error
}
