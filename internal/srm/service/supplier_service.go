package service

import (
	"context"

	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/google/uuid"
)

// SupplierService 供应商服务
type SupplierService struct {
	repo *repository.SupplierRepository
}

func NewSupplierService(repo *repository.SupplierRepository) *SupplierService {
	return &SupplierService{repo: repo}
}

// CreateSupplierRequest 创建供应商请求
type CreateSupplierRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	TaxID        string `json:"tax_id"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

// Create 创建供应商
func (s *SupplierService) Create(ctx context.Context, userID string, req *CreateSupplierRequest) (*entity.Supplier, error) {
	supplier := &entity.Supplier{
		ID:           uuid.New().String()[:32],
		Code:         req.Code,
		Name:         req.Name,
		TaxID:        req.TaxID,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Status:       entity.SupplierStatusActive,
		CreatedBy:    userID,
	}
	if err := s.repo.Create(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}

// List 供应商列表
func (s *SupplierService) List(ctx context.Context, status string) ([]entity.Supplier, error) {
	return s.repo.FindAll(ctx, status)
}

// Get 供应商详情
func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.repo.FindByID(ctx, id)
}
