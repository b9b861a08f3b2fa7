package handler

import (
	"errors"

	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/service"
	"github.com/gin-gonic/gin"
)

// SupplierHandler 供应商处理器
type SupplierHandler struct {
	svc *service.SupplierService
}

func NewSupplierHandler(svc *service.SupplierService) *SupplierHandler {
	return &SupplierHandler{svc: svc}
}

// CreateSupplier 创建供应商
func (h *SupplierHandler) CreateSupplier(c *gin.Context) {
	var req service.CreateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	supplier, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		InternalError(c, "创建供应商失败: "+err.Error())
		return
	}
	Created(c, supplier)
}

// ListSuppliers 供应商列表
func (h *SupplierHandler) ListSuppliers(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		InternalError(c, "获取供应商列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// GetSupplier 供应商详情
func (h *SupplierHandler) GetSupplier(c *gin.Context) {
	supplier, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "供应商不存在")
			return
		}
		InternalError(c, "获取供应商失败: "+err.Error())
		return
	}
	Success(c, supplier)
}
