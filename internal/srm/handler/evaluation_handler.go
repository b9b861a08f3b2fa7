package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/vendo/internal/srm/lifecycle"
	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/bitfantasy/vendo/internal/srm/service"
	"github.com/gin-gonic/gin"
)

// EvaluationHandler 评估处理器
type EvaluationHandler struct {
	svc *service.EvaluationService
}

func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// respondError 把生命周期/存储错误折算到响应码
func respondError(c *gin.Context, err error) {
	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		BadRequest(c, ve.Error())
	case errors.Is(err, scoring.ErrModelNotFound):
		BadRequest(c, err.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		Forbidden(c, "权限不足")
	case errors.Is(err, lifecycle.ErrNotDirty):
		Conflict(c, "没有需要保存的修改")
	case errors.Is(err, lifecycle.ErrInvalidState):
		Conflict(c, "当前状态不允许该操作")
	case errors.Is(err, lifecycle.ErrConfirmRequired):
		Error(c, 42800, "删除需要二次确认，请携带 confirm=true 重试")
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "记录不存在")
	default:
		InternalError(c, err.Error())
	}
}

// CreateEvaluation 创建评估
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req service.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	eval, err := h.svc.Create(c.Request.Context(), GetUserID(c), GetCapabilities(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, eval)
}

// GetEvaluation 评估详情
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	eval, err := h.svc.Get(c.Request.Context(), c.Param("id"), GetCapabilities(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, eval)
}

// UpdateEvaluation 更新评估（加载→解锁→应用→保存）
func (h *EvaluationHandler) UpdateEvaluation(c *gin.Context) {
	var req service.UpdateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	eval, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetCapabilities(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, eval)
}

// DeleteEvaluation 删除评估，两步契约：?confirm=true 才真正删除
func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
	confirmed := c.Query("confirm") == "true"
	err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetCapabilities(c), confirmed)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"deleted": true})
}

// Preview 计分预览：评级每次变化时由UI调用，不落库
func (h *EvaluationHandler) Preview(c *gin.Context) {
	var req service.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Preview(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, result)
}

// GetSupplierHistory 供应商评估历史
func (h *EvaluationHandler) GetSupplierHistory(c *gin.Context) {
	items, err := h.svc.SupplierHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// GetSupplierSummary 供应商评估汇总（带缓存）
func (h *EvaluationHandler) GetSupplierSummary(c *gin.Context) {
	summary, err := h.svc.SupplierSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, summary)
}

// ExportSupplierHistory 导出供应商评估历史
// 配置了对象存储时返回下载链接，否则直接输出xlsx
func (h *EvaluationHandler) ExportSupplierHistory(c *gin.Context) {
	f, url, err := h.svc.ExportSupplierHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if url != "" {
		Success(c, gin.H{"url": url})
		return
	}

	filename := fmt.Sprintf("evaluations-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "写出导出文件失败: "+err.Error())
	}
}
