package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/vendo/internal/shared/cache"
	"github.com/bitfantasy/vendo/internal/shared/export"
	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/lifecycle"
	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// dateLayout 评估日期的入参格式
const dateLayout = "2006-01-02"

// EvaluationService 评估服务：为每次请求装配生命周期控制器
type EvaluationService struct {
	repos        *repository.Repositories
	registry     *scoring.Registry
	relay        lifecycle.Dispatcher
	cache        *cache.ScoreCache
	uploader     *export.Uploader
	logger       *zap.Logger
	relayTimeout time.Duration
}

func NewEvaluationService(repos *repository.Repositories, registry *scoring.Registry, logger *zap.Logger, opts Options) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		repos:        repos,
		registry:     registry,
		relay:        opts.Relay,
		cache:        opts.Cache,
		uploader:     opts.Uploader,
		logger:       logger,
		relayTimeout: opts.RelayTimeout,
	}
}

func (s *EvaluationService) deps() lifecycle.Deps {
	return lifecycle.Deps{
		Registry:     s.registry,
		Store:        s.repos.Evaluation,
		Relay:        s.relay,
		Logger:       s.logger,
		RelayTimeout: s.relayTimeout,
	}
}

// CreateEvaluationRequest 创建评估请求
type CreateEvaluationRequest struct {
	SupplierID     string `json:"supplier_id" binding:"required"`
	Epoch          string `json:"epoch"`
	EvaluationDate string `json:"evaluation_date" binding:"required"`

	ProjectCode      string  `json:"project_code"`
	ProjectName      string  `json:"project_name"`
	ProjectLeadID    string  `json:"project_lead_id"`
	ProjectManagerID string  `json:"project_manager_id"`
	PurchaseOrderRef string  `json:"purchase_order_ref"`
	ServiceLink      string  `json:"service_link"`
	PriceAmount      float64 `json:"price_amount"`

	QualityRating      string `json:"quality_rating"`
	AvailabilityRating string `json:"availability_rating"`
	TimelinessRating   string `json:"timeliness_rating"`
	PriceRating        string `json:"price_rating"`

	FieldSafetyApplied bool   `json:"field_safety_applied"`
	FieldSafetyRating  string `json:"field_safety_rating"`

	Observations string `json:"observations"`
}

// UpdateEvaluationRequest 更新评估请求，nil字段不修改
type UpdateEvaluationRequest struct {
	Epoch          string  `json:"epoch"`
	EvaluationDate *string `json:"evaluation_date"`

	ProjectCode      *string  `json:"project_code"`
	ProjectName      *string  `json:"project_name"`
	ProjectLeadID    *string  `json:"project_lead_id"`
	ProjectManagerID *string  `json:"project_manager_id"`
	PurchaseOrderRef *string  `json:"purchase_order_ref"`
	ServiceLink      *string  `json:"service_link"`
	PriceAmount      *float64 `json:"price_amount"`

	QualityRating      *string `json:"quality_rating"`
	AvailabilityRating *string `json:"availability_rating"`
	TimelinessRating   *string `json:"timeliness_rating"`
	PriceRating        *string `json:"price_rating"`

	FieldSafetyApplied *bool   `json:"field_safety_applied"`
	FieldSafetyRating  *string `json:"field_safety_rating"`

	Observations *string `json:"observations"`
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &lifecycle.ValidationError{Field: "evaluation_date", Reason: fmt.Sprintf("日期格式应为 %s", dateLayout)}
	}
	return t, nil
}

// Create 新建评估：creating → saving → viewing
func (s *EvaluationService) Create(ctx context.Context, userID string, caps lifecycle.Capabilities, req *CreateEvaluationRequest) (*entity.SupplierEvaluation, error) {
	date, err := parseDate(req.EvaluationDate)
	if err != nil {
		return nil, err
	}

	supplier, err := s.repos.Supplier.FindByID(ctx, req.SupplierID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, &lifecycle.ValidationError{Field: "supplier_id", Reason: "供应商不存在"}
		}
		return nil, err
	}

	epoch := req.Epoch
	if epoch == "" {
		epoch = s.registry.EpochForYear(date.Year())
	}

	ctrl, err := lifecycle.NewCreate(s.deps(), epoch, caps)
	if err != nil {
		return nil, err
	}

	applied := req.FieldSafetyApplied
	if err := ctrl.Apply(&lifecycle.Patch{
		SupplierID:         &req.SupplierID,
		EvaluatorID:        &userID,
		ProjectCode:        &req.ProjectCode,
		ProjectName:        &req.ProjectName,
		ProjectLeadID:      &req.ProjectLeadID,
		ProjectManagerID:   &req.ProjectManagerID,
		PurchaseOrderRef:   &req.PurchaseOrderRef,
		ServiceLink:        &req.ServiceLink,
		EvaluationDate:     &date,
		PriceAmount:        &req.PriceAmount,
		QualityRating:      &req.QualityRating,
		AvailabilityRating: &req.AvailabilityRating,
		TimelinessRating:   &req.TimelinessRating,
		PriceRating:        &req.PriceRating,
		FieldSafetyApplied: &applied,
		FieldSafetyRating:  &req.FieldSafetyRating,
		Observations:       &req.Observations,
	}); err != nil {
		return nil, err
	}

	// 带上供应商信息，中继载荷需要名称、税号与联系人
	ctrl.Record().Supplier = supplier

	if err := ctrl.Save(ctx); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, req.SupplierID)
	return s.repos.Evaluation.FindByID(ctx, ctrl.Record().ID)
}

// Get 查看评估
func (s *EvaluationService) Get(ctx context.Context, id string, caps lifecycle.Capabilities) (*entity.SupplierEvaluation, error) {
	ctrl, err := lifecycle.Load(ctx, s.deps(), id, "", caps)
	if err != nil {
		return nil, err
	}
	return ctrl.Record(), nil
}

// Update 编辑评估：viewing → editing → saving → viewing
// 未做任何修改时返回 lifecycle.ErrNotDirty
func (s *EvaluationService) Update(ctx context.Context, id string, caps lifecycle.Capabilities, req *UpdateEvaluationRequest) (*entity.SupplierEvaluation, error) {
	ctrl, err := lifecycle.Load(ctx, s.deps(), id, req.Epoch, caps)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Unlock(); err != nil {
		return nil, err
	}

	patch := &lifecycle.Patch{
		ProjectCode:        req.ProjectCode,
		ProjectName:        req.ProjectName,
		ProjectLeadID:      req.ProjectLeadID,
		ProjectManagerID:   req.ProjectManagerID,
		PurchaseOrderRef:   req.PurchaseOrderRef,
		ServiceLink:        req.ServiceLink,
		PriceAmount:        req.PriceAmount,
		QualityRating:      req.QualityRating,
		AvailabilityRating: req.AvailabilityRating,
		TimelinessRating:   req.TimelinessRating,
		PriceRating:        req.PriceRating,
		FieldSafetyApplied: req.FieldSafetyApplied,
		FieldSafetyRating:  req.FieldSafetyRating,
		Observations:       req.Observations,
	}
	if req.EvaluationDate != nil {
		date, err := parseDate(*req.EvaluationDate)
		if err != nil {
			return nil, err
		}
		patch.EvaluationDate = &date
	}

	if err := ctrl.Apply(patch); err != nil {
		return nil, err
	}
	if err := ctrl.Save(ctx); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, ctrl.Record().SupplierID)
	return ctrl.Record(), nil
}

// Delete 删除评估，两步契约：confirmed=false 时只走到发起一步
func (s *EvaluationService) Delete(ctx context.Context, id string, caps lifecycle.Capabilities, confirmed bool) error {
	ctrl, err := lifecycle.Load(ctx, s.deps(), id, "", caps)
	if err != nil {
		return err
	}
	if err := ctrl.Unlock(); err != nil {
		return err
	}
	if err := ctrl.RequestDelete(); err != nil {
		return err
	}
	if !confirmed {
		return lifecycle.ErrConfirmRequired
	}

	supplierID := ctrl.Record().SupplierID
	if err := ctrl.ConfirmDelete(ctx); err != nil {
		return err
	}

	s.afterWrite(ctx, supplierID)
	return nil
}

// PreviewRequest 计分预览请求：UI每次评级变化都调用，不落库
type PreviewRequest struct {
	Epoch          string `json:"epoch"`
	EvaluationDate string `json:"evaluation_date" binding:"required"`

	QualityRating      string `json:"quality_rating"`
	AvailabilityRating string `json:"availability_rating"`
	TimelinessRating   string `json:"timeliness_rating"`
	PriceRating        string `json:"price_rating"`

	FieldSafetyApplied bool   `json:"field_safety_applied"`
	FieldSafetyRating  string `json:"field_safety_rating"`
}

// PreviewResult 计分预览结果
type PreviewResult struct {
	Epoch        string `json:"epoch"`
	ScorePercent *int   `json:"score_percent"`
	Tier         string `json:"tier,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Preview 纯派生：计分 → 分级 → 现场安全降级
func (s *EvaluationService) Preview(_ context.Context, req *PreviewRequest) (*PreviewResult, error) {
	date, err := parseDate(req.EvaluationDate)
	if err != nil {
		return nil, err
	}

	var model *scoring.Model
	if req.Epoch != "" {
		model, err = s.registry.ModelByEpoch(req.Epoch)
		if err != nil {
			return nil, err
		}
	} else {
		model = s.registry.ModelForDate(date)
	}

	rec := entity.SupplierEvaluation{
		QualityRating:      req.QualityRating,
		AvailabilityRating: req.AvailabilityRating,
		TimelinessRating:   req.TimelinessRating,
		PriceRating:        req.PriceRating,
		FieldSafetyApplied: req.FieldSafetyApplied,
		FieldSafetyRating:  req.FieldSafetyRating,
	}

	result := &PreviewResult{Epoch: model.Epoch}
	percent := scoring.ComputeScore(model, rec.Ratings())
	if percent == nil {
		return result, nil
	}

	tier := scoring.ApplyFieldSafety(scoring.Classify(*percent), rec.FieldLevel())
	result.ScorePercent = percent
	result.Tier = string(tier)
	result.Status = tier.Status()
	return result, nil
}

// SupplierHistory 供应商评估历史
func (s *EvaluationService) SupplierHistory(ctx context.Context, supplierID string) ([]entity.SupplierEvaluation, error) {
	return s.repos.Evaluation.FindBySupplier(ctx, supplierID)
}

// SupplierSummary 供应商评估汇总，优先读缓存
func (s *EvaluationService) SupplierSummary(ctx context.Context, supplierID string) (*cache.SupplierSummary, error) {
	if s.cache != nil {
		if summary, err := s.cache.GetSummary(ctx, supplierID); err != nil {
			s.logger.Debug("读取汇总缓存失败", zap.String("supplier_id", supplierID), zap.Error(err))
		} else if summary != nil {
			return summary, nil
		}
	}

	if _, err := s.repos.Supplier.FindByID(ctx, supplierID); err != nil {
		return nil, err
	}

	stats, err := s.repos.Evaluation.FindSupplierStats(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	summary := &cache.SupplierSummary{
		SupplierID:      supplierID,
		EvaluationCount: stats.Count,
		LatestTier:      stats.LatestTier,
		LatestStatus:    scoring.Tier(stats.LatestTier).Status(),
	}
	if stats.Count > 0 {
		avg := stats.AvgScore
		summary.AvgScore = &avg
	}

	if s.cache != nil {
		if err := s.cache.SetSummary(ctx, summary); err != nil {
			s.logger.Debug("写入汇总缓存失败", zap.String("supplier_id", supplierID), zap.Error(err))
		}
	}
	return summary, nil
}

// ExportSupplierHistory 导出评估历史工作簿
// 配置了对象存储时上传并返回下载链接，否则返回工作簿由上层直接输出
func (s *EvaluationService) ExportSupplierHistory(ctx context.Context, supplierID string) (*excelize.File, string, error) {
	supplier, err := s.repos.Supplier.FindByID(ctx, supplierID)
	if err != nil {
		return nil, "", err
	}
	evals, err := s.repos.Evaluation.FindBySupplier(ctx, supplierID)
	if err != nil {
		return nil, "", err
	}

	f, err := export.BuildSupplierWorkbook(supplier, evals, s.registry)
	if err != nil {
		return nil, "", fmt.Errorf("生成导出工作簿失败: %w", err)
	}

	if s.uploader == nil {
		return f, "", nil
	}
	url, err := s.uploader.Upload(ctx, supplier.Code, f)
	if err != nil {
		return nil, "", err
	}
	return f, url, nil
}

// afterWrite 保存/删除成功后的汇总维护：刷新供应商冗余字段并失效缓存
// 记录本身已提交，这里的失败只记日志
func (s *EvaluationService) afterWrite(ctx context.Context, supplierID string) {
	stats, err := s.repos.Evaluation.FindSupplierStats(ctx, supplierID)
	if err != nil {
		s.logger.Warn("刷新供应商评估汇总失败", zap.String("supplier_id", supplierID), zap.Error(err))
	} else if err := s.repos.Supplier.UpdateSummary(ctx, supplierID, stats.Count, stats.AvgScore, stats.LatestTier); err != nil {
		s.logger.Warn("更新供应商汇总字段失败", zap.String("supplier_id", supplierID), zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, supplierID); err != nil {
			s.logger.Debug("失效汇总缓存失败", zap.String("supplier_id", supplierID), zap.Error(err))
		}
	}
}
