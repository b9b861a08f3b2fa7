package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/vendo/internal/shared/relay"
	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 评估记录生命周期控制器
// 管辖 creating → saving → viewing ⇄ editing → saving → viewing 及终态 deleted，
// 维护基线快照与脏检测，并通过模型版本守卫阻止跨版本保存。
// 每个控制器实例绑定一个模型版本（对应前端的一个评分页面）。
// =============================================================================

// State 生命周期状态
type State string

const (
	StateCreating State = entity.LifecycleCreating
	StateViewing  State = entity.LifecycleViewing
	StateEditing  State = entity.LifecycleEditing
	StateSaving   State = entity.LifecycleSaving
	StateDeleted  State = entity.LifecycleDeleted
)

// Capabilities 外部RBAC协作方提供的能力开关
// 控制器只消费布尔值，权限如何得出是上层的事
type Capabilities struct {
	CanCreate bool
	CanView   bool
	CanEdit   bool
	CanDelete bool
}

// Store 持久化存储契约
type Store interface {
	Create(ctx context.Context, eval *entity.SupplierEvaluation) error
	Update(ctx context.Context, eval *entity.SupplierEvaluation) error
	FindByID(ctx context.Context, id string) (*entity.SupplierEvaluation, error)
	Delete(ctx context.Context, id string) error
	FindBySupplier(ctx context.Context, supplierID string) ([]entity.SupplierEvaluation, error)
}

// Dispatcher 通知中继契约
type Dispatcher interface {
	SendEvaluation(ctx context.Context, env *relay.Envelope) error
}

// Deps 控制器依赖集合
type Deps struct {
	Registry *scoring.Registry
	Store    Store
	// Relay 可为nil（未配置中继）
	Relay        Dispatcher
	Logger       *zap.Logger
	RelayTimeout time.Duration
}

// Controller 单条评估记录的生命周期控制器
type Controller struct {
	state State
	epoch string
	deps  Deps
	caps  Capabilities

	record          *entity.SupplierEvaluation
	baseline        snapshot
	deleteRequested bool
}

// snapshot 标量字段与评级的基线快照，用于脏检测
type snapshot struct {
	supplierID       string
	evaluatorID      string
	projectCode      string
	projectName      string
	projectLeadID    string
	projectManagerID string
	purchaseOrderRef string
	serviceLink      string
	evaluationDate   int64 // unix秒，避免time.Time单调时钟干扰比较
	priceAmount      float64
	quality          string
	availability     string
	timeliness       string
	price            string
	fieldApplied     bool
	fieldRating      string
	observations     string
}

func snapshotOf(e *entity.SupplierEvaluation) snapshot {
	return snapshot{
		supplierID:       e.SupplierID,
		evaluatorID:      e.EvaluatorID,
		projectCode:      e.ProjectCode,
		projectName:      e.ProjectName,
		projectLeadID:    e.ProjectLeadID,
		projectManagerID: e.ProjectManagerID,
		purchaseOrderRef: e.PurchaseOrderRef,
		serviceLink:      e.ServiceLink,
		evaluationDate:   e.EvaluationDate.Unix(),
		priceAmount:      e.PriceAmount,
		quality:          e.QualityRating,
		availability:     e.AvailabilityRating,
		timeliness:       e.TimelinessRating,
		price:            e.PriceRating,
		fieldApplied:     e.FieldSafetyApplied,
		fieldRating:      e.FieldSafetyRating,
		observations:     e.Observations,
	}
}

func normalize(deps Deps) Deps {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RelayTimeout <= 0 {
		deps.RelayTimeout = relay.DefaultTimeout
	}
	return deps
}

// NewCreate 进入新建流程，所有字段可编辑
func NewCreate(deps Deps, epoch string, caps Capabilities) (*Controller, error) {
	deps = normalize(deps)
	if !caps.CanCreate {
		return nil, ErrForbidden
	}
	if _, err := deps.Registry.ModelByEpoch(epoch); err != nil {
		return nil, err
	}
	return &Controller{
		state: StateCreating,
		epoch: epoch,
		deps:  deps,
		caps:  caps,
		record: &entity.SupplierEvaluation{
			EvaluationDate: time.Now(),
			LifecycleState: entity.LifecycleCreating,
		},
	}, nil
}

// Load 从存储加载记录进入查看态，并固定基线快照
// epoch 为空时按记录的评估日期解析绑定版本
func Load(ctx context.Context, deps Deps, id, epoch string, caps Capabilities) (*Controller, error) {
	deps = normalize(deps)
	if !caps.CanView {
		return nil, ErrForbidden
	}

	rec, err := deps.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if epoch == "" {
		epoch = deps.Registry.EpochForYear(rec.EvaluationDate.Year())
	} else if _, err := deps.Registry.ModelByEpoch(epoch); err != nil {
		return nil, err
	}

	return &Controller{
		state:    StateViewing,
		epoch:    epoch,
		deps:     deps,
		caps:     caps,
		record:   rec,
		baseline: snapshotOf(rec),
	}, nil
}

// State 当前生命周期状态
func (c *Controller) State() State { return c.state }

// Epoch 绑定的模型版本
func (c *Controller) Epoch() string { return c.epoch }

// Record 当前工作副本
func (c *Controller) Record() *entity.SupplierEvaluation { return c.record }

// Unlock 查看态解锁进入编辑态，基线重置为解锁时刻的显示值
func (c *Controller) Unlock() error {
	if c.state != StateViewing {
		return ErrInvalidState
	}
	if !c.caps.CanEdit {
		return ErrForbidden
	}
	c.state = StateEditing
	c.baseline = snapshotOf(c.record)
	c.deleteRequested = false
	return nil
}

// Patch 字段变更集，nil字段表示不修改
type Patch struct {
	SupplierID       *string
	EvaluatorID      *string
	ProjectCode      *string
	ProjectName      *string
	ProjectLeadID    *string
	ProjectManagerID *string
	PurchaseOrderRef *string
	ServiceLink      *string
	EvaluationDate   *time.Time
	PriceAmount      *float64

	QualityRating      *string
	AvailabilityRating *string
	TimelinessRating   *string
	PriceRating        *string

	FieldSafetyApplied *bool
	FieldSafetyRating  *string

	Observations *string
}

// Apply 应用变更并立即重新派生得分与等级
// 评级值非法时返回校验错误，记录保持不变
func (c *Controller) Apply(p *Patch) error {
	if c.state != StateCreating && c.state != StateEditing {
		return ErrInvalidState
	}
	if err := p.validate(); err != nil {
		return err
	}

	r := c.record
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&r.SupplierID, p.SupplierID)
	setString(&r.EvaluatorID, p.EvaluatorID)
	setString(&r.ProjectCode, p.ProjectCode)
	setString(&r.ProjectName, p.ProjectName)
	setString(&r.ProjectLeadID, p.ProjectLeadID)
	setString(&r.ProjectManagerID, p.ProjectManagerID)
	setString(&r.PurchaseOrderRef, p.PurchaseOrderRef)
	setString(&r.ServiceLink, p.ServiceLink)
	setString(&r.QualityRating, p.QualityRating)
	setString(&r.AvailabilityRating, p.AvailabilityRating)
	setString(&r.TimelinessRating, p.TimelinessRating)
	setString(&r.PriceRating, p.PriceRating)
	setString(&r.Observations, p.Observations)

	if p.EvaluationDate != nil {
		r.EvaluationDate = *p.EvaluationDate
	}
	if p.PriceAmount != nil {
		r.PriceAmount = *p.PriceAmount
	}
	if p.FieldSafetyApplied != nil {
		r.FieldSafetyApplied = *p.FieldSafetyApplied
		if !r.FieldSafetyApplied {
			r.FieldSafetyRating = ""
		}
	}
	if p.FieldSafetyRating != nil {
		r.FieldSafetyRating = *p.FieldSafetyRating
	}

	c.recompute()
	return nil
}

func (p *Patch) validate() error {
	checkLevel := func(field string, v *string) error {
		if v == nil || *v == "" {
			return nil
		}
		if !scoring.Level(*v).Valid() {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("未知评级 %q", *v)}
		}
		return nil
	}
	if err := checkLevel("quality_rating", p.QualityRating); err != nil {
		return err
	}
	if err := checkLevel("availability_rating", p.AvailabilityRating); err != nil {
		return err
	}
	if err := checkLevel("timeliness_rating", p.TimelinessRating); err != nil {
		return err
	}
	if err := checkLevel("price_rating", p.PriceRating); err != nil {
		return err
	}
	if p.FieldSafetyRating != nil && !scoring.FieldLevel(*p.FieldSafetyRating).Valid() {
		return &ValidationError{Field: "field_safety_rating", Reason: fmt.Sprintf("未知现场安全评级 %q", *p.FieldSafetyRating)}
	}
	return nil
}

// recompute 显式派生步骤：得分与等级永远由当前评级重算，绝不单独赋值
func (c *Controller) recompute() {
	r := c.record
	model := c.deps.Registry.ModelForDate(r.EvaluationDate)

	percent := scoring.ComputeScore(model, r.Ratings())
	if percent == nil {
		r.Score = nil
		r.Tier = ""
		return
	}

	fraction := float64(*percent) / 100
	r.Score = &fraction
	r.Tier = string(scoring.ApplyFieldSafety(scoring.Classify(*percent), r.FieldLevel()))
}

// Dirty 是否有字段偏离基线；新建流程没有基线，视为始终脏
func (c *Controller) Dirty() bool {
	if c.state == StateCreating {
		return true
	}
	return snapshotOf(c.record) != c.baseline
}

// CanSave 保存是否可用
// 新建：填了供应商即可；编辑：至少一处变更且持有写能力
func (c *Controller) CanSave() bool {
	switch c.state {
	case StateCreating:
		return c.record.SupplierID != "" && c.caps.CanCreate
	case StateEditing:
		return c.Dirty() && c.caps.CanEdit
	}
	return false
}

// Save 校验 → 版本守卫 → 重算 → 持久化 → 回到查看态并重置基线
// 存储成功后才尽力投递通知中继；存储失败则停留在保存前的状态
func (c *Controller) Save(ctx context.Context) error {
	prev := c.state
	if prev != StateCreating && prev != StateEditing {
		return ErrInvalidState
	}
	if prev == StateCreating && !c.caps.CanCreate {
		return ErrForbidden
	}
	if prev == StateEditing && !c.caps.CanEdit {
		return ErrForbidden
	}

	r := c.record
	if r.SupplierID == "" {
		return &ValidationError{Field: "supplier_id", Reason: "必须选择供应商"}
	}
	if prev == StateEditing && !c.Dirty() {
		return ErrNotDirty
	}

	// 模型版本守卫：评估日期超出绑定版本的适用年份时拒绝保存
	bound, err := c.deps.Registry.ModelByEpoch(c.epoch)
	if err != nil {
		return err
	}
	if bound.MaxYear != 0 && r.EvaluationDate.Year() > bound.MaxYear {
		return &ValidationError{
			Field:  "evaluation_date",
			Reason: fmt.Sprintf("评估日期年份 %d 超出模型版本 %s 的适用范围（≤%d）", r.EvaluationDate.Year(), c.epoch, bound.MaxYear),
		}
	}

	c.recompute()

	c.state = StateSaving
	r.LifecycleState = entity.LifecycleViewing

	if prev == StateCreating {
		if r.ID == "" {
			r.ID = uuid.New().String()[:32]
		}
		err = c.deps.Store.Create(ctx, r)
	} else {
		err = c.deps.Store.Update(ctx, r)
	}
	if err != nil {
		c.state = prev
		r.LifecycleState = string(prev)
		return fmt.Errorf("持久化评估失败: %w", err)
	}

	c.state = StateViewing
	c.baseline = snapshotOf(r)
	c.deleteRequested = false

	c.dispatchRelay(*r)
	return nil
}

// dispatchRelay 提交后异步投递通知，失败只记日志，不回滚、不重试
func (c *Controller) dispatchRelay(rec entity.SupplierEvaluation) {
	if c.deps.Relay == nil {
		return
	}

	env := relay.NewEvaluationEnvelope(buildPayload(&rec), rec.ID)
	logger := c.deps.Logger
	timeout := c.deps.RelayTimeout
	dispatcher := c.deps.Relay

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := dispatcher.SendEvaluation(ctx, env); err != nil {
			logger.Warn("评估通知中继投递失败",
				zap.String("evaluation_id", rec.ID),
				zap.String("supplier_id", rec.SupplierID),
				zap.Error(err),
			)
		}
	}()
}

func buildPayload(r *entity.SupplierEvaluation) relay.EvaluationPayload {
	p := relay.EvaluationPayload{
		PurchaseOrderRef:   r.PurchaseOrderRef,
		ProjectCode:        r.ProjectCode,
		ProjectName:        r.ProjectName,
		ProjectLeadID:      r.ProjectLeadID,
		ProjectManagerID:   r.ProjectManagerID,
		EvaluationDate:     r.EvaluationDate,
		EvaluatorID:        r.EvaluatorID,
		QualityRating:      r.QualityRating,
		AvailabilityRating: r.AvailabilityRating,
		TimelinessRating:   r.TimelinessRating,
		PriceRating:        r.PriceRating,
		Score:              r.Score,
		Tier:               r.Tier,
		Observations:       r.Observations,
		PriceAmount:        r.PriceAmount,
		ServiceLink:        r.ServiceLink,
		FieldSafetyApplied: r.FieldSafetyApplied,
		FieldSafetyRating:  r.FieldSafetyRating,
	}
	if r.Supplier != nil {
		p.SupplierName = r.Supplier.Name
		p.SupplierTaxID = r.Supplier.TaxID
		p.ContactName = r.Supplier.ContactName
		p.ContactEmail = r.Supplier.ContactEmail
	}
	return p
}

// RequestDelete 删除第一步：仅编辑态可发起，需持删除能力
func (c *Controller) RequestDelete() error {
	if c.state != StateEditing {
		return ErrInvalidState
	}
	if !c.caps.CanDelete {
		return ErrForbidden
	}
	c.deleteRequested = true
	return nil
}

// ConfirmDelete 删除第二步：确认后才真正调用存储删除
// 成功进入终态 deleted；失败停留在编辑态，可重试
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	if !c.deleteRequested {
		return ErrConfirmRequired
	}
	if err := c.deps.Store.Delete(ctx, c.record.ID); err != nil {
		return fmt.Errorf("删除评估失败: %w", err)
	}
	c.state = StateDeleted
	c.record.LifecycleState = entity.LifecycleDeleted
	c.deleteRequested = false
	return nil
}

// DeleteRequested 是否已发起删除等待确认
func (c *Controller) DeleteRequested() bool { return c.deleteRequested }

// ScorePercent 当前派生得分（整数百分比），未评时为nil
func (c *Controller) ScorePercent() *int { return c.record.ScorePercent() }

// Tier 当前派生等级，未评时为空串
func (c *Controller) Tier() string { return c.record.Tier }

// StatusText 当前等级的展示文案
func (c *Controller) StatusText() string {
	return scoring.Tier(c.record.Tier).Status()
}
