package entity

import (
	"time"

	"github.com/bitfantasy/vendo/internal/srm/scoring"
)

// SupplierEvaluation 供应商绩效评估记录
// Score 和 Tier 是派生字段：必须始终等于当前评级经
// 计分→分级→现场安全降级后的结果，只能由生命周期控制器写入
type SupplierEvaluation struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	SupplierID  string `json:"supplier_id" gorm:"size:32;not null;index"`
	EvaluatorID string `json:"evaluator_id" gorm:"size:32"`

	// 项目与采购关联
	ProjectCode      string `json:"project_code" gorm:"size:50"`
	ProjectName      string `json:"project_name" gorm:"size:200"`
	ProjectLeadID    string `json:"project_lead_id" gorm:"size:32"`
	ProjectManagerID string `json:"project_manager_id" gorm:"size:32"`
	PurchaseOrderRef string `json:"purchase_order_ref" gorm:"size:64"`
	ServiceLink      string `json:"service_link" gorm:"size:512"` // 已执行服务链接

	EvaluationDate time.Time `json:"evaluation_date" gorm:"not null;index"`
	PriceAmount    float64   `json:"price_amount" gorm:"type:decimal(15,2)"`

	// 四项加权准则的文字评级：high/medium/low/very_low，空串表示未评
	QualityRating      string `json:"quality_rating" gorm:"size:16"`
	AvailabilityRating string `json:"availability_rating" gorm:"size:16"`
	TimelinessRating   string `json:"timeliness_rating" gorm:"size:16"`
	PriceRating        string `json:"price_rating" gorm:"size:16"`

	// 现场安全：适用时附带 A/B/C 评级，只参与降级
	FieldSafetyApplied bool   `json:"field_safety_applied" gorm:"default:false"`
	FieldSafetyRating  string `json:"field_safety_rating" gorm:"size:4"`

	// 派生结果：Score 以 0-1 小数持久化
	Score *float64 `json:"score" gorm:"type:decimal(5,4)"`
	Tier  string   `json:"tier" gorm:"size:4"`

	Observations   string `json:"observations" gorm:"type:text"`
	LifecycleState string `json:"lifecycle_state" gorm:"size:16"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (SupplierEvaluation) TableName() string {
	return "srm_supplier_evaluations"
}

// 生命周期状态
const (
	LifecycleCreating = "creating"
	LifecycleViewing  = "viewing"
	LifecycleEditing  = "editing"
	LifecycleSaving   = "saving"
	LifecycleDeleted  = "deleted"
)

// Ratings 当前已评级的加权准则集合
func (e *SupplierEvaluation) Ratings() []scoring.Rating {
	pairs := []struct {
		id    scoring.CriterionID
		value string
	}{
		{scoring.CriterionQuality, e.QualityRating},
		{scoring.CriterionAvailability, e.AvailabilityRating},
		{scoring.CriterionTimeliness, e.TimelinessRating},
		{scoring.CriterionPrice, e.PriceRating},
	}

	var ratings []scoring.Rating
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		ratings = append(ratings, scoring.Rating{Criterion: p.id, Level: scoring.Level(p.value)})
	}
	return ratings
}

// FieldLevel 现场安全评级；未启用或未评时为空
func (e *SupplierEvaluation) FieldLevel() scoring.FieldLevel {
	if !e.FieldSafetyApplied {
		return scoring.FieldLevelNone
	}
	return scoring.FieldLevel(e.FieldSafetyRating)
}

// ScorePercent 派生得分的整数百分比表示
func (e *SupplierEvaluation) ScorePercent() *int {
	if e.Score == nil {
		return nil
	}
	p := int(*e.Score*100 + 0.5)
	return &p
}
