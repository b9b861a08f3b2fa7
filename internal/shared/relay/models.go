package relay

import "time"

// =============================================================================
// 通知中继消息结构
// 评估保存成功后以单次JSON POST投递；下游去向与重试策略不在本服务职责内
// =============================================================================

// KindSupplierEvaluation 供应商评估通知类型
const KindSupplierEvaluation = "supplier_evaluation"

// EvaluationPayload 评估持久化字段集，随通知一并投递
type EvaluationPayload struct {
	SupplierName  string `json:"supplier_name"`
	SupplierTaxID string `json:"supplier_tax_id"`
	ContactName   string `json:"contact_name"`
	ContactEmail  string `json:"contact_email"`

	PurchaseOrderRef string `json:"purchase_order_ref"`
	ProjectCode      string `json:"project_code"`
	ProjectName      string `json:"project_name"`
	ProjectLeadID    string `json:"project_lead_id"`
	ProjectManagerID string `json:"project_manager_id"`

	EvaluationDate time.Time `json:"evaluation_date"`
	EvaluatorID    string    `json:"evaluator_id"`

	QualityRating      string `json:"quality_rating"`
	AvailabilityRating string `json:"availability_rating"`
	TimelinessRating   string `json:"timeliness_rating"`
	PriceRating        string `json:"price_rating"`

	// Score 以 0-1 小数表示
	Score *float64 `json:"score"`
	Tier  string   `json:"tier"`

	Observations string  `json:"observations"`
	PriceAmount  float64 `json:"price_amount"`
	ServiceLink  string  `json:"service_link"`

	FieldSafetyApplied bool   `json:"field_safety_applied"`
	FieldSafetyRating  string `json:"field_safety_rating,omitempty"`
}

// Envelope 中继信封
type Envelope struct {
	Kind         string            `json:"kind"`
	SentAt       time.Time         `json:"sent_at"`
	Evaluation   EvaluationPayload `json:"evaluation"`
	EvaluationID *string           `json:"evaluation_id"`
}

// NewEvaluationEnvelope 组装供应商评估通知信封
func NewEvaluationEnvelope(payload EvaluationPayload, evaluationID string) *Envelope {
	env := &Envelope{
		Kind:       KindSupplierEvaluation,
		SentAt:     time.Now().UTC(),
		Evaluation: payload,
	}
	if evaluationID != "" {
		env.EvaluationID = &evaluationID
	}
	return env
}
