package entity

import "time"

// Supplier 供应商
type Supplier struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	Code         string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name         string `json:"name" gorm:"size:200;not null"`
	TaxID        string `json:"tax_id" gorm:"size:64"`
	ContactName  string `json:"contact_name" gorm:"size:100"`
	ContactEmail string `json:"contact_email" gorm:"size:200"`
	Status       string `json:"status" gorm:"size:20;default:active"` // active/inactive

	// 评估汇总（由评估保存流程维护）
	EvaluationCount int      `json:"evaluation_count" gorm:"default:0"`
	AvgScore        *float64 `json:"avg_score" gorm:"type:decimal(5,4)"` // 0-1 小数
	LatestTier      string   `json:"latest_tier" gorm:"size:4"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "srm_suppliers"
}

// 供应商状态
const (
	SupplierStatusActive   = "active"
	SupplierStatusInactive = "inactive"
)
