package scoring

// =============================================================================
// 等级划分与现场安全降级
// =============================================================================

// Tier 供应商分级
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// 边界约定：A 当且仅当 score/100 > 0.764（即整数分 77 起），
// 0.5 ≤ x ≤ 0.764 为 B，其余为 C
const (
	tierAThreshold = 0.764
	tierBThreshold = 0.5
)

// Classify 按百分比得分划分等级
func Classify(scorePercent int) Tier {
	c := float64(scorePercent) / 100
	switch {
	case c > tierAThreshold:
		return TierA
	case c >= tierBThreshold:
		return TierB
	default:
		return TierC
	}
}

// Status 各等级的对外展示文案
func (t Tier) Status() string {
	switch t {
	case TierA:
		return "eligible for immediate contracting"
	case TierB:
		return "eligible conditioned on an improvement plan"
	case TierC:
		return "disqualified from contracting"
	}
	return ""
}

// Valid 是否为合法等级
func (t Tier) Valid() bool {
	switch t {
	case TierA, TierB, TierC:
		return true
	}
	return false
}

// rank 等级序：A=3 B=2 C=1
func (t Tier) rank() int {
	switch t {
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	}
	return 0
}

// ApplyFieldSafety 现场安全评级叠加到基础等级
// 只降不升：加权得 A 但现场安全为 C 的供应商最终为 C
// 未评现场安全时维持基础等级
func ApplyFieldSafety(base Tier, field FieldLevel) Tier {
	if field == FieldLevelNone {
		return base
	}
	ft := Tier(field)
	if !ft.Valid() {
		return base
	}
	if ft.rank() < base.rank() {
		return ft
	}
	return base
}
