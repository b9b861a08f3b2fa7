package scoring

// =============================================================================
// 评估准则目录
// 四个加权准则 + 可选的现场安全准则（零权重，只参与降级）
// =============================================================================

// CriterionID 准则标识
type CriterionID string

const (
	CriterionQuality      CriterionID = "quality"      // 质量
	CriterionAvailability CriterionID = "availability" // 配合度/响应
	CriterionTimeliness   CriterionID = "timeliness"   // 交期
	CriterionPrice        CriterionID = "price"        // 价格竞争力
	CriterionFieldSafety  CriterionID = "field_safety" // 现场安全（零权重）
)

// WeightedCriteria 参与加权计分的准则，按展示顺序排列
func WeightedCriteria() []CriterionID {
	return []CriterionID{
		CriterionQuality,
		CriterionAvailability,
		CriterionTimeliness,
		CriterionPrice,
	}
}

// Level 加权准则的定性评级
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelVeryLow Level = "very_low"
)

// Levels 全部评级，从高到低
func Levels() []Level {
	return []Level{LevelHigh, LevelMedium, LevelLow, LevelVeryLow}
}

// Valid 是否为合法评级
func (l Level) Valid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow, LevelVeryLow:
		return true
	}
	return false
}

// FieldLevel 现场安全评级，空串表示未评
type FieldLevel string

const (
	FieldLevelNone FieldLevel = ""
	FieldLevelA    FieldLevel = "A"
	FieldLevelB    FieldLevel = "B"
	FieldLevelC    FieldLevel = "C"
)

// Valid 是否为合法现场安全评级（未评也视为合法）
func (f FieldLevel) Valid() bool {
	switch f {
	case FieldLevelNone, FieldLevelA, FieldLevelB, FieldLevelC:
		return true
	}
	return false
}
