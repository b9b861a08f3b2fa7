package scoring

import "math"

// Rating 单个准则的评级
type Rating struct {
	Criterion CriterionID
	Level     Level
}

// ComputeScore 加权计分，返回 0-100 的整数百分比
// 纯函数：相同的 (model, ratings) 永远得到相同结果
// 只累计已评级的加权准则；一项都没评时返回 nil（尚无可评内容）
// 现场安全准则不参与加权和
func ComputeScore(m *Model, ratings []Rating) *int {
	var numerator float64
	contributed := 0

	for _, r := range ratings {
		if r.Criterion == CriterionFieldSafety || !r.Level.Valid() {
			continue
		}
		def, ok := m.criterion(r.Criterion)
		if !ok {
			continue
		}
		numerator += def.Weight * def.Values[r.Level]
		contributed++
	}

	if contributed == 0 {
		return nil
	}

	score := int(math.Round(numerator / m.Normalizer * 100))
	return &score
}
