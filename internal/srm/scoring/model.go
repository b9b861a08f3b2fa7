package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// =============================================================================
// 计分模型注册表
// 历史评估必须按当年生效的公式重算，因此同时保留多个模型版本，
// 按评估日期的年份解析适用模型
// =============================================================================

// ErrModelNotFound 模型版本不存在
var ErrModelNotFound = errors.New("scoring model not found")

// CriterionDefinition 准则定义：权重 + 评级到分值的映射
type CriterionDefinition struct {
	ID     CriterionID
	Weight float64
	Values map[Level]float64
}

// Model 某一版本的计分模型，发布后不可变
type Model struct {
	// Epoch 版本标识，如 "2025"、"current"
	Epoch string
	// MaxYear 该版本适用的最后一个年份，0 表示当前生效、无上限
	MaxYear int
	// Criteria 加权准则定义，不含现场安全
	Criteria []CriterionDefinition
	// Normalizer 满分时的加权和，用作归一化分母
	Normalizer float64
}

// normTolerance 归一化校验容差
const normTolerance = 1e-9

// Validate 校验模型定义
// 不变量：所有准则取最高评级时 Σ(weight×value) 必须等于 Normalizer，
// 保证全高评级恰好得 100 分
func (m *Model) Validate() error {
	if m.Epoch == "" {
		return errors.New("model epoch is required")
	}
	if m.Normalizer <= 0 {
		return fmt.Errorf("model %s: normalizer must be positive", m.Epoch)
	}

	seen := make(map[CriterionID]bool, len(m.Criteria))
	var maxSum float64
	for _, c := range m.Criteria {
		if c.ID == CriterionFieldSafety {
			return fmt.Errorf("model %s: field safety carries no weight and must not be defined as a weighted criterion", m.Epoch)
		}
		if seen[c.ID] {
			return fmt.Errorf("model %s: duplicate criterion %s", m.Epoch, c.ID)
		}
		seen[c.ID] = true
		if c.Weight <= 0 {
			return fmt.Errorf("model %s: criterion %s weight must be positive", m.Epoch, c.ID)
		}
		for _, l := range Levels() {
			if _, ok := c.Values[l]; !ok {
				return fmt.Errorf("model %s: criterion %s missing value for level %s", m.Epoch, c.ID, l)
			}
		}
		maxSum += c.Weight * c.Values[LevelHigh]
	}

	for _, id := range WeightedCriteria() {
		if !seen[id] {
			return fmt.Errorf("model %s: missing criterion %s", m.Epoch, id)
		}
	}

	if math.Abs(maxSum-m.Normalizer) > normTolerance {
		return fmt.Errorf("model %s: max weighted sum %.6f does not equal normalizer %.6f", m.Epoch, maxSum, m.Normalizer)
	}
	return nil
}

// criterion 按ID查找准则定义
func (m *Model) criterion(id CriterionID) (CriterionDefinition, bool) {
	for _, c := range m.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return CriterionDefinition{}, false
}

// Registry 已发布模型的集合
type Registry struct {
	models []*Model
}

// NewRegistry 创建注册表，逐一校验模型；要求恰好一个无上限版本
func NewRegistry(models ...*Model) (*Registry, error) {
	if len(models) == 0 {
		return nil, errors.New("registry requires at least one model")
	}
	open := 0
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if m.MaxYear == 0 {
			open++
		}
	}
	if open != 1 {
		return nil, fmt.Errorf("registry requires exactly one open-ended model, got %d", open)
	}
	return &Registry{models: models}, nil
}

// ModelByEpoch 按版本标识查找
func (r *Registry) ModelByEpoch(epoch string) (*Model, error) {
	for _, m := range r.models {
		if m.Epoch == epoch {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: epoch %q", ErrModelNotFound, epoch)
}

// ModelForYear 解析某年份适用的模型：取覆盖该年份的最早截止版本，
// 超出所有历史版本则落到当前版本
func (r *Registry) ModelForYear(year int) *Model {
	var best *Model
	var current *Model
	for _, m := range r.models {
		if m.MaxYear == 0 {
			current = m
			continue
		}
		if year <= m.MaxYear && (best == nil || m.MaxYear < best.MaxYear) {
			best = m
		}
	}
	if best != nil {
		return best
	}
	return current
}

// ModelForDate 按评估日期解析适用模型
func (r *Registry) ModelForDate(t time.Time) *Model {
	return r.ModelForYear(t.Year())
}

// Epochs 全部版本标识，按注册顺序
func (r *Registry) Epochs() []string {
	out := make([]string, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.Epoch)
	}
	return out
}

// EpochForYear 某年份适用的版本标识
func (r *Registry) EpochForYear(year int) string {
	return r.ModelForYear(year).Epoch
}

// Default 内置注册表：2025及以前的历史版本 + 当前版本
// 两个版本的权重和分值表各自独立，归一化分母均为 100
func Default() *Registry {
	legacy := &Model{
		Epoch:   "2025",
		MaxYear: 2025,
		Criteria: []CriterionDefinition{
			{ID: CriterionQuality, Weight: 0.30, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 75, LevelLow: 50, LevelVeryLow: 25}},
			{ID: CriterionAvailability, Weight: 0.25, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 75, LevelLow: 50, LevelVeryLow: 25}},
			{ID: CriterionTimeliness, Weight: 0.25, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 75, LevelLow: 50, LevelVeryLow: 25}},
			{ID: CriterionPrice, Weight: 0.20, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 75, LevelLow: 50, LevelVeryLow: 25}},
		},
		Normalizer: 100,
	}

	current := &Model{
		Epoch:   "current",
		MaxYear: 0,
		Criteria: []CriterionDefinition{
			{ID: CriterionQuality, Weight: 0.35, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 70, LevelLow: 40, LevelVeryLow: 10}},
			{ID: CriterionAvailability, Weight: 0.20, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 70, LevelLow: 40, LevelVeryLow: 10}},
			{ID: CriterionTimeliness, Weight: 0.25, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 70, LevelLow: 40, LevelVeryLow: 10}},
			{ID: CriterionPrice, Weight: 0.20, Values: map[Level]float64{LevelHigh: 100, LevelMedium: 70, LevelLow: 40, LevelVeryLow: 10}},
		},
		Normalizer: 100,
	}

	r, err := NewRegistry(legacy, current)
	if err != nil {
		// 内置模型是编译期常量，校验失败属于编程错误
		panic(err)
	}
	return r
}
