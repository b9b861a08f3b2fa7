package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 供应商评估汇总缓存
// 汇总接口读多写少，保存/删除评估后失效对应键即可
// =============================================================================

// DefaultTTL 汇总缓存默认有效期
const DefaultTTL = 10 * time.Minute

// SupplierSummary 供应商评估汇总
type SupplierSummary struct {
	SupplierID      string   `json:"supplier_id"`
	EvaluationCount int64    `json:"evaluation_count"`
	AvgScore        *float64 `json:"avg_score"` // 0-1 小数
	LatestTier      string   `json:"latest_tier"`
	LatestStatus    string   `json:"latest_status"`
}

// ScoreCache 基于redis的汇总缓存
type ScoreCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewScoreCache 创建缓存；ttl<=0 时使用默认有效期
func NewScoreCache(rdb *redis.Client, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ScoreCache{rdb: rdb, ttl: ttl}
}

func summaryKey(supplierID string) string {
	return fmt.Sprintf("srm:supplier:%s:summary", supplierID)
}

// GetSummary 读取缓存的汇总；未命中返回 (nil, nil)
func (c *ScoreCache) GetSummary(ctx context.Context, supplierID string) (*SupplierSummary, error) {
	raw, err := c.rdb.Get(ctx, summaryKey(supplierID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary SupplierSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("反序列化汇总缓存失败: %w", err)
	}
	return &summary, nil
}

// SetSummary 写入汇总缓存
func (c *ScoreCache) SetSummary(ctx context.Context, summary *SupplierSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("序列化汇总缓存失败: %w", err)
	}
	return c.rdb.Set(ctx, summaryKey(summary.SupplierID), raw, c.ttl).Err()
}

// Invalidate 评估保存/删除后失效该供应商的汇总
func (c *ScoreCache) Invalidate(ctx context.Context, supplierID string) error {
	return c.rdb.Del(ctx, summaryKey(supplierID)).Err()
}
