package application

import (
	"context"

	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/engine"
	"campusnexus/internal/service/promotion/metrics"
)

// RecommendationCache 缓存推荐结果，未命中时返回 (nil, nil)。
type RecommendationCache interface {
	Get(ctx context.Context, key string) (*engine.Result, error)
	Set(ctx context.Context, key string, result *engine.Result) error
}

// MetricsPublisher 把组合评分结果发布给外部告警服务。
type MetricsPublisher interface {
	PublishPortfolio(ctx context.Context, runID string, records []domain.PromotionRecord, portfolio metrics.Portfolio) (int, error)
}

// PublishLock 保证多副本部署时只有一个副本执行定时发布。
// Lock 阻塞直到获得锁或 ctx 取消，返回的 channel 在锁丢失（例如会话过期）时关闭。
type PublishLock interface {
	Lock(ctx context.Context) (<-chan struct{}, error)
	Unlock() error
}
