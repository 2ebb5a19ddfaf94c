package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campusnexus/internal/pkg/logger"
	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/engine"
	"campusnexus/internal/service/promotion/metrics"
)

const publishLockRetry = 5 * time.Second

// InsightService 定义了推荐服务提供的所有业务用例
type InsightService struct {
	repo      domain.PromotionRepository
	engine    atomic.Pointer[engine.Engine]
	cache     RecommendationCache // 可为 nil
	publisher MetricsPublisher    // 可为 nil
	lock      PublishLock         // 为 nil 时每个副本都会定时发布
	tracer    trace.Tracer
	metrics   *Metrics
}

// NewInsightService 创建一个新的推荐服务实例
func NewInsightService(repo domain.PromotionRepository, eng *engine.Engine, cache RecommendationCache,
	publisher MetricsPublisher, tracer trace.Tracer, m *Metrics) *InsightService {
	s := &InsightService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		tracer:    tracer,
		metrics:   m,
	}
	s.engine.Store(eng)
	return s
}

// SetEngine 在评分策略热更新后替换引擎，进行中的请求继续使用旧引擎。
func (s *InsightService) SetEngine(eng *engine.Engine) {
	s.engine.Store(eng)
}

// SetPublishLock 设置定时发布使用的分布式锁，需在 PublishLoop 启动前调用。
func (s *InsightService) SetPublishLock(lock PublishLock) {
	s.lock = lock
}

// Engine 返回当前使用的引擎
func (s *InsightService) Engine() *engine.Engine {
	return s.engine.Load()
}

// Recommend 读取快照并生成推荐。结果按快照指纹、日期和目录版本缓存，
// 缓存不可用时直接计算，不影响请求。
func (s *InsightService) Recommend(ctx context.Context, req RecommendRequest) (*RecommendResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.Recommend")
	defer span.End()
	defer s.observe("recommend", time.Now())

	goal, err := domain.ParseCampaignGoal(req.Goal)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	source, err := parseSource(req.Source)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.TopN < 0 {
		return nil, errors.Wrapf(domain.ErrInvalidArgument, "top must be positive, got %d", req.TopN)
	}

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("insight.goal", string(goal)),
		attribute.String("insight.source", string(source)),
		attribute.String("insight.run_id", runID),
	)

	records, err := s.repo.ListSnapshot(ctx, domain.SnapshotFilter{Source: source})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load snapshot failed")
		return nil, snapshotError(err)
	}

	// 引擎和目录各取一次，缓存键和计算结果基于同一份策略和目录
	eng := s.Engine()
	catalog := eng.Catalog()
	now := eng.Now()
	key := s.cacheKey(ctx, eng, catalog, records, goal, source, req.TopN, now)
	result, cached := s.cachedResult(ctx, key)
	if result == nil {
		run, err := eng.RunWithCatalog(catalog, records, goal, now, req.TopN)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result = &run
		s.storeResult(ctx, key, result)
	}

	s.reportRejections(ctx, runID, result.Rejected)

	status := StatusOK
	if len(result.Recommendations) == 0 {
		status = StatusInsufficientData
	}
	if s.metrics != nil {
		s.metrics.requests.WithLabelValues(string(goal), status).Inc()
	}

	logger.Ctx(ctx).Info().
		Str("run_id", runID).
		Str("goal", string(goal)).
		Int("eligible", result.EligibleCount).
		Int("returned", len(result.Recommendations)).
		Bool("cached", cached).
		Msg("Recommendations generated")
	span.AddEvent("Recommendations generated")

	return &RecommendResponse{RunID: runID, Status: status, Cached: cached, Result: *result}, nil
}

// RecordMetrics 单独计算一条记录的指标。
func (s *InsightService) RecordMetrics(ctx context.Context, id string) (*metrics.Metrics, error) {
	ctx, span := s.tracer.Start(ctx, "service.RecordMetrics")
	defer span.End()
	defer s.observe("record_metrics", time.Now())
	span.SetAttributes(attribute.String("promotion.record_id", id))

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}
		return nil, snapshotError(err)
	}
	m, err := s.Engine().Calculator().Compute(*record)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &m, nil
}

// Portfolio 对整份快照评分，覆盖率分量在组合层面计算。
func (s *InsightService) Portfolio(ctx context.Context, filter domain.SnapshotFilter) (*metrics.Portfolio, error) {
	ctx, span := s.tracer.Start(ctx, "service.Portfolio")
	defer span.End()
	defer s.observe("portfolio", time.Now())

	records, err := s.repo.ListSnapshot(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, snapshotError(err)
	}
	p := s.Engine().Calculator().ComputePortfolio(records)
	s.reportRejections(ctx, "", p.Rejected)
	return &p, nil
}

// CalendarContext 返回指定日期的日历上下文，date 为空时使用当前日期。
func (s *InsightService) CalendarContext(ctx context.Context, date string) (*CalendarContextResponse, error) {
	_, span := s.tracer.Start(ctx, "service.CalendarContext")
	defer span.End()

	eng := s.Engine()
	at := eng.Now()
	if date != "" {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidArgument, "date %q must be YYYY-MM-DD", date)
		}
		at = parsed
	}
	return toCalendarResponse(eng.Context(at)), nil
}

// PublishMetrics 对整份快照评分并把结果发布到 Kafka。
func (s *InsightService) PublishMetrics(ctx context.Context) (*PublishResponse, error) {
	if s.publisher == nil {
		return nil, domain.ErrPublisherDisabled
	}
	ctx, span := s.tracer.Start(ctx, "service.PublishMetrics")
	defer span.End()
	defer s.observe("publish_metrics", time.Now())

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("insight.run_id", runID))

	records, err := s.repo.ListSnapshot(ctx, domain.SnapshotFilter{})
	if err != nil {
		span.RecordError(err)
		return nil, snapshotError(err)
	}
	portfolio := s.Engine().Calculator().ComputePortfolio(records)
	s.reportRejections(ctx, runID, portfolio.Rejected)

	n, err := s.publisher.PublishPortfolio(ctx, runID, records, portfolio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		s.countPublished("error", 1)
		return nil, errors.Wrap(err, "publish promotion metrics")
	}
	s.countPublished("ok", n)

	logger.Ctx(ctx).Info().Str("run_id", runID).Int("published", n).Msg("Promotion metrics published")
	return &PublishResponse{RunID: runID, Published: n, Rejected: len(portfolio.Rejected)}, nil
}

// PublishLoop 按固定周期发布指标，直到 ctx 取消。单次失败只记录日志。
// 设置了 PublishLock 时只有持锁的副本发布，锁丢失后停止发布并重新竞争。
func (s *InsightService) PublishLoop(ctx context.Context, interval time.Duration) error {
	if s.publisher == nil || interval <= 0 {
		return nil
	}
	for {
		lost, err := s.acquirePublishLock(ctx)
		if err != nil {
			logger.Ctx(ctx).Info().Msg("Metrics publisher stopped")
			return nil
		}
		s.publishUntil(ctx, interval, lost)
		s.releasePublishLock(ctx)
		if ctx.Err() != nil {
			logger.Ctx(ctx).Info().Msg("Metrics publisher stopped")
			return nil
		}
		logger.Ctx(ctx).Warn().Msg("publisher lock lost, waiting to reacquire")
	}
}

// acquirePublishLock 阻塞直到获得锁，锁服务不可用时按固定间隔重试。只在 ctx 取消时返回错误。
// 没有配置锁时返回 nil channel，它永远不会触发。
func (s *InsightService) acquirePublishLock(ctx context.Context) (<-chan struct{}, error) {
	if s.lock == nil {
		return nil, nil
	}
	for {
		lost, err := s.lock.Lock(ctx)
		if err == nil {
			logger.Ctx(ctx).Info().Msg("Publisher lock acquired")
			return lost, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to acquire publisher lock, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(publishLockRetry):
		}
	}
}

func (s *InsightService) releasePublishLock(ctx context.Context) {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to release publisher lock")
	}
}

func (s *InsightService) publishUntil(ctx context.Context, interval time.Duration, lost <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", interval).Msg("Metrics publisher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
			return
		case <-ticker.C:
			if _, err := s.PublishMetrics(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("scheduled metrics publication failed")
			}
		}
	}
}

func (s *InsightService) cachedResult(ctx context.Context, key string) (*engine.Result, bool) {
	if s.cache == nil || key == "" {
		return nil, false
	}
	result, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Ctx(ctx).Warn().Err(err).Msg("recommendation cache unavailable")
		s.countCache("error")
		return nil, false
	case result == nil:
		s.countCache("miss")
		return nil, false
	default:
		s.countCache("hit")
		return result, true
	}
}

func (s *InsightService) storeResult(ctx context.Context, key string, result *engine.Result) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, result); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to cache recommendations")
	}
}

// cacheKey 返回空串表示本次不使用缓存。
func (s *InsightService) cacheKey(ctx context.Context, eng *engine.Engine, catalog *calendar.Catalog,
	records []domain.PromotionRecord, goal domain.CampaignGoal, source domain.RecordSource, topN int, now time.Time) string {
	if s.cache == nil || eng.ConfigFingerprint() == "" {
		return ""
	}
	fingerprint, err := engine.Fingerprint(records)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to fingerprint snapshot")
		return ""
	}
	return RecommendationKey{
		Goal:           goal,
		Source:         source,
		TopN:           topN,
		Date:           calendar.CivilDate(now).Format(time.DateOnly),
		CatalogVersion: catalogVersion(catalog),
		Config:         eng.ConfigFingerprint(),
		Fingerprint:    fingerprint,
	}.String()
}

func (s *InsightService) reportRejections(ctx context.Context, runID string, rejected []metrics.Rejection) {
	for _, r := range rejected {
		logger.Ctx(ctx).Warn().
			Str("run_id", runID).
			Str("record_id", r.RecordID).
			Str("reason", r.Reason).
			Msg("promotion record excluded from scoring")
	}
	if s.metrics != nil && len(rejected) > 0 {
		s.metrics.rejectedRecords.Add(float64(len(rejected)))
	}
}

func (s *InsightService) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (s *InsightService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.cacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *InsightService) countPublished(outcome string, n int) {
	if s.metrics != nil {
		s.metrics.published.WithLabelValues(outcome).Add(float64(n))
	}
}

func catalogVersion(c *calendar.Catalog) string {
	if c == nil {
		return ""
	}
	return c.Version
}

// snapshotError 同时保留持久层的原始错误和 ErrSnapshotUnavailable。
func snapshotError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrSnapshotUnavailable, err)
}

func parseSource(s string) (domain.RecordSource, error) {
	switch source := domain.RecordSource(s); source {
	case "", domain.SourceCode, domain.SourceTemplate:
		return source, nil
	default:
		return "", errors.Wrapf(domain.ErrInvalidArgument, "unknown source %q", s)
	}
}
