package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/engine"
	"campusnexus/internal/service/promotion/infrastructure/rule"
	"campusnexus/internal/service/promotion/metrics"
)

type fakeRepo struct {
	records []domain.PromotionRecord
	err     error
	filters []domain.SnapshotFilter
}

func (r *fakeRepo) ListSnapshot(_ context.Context, filter domain.SnapshotFilter) ([]domain.PromotionRecord, error) {
	r.filters = append(r.filters, filter)
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.PromotionRecord
	for _, rec := range r.records {
		if filter.Source == "" || rec.Source == filter.Source {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*domain.PromotionRecord, error) {
	for i := range r.records {
		if r.records[i].ID == id {
			rec := r.records[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

type mapCache struct {
	data map[string]*engine.Result
	err  error
	sets int
}

func (c *mapCache) Get(_ context.Context, key string) (*engine.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.data[key], nil
}

func (c *mapCache) Set(_ context.Context, key string, result *engine.Result) error {
	if c.err != nil {
		return c.err
	}
	c.sets++
	c.data[key] = result
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	runs  []string
	count int
	err   error
}

func (p *fakePublisher) PublishPortfolio(_ context.Context, runID string, _ []domain.PromotionRecord, portfolio metrics.Portfolio) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.runs = append(p.runs, runID)
	p.count = len(portfolio.Records) + len(portfolio.Rejected)
	return p.count, nil
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

// fakeLock 每次 Lock 从 grants 取一个 lost channel，取到即视为持锁。
type fakeLock struct {
	grants  chan chan struct{}
	mu      sync.Mutex
	unlocks int
}

func (l *fakeLock) Lock(ctx context.Context) (<-chan struct{}, error) {
	select {
	case lost := <-l.grants:
		return lost, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	return nil
}

func (l *fakeLock) unlockCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unlocks
}

var fixedNow = time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*calendar.Store, domain.RuleEngine) {
	rules, err := rule.NewCELRuleEngine()
	require.NoError(t, err)
	catalog, err := calendar.DefaultCatalog(rules)
	require.NoError(t, err)
	return calendar.NewStore(catalog, rules), rules
}

func newTestEngine(t *testing.T) *engine.Engine {
	store, rules := newTestStore(t)
	return newPolicyEngine(store, rules, metrics.DefaultPolicy())
}

func newPolicyEngine(store *calendar.Store, rules domain.RuleEngine, policy metrics.Policy) *engine.Engine {
	return engine.New(store, metrics.NewCalculator(policy), rules,
		engine.Options{Clock: func() time.Time { return fixedNow }})
}

func sampleRecords() []domain.PromotionRecord {
	return []domain.PromotionRecord{
		{ID: "template-1", Source: domain.SourceTemplate, Name: "Welcome 15", Category: domain.CategoryAcquisition,
			DiscountKind: domain.DiscountKindPercentage, Magnitude: 15, TimesRedeemed: 40, Active: true},
		{ID: "template-2", Source: domain.SourceTemplate, Name: "Idle", Category: domain.CategoryRetention,
			DiscountKind: domain.DiscountKindFlat, Magnitude: 5, Active: true},
		{ID: "code-1", Source: domain.SourceCode, Code: "FEST25", Category: domain.CategorySeasonal,
			DiscountKind: domain.DiscountKindPercentage, Magnitude: 25, TimesRedeemed: 10, MaxRedemptions: 20},
		{ID: "code-2", Source: domain.SourceCode, Code: "BROKEN", DiscountKind: domain.DiscountKindPercentage, Magnitude: 0},
	}
}

func newService(t *testing.T, repo *fakeRepo, cache RecommendationCache, pub MetricsPublisher) (*InsightService, *Metrics) {
	m := NewMetrics(prometheus.NewRegistry())
	return NewInsightService(repo, newTestEngine(t), cache, pub, noop.NewTracerProvider().Tracer("test"), m), m
}

func TestRecommend(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()}
	svc, m := newService(t, repo, nil, nil)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Goal: "revenue"})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.False(t, resp.Cached)
	assert.Equal(t, "2026-08-26", resp.Date)
	require.Len(t, resp.Recommendations, 2)
	assert.Equal(t, "template-1", resp.Recommendations[0].RecordID)
	assert.Equal(t, "code-1", resp.Recommendations[1].RecordID)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "code-2", resp.Rejected[0].RecordID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("revenue", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedRecords))
}

func TestRecommendInsufficientData(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()[1:2]}
	svc, _ := newService(t, repo, nil, nil)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientData, resp.Status)
	assert.Empty(t, resp.Recommendations)
}

func TestRecommendValidatesInput(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, nil)
	ctx := context.Background()

	_, err := svc.Recommend(ctx, RecommendRequest{Goal: "clicks"})
	assert.ErrorIs(t, err, domain.ErrUnknownGoal)

	_, err = svc.Recommend(ctx, RecommendRequest{Goal: "roi", Source: "voucher"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Recommend(ctx, RecommendRequest{Goal: "roi", TopN: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRecommendPassesSourceFilter(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()}
	svc, _ := newService(t, repo, nil, nil)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Goal: "roi", Source: "code", TopN: 1})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "code-1", resp.Recommendations[0].RecordID)
	assert.Equal(t, domain.SourceCode, repo.filters[0].Source)
}

func TestRecommendUsesCache(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()}
	cache := &mapCache{data: map[string]*engine.Result{}}
	svc, m := newService(t, repo, cache, nil)
	ctx := context.Background()

	first, err := svc.Recommend(ctx, RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Recommend(ctx, RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.NotEqual(t, first.RunID, second.RunID)

	// 快照变化后指纹不同，不会命中旧结果
	repo.records[0].TimesRedeemed++
	third, err := svc.Recommend(ctx, RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.False(t, third.Cached)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestRecommendCacheMissAfterPolicyReload(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()}
	cache := &mapCache{data: map[string]*engine.Result{}}
	store, rules := newTestStore(t)
	svc := NewInsightService(repo, newPolicyEngine(store, rules, metrics.DefaultPolicy()), cache, nil,
		noop.NewTracerProvider().Tracer("test"), nil)
	ctx := context.Background()

	before, err := svc.Recommend(ctx, RecommendRequest{Goal: "revenue", TopN: 1})
	require.NoError(t, err)
	require.Len(t, before.Recommendations, 1)
	assert.Equal(t, 6000.0, before.Recommendations[0].MetricValue)

	policy := metrics.DefaultPolicy()
	policy.UpliftFactor = 3
	svc.SetEngine(newPolicyEngine(store, rules, policy))

	after, err := svc.Recommend(ctx, RecommendRequest{Goal: "revenue", TopN: 1})
	require.NoError(t, err)
	assert.False(t, after.Cached)
	require.Len(t, after.Recommendations, 1)
	assert.Equal(t, 12000.0, after.Recommendations[0].MetricValue)
}

func TestRecommendCacheMissAfterCatalogReload(t *testing.T) {
	repo := &fakeRepo{records: sampleRecords()}
	cache := &mapCache{data: map[string]*engine.Result{}}
	store, rules := newTestStore(t)
	svc := NewInsightService(repo, newPolicyEngine(store, rules, metrics.DefaultPolicy()), cache, nil,
		noop.NewTracerProvider().Tracer("test"), nil)
	ctx := context.Background()

	_, err := svc.Recommend(ctx, RecommendRequest{Goal: "roi"})
	require.NoError(t, err)

	_, err = store.Reload([]byte("version: reloaded\n"))
	require.NoError(t, err)

	resp, err := svc.Recommend(ctx, RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "reloaded", resp.CatalogVersion)
	assert.Equal(t, 2, cache.sets)
}

func TestRecommendSurvivesCacheFailure(t *testing.T) {
	cache := &mapCache{data: map[string]*engine.Result{}, err: errors.New("redis down")}
	svc, m := newService(t, &fakeRepo{records: sampleRecords()}, cache, nil)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Goal: "roi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Recommendations)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("error")))
}

func TestRecommendRepositoryFailure(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{err: errors.New("db down")}, nil, nil)
	_, err := svc.Recommend(context.Background(), RecommendRequest{Goal: "roi"})
	assert.ErrorIs(t, err, domain.ErrSnapshotUnavailable)
	assert.ErrorContains(t, err, "db down")
}

func TestRecordMetrics(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, nil)
	ctx := context.Background()

	m, err := svc.RecordMetrics(ctx, "template-1")
	require.NoError(t, err)
	assert.Equal(t, 600.0, m.DiscountGiven)
	assert.Equal(t, 0.0, m.ActiveComponent)

	_, err = svc.RecordMetrics(ctx, "code-2")
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)

	_, err = svc.RecordMetrics(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestPortfolio(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, nil)

	p, err := svc.Portfolio(context.Background(), domain.SnapshotFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.ValidCount)
	assert.Equal(t, 2, p.ActiveCount)
	require.Len(t, p.Rejected, 1)
}

func TestCalendarContext(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{}, nil, nil)
	ctx := context.Background()

	today, err := svc.CalendarContext(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-26", today.Date)
	assert.NotEmpty(t, today.CatalogVersion)
	require.NotEmpty(t, today.ActiveEvents)
	assert.Equal(t, "orientation", today.ActiveEvents[0].Kind)
	require.NotNil(t, today.CurrentSeason)
	assert.Equal(t, "Back-to-School Rush", today.CurrentSeason.Name)

	july, err := svc.CalendarContext(ctx, "2026-07-10")
	require.NoError(t, err)
	require.NotNil(t, july.CurrentSeason)
	assert.Equal(t, "Summer Session", july.CurrentSeason.Name)

	_, err = svc.CalendarContext(ctx, "26/08/2026")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPublishMetrics(t *testing.T) {
	pub := &fakePublisher{}
	svc, m := newService(t, &fakeRepo{records: sampleRecords()}, nil, pub)

	resp, err := svc.PublishMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Published)
	assert.Equal(t, 1, resp.Rejected)
	assert.Equal(t, []string{resp.RunID}, pub.runs)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.published.WithLabelValues("ok")))
}

func TestPublishMetricsErrors(t *testing.T) {
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, nil)
	_, err := svc.PublishMetrics(context.Background())
	assert.ErrorIs(t, err, domain.ErrPublisherDisabled)

	svc, _ = newService(t, &fakeRepo{records: sampleRecords()}, nil, &fakePublisher{err: errors.New("broker down")})
	_, err = svc.PublishMetrics(context.Background())
	assert.ErrorContains(t, err, "broker down")
}

func TestPublishLoopStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.PublishLoop(ctx, time.Hour))
	assert.Empty(t, pub.runs)
}

func TestPublishLoopWaitsForLock(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, &fakeRepo{records: sampleRecords()}, nil, pub)
	lock := &fakeLock{grants: make(chan chan struct{})}
	svc.SetPublishLock(lock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.PublishLoop(ctx, 5*time.Millisecond) }()

	// 未持锁的副本不发布
	assert.Never(t, func() bool { return pub.published() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	lost := make(chan struct{})
	lock.grants <- lost
	require.Eventually(t, func() bool { return pub.published() > 0 }, time.Second, 5*time.Millisecond)

	// 锁丢失后释放并停止发布，等待重新获得锁
	close(lost)
	require.Eventually(t, func() bool { return lock.unlockCount() == 1 }, time.Second, 5*time.Millisecond)
	n := pub.published()
	assert.Never(t, func() bool { return pub.published() > n }, 50*time.Millisecond, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish loop did not stop")
	}
}

func TestRecommendationKey(t *testing.T) {
	key := RecommendationKey{Goal: domain.GoalROI, TopN: 3, Date: "2026-08-26", CatalogVersion: "v1", Config: "p1", Fingerprint: "abc"}
	assert.Equal(t, "roi::3:2026-08-26:v1:p1:abc", key.String())
}
