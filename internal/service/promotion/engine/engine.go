package engine

import (
	"time"

	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/metrics"
	"campusnexus/internal/service/promotion/ranking"
	"campusnexus/internal/service/promotion/rationale"
)

// CatalogSource 提供当前生效的日历目录，calendar.Store 实现了它。
type CatalogSource interface {
	Current() *calendar.Catalog
}

// Options 是引擎的可调参数。TopN、MaxRationale、UpcomingWindowDays 不大于 0 时使用默认值；
// DurationSlackDays 为 nil 时使用默认值，显式的 0 表示不允许多出天数。
type Options struct {
	TopN               int
	MaxRationale       int
	DurationSlackDays  *int
	UpcomingWindowDays int
	Clock              func() time.Time
}

// Result 是一次推荐的完整输出。
type Result struct {
	Goal            domain.CampaignGoal           `json:"goal"`
	Date            string                        `json:"date"`
	CatalogVersion  string                        `json:"catalog_version"`
	EligibleCount   int                           `json:"eligible_count"`
	Recommendations []domain.RankedRecommendation `json:"recommendations"`
	Rejected        []metrics.Rejection           `json:"rejected,omitempty"`
}

// Engine 组合日历、排序和理由生成，是外部调用方唯一应该使用的入口。
// 引擎本身无状态，可并发调用。
type Engine struct {
	catalogs   CatalogSource
	calc       *metrics.Calculator
	ranker     *ranking.Ranker
	rationale  *rationale.Generator
	topN       int
	windowDays int
	clock      func() time.Time
	configHash string
}

// New 创建推荐引擎。
func New(catalogs CatalogSource, calc *metrics.Calculator, rules domain.RuleEngine, opts Options) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = ranking.DefaultTopN
	}
	slack := rationale.DefaultDurationSlackDays
	if opts.DurationSlackDays != nil && *opts.DurationSlackDays >= 0 {
		slack = *opts.DurationSlackDays
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		catalogs:   catalogs,
		calc:       calc,
		ranker:     ranking.NewRanker(calc),
		rationale:  rationale.NewGenerator(rules, opts.MaxRationale, slack),
		topN:       opts.TopN,
		windowDays: opts.UpcomingWindowDays,
		clock:      opts.Clock,
		configHash: configFingerprint(calc.Policy(), opts.TopN, opts.MaxRationale, slack, opts.UpcomingWindowDays),
	}
}

// ConfigFingerprint 是评分策略和引擎参数的摘要，策略热更新后会变化。
func (e *Engine) ConfigFingerprint() string {
	return e.configHash
}

// Calculator 返回引擎使用的指标计算器。
func (e *Engine) Calculator() *metrics.Calculator {
	return e.calc
}

// Now 返回引擎时钟的当前时间。
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Recommend 以引擎时钟的当前时间生成推荐。
func (e *Engine) Recommend(records []domain.PromotionRecord, goal domain.CampaignGoal) []domain.RankedRecommendation {
	return e.RecommendAt(records, goal, e.clock())
}

// RecommendAt 以指定时间生成推荐，相同输入总是得到相同输出。
func (e *Engine) RecommendAt(records []domain.PromotionRecord, goal domain.CampaignGoal, now time.Time) []domain.RankedRecommendation {
	result, err := e.Run(records, goal, now, e.topN)
	if err != nil {
		return []domain.RankedRecommendation{}
	}
	return result.Recommendations
}

// Context 返回 now 对应的日历上下文。
func (e *Engine) Context(now time.Time) calendar.Context {
	return calendar.NewProvider(e.catalog(), e.windowDays).GetContext(now)
}

// Catalog 返回当前生效的目录，可能为 nil。
func (e *Engine) Catalog() *calendar.Catalog {
	return e.catalog()
}

// Run 执行完整的推荐流程：一次日历查询，排序，再为每个候选生成理由。
func (e *Engine) Run(records []domain.PromotionRecord, goal domain.CampaignGoal, now time.Time, topN int) (Result, error) {
	return e.RunWithCatalog(e.catalog(), records, goal, now, topN)
}

// RunWithCatalog 与 Run 相同，但使用调用方取到的目录，
// 这样结果的目录版本和调用方据此计算的缓存键一致。
func (e *Engine) RunWithCatalog(catalog *calendar.Catalog, records []domain.PromotionRecord, goal domain.CampaignGoal,
	now time.Time, topN int) (Result, error) {
	if topN <= 0 {
		topN = e.topN
	}
	report, err := e.ranker.RankWithReport(records, goal, topN)
	if err != nil {
		return Result{}, err
	}

	cal := calendar.NewProvider(catalog, e.windowDays).GetContext(now)
	var heuristics []calendar.Heuristic
	if catalog != nil {
		heuristics = catalog.Heuristics
	}

	for i := range report.Ranked {
		rec := &report.Ranked[i]
		rec.DisplayValue = FormatMetric(goal, rec.MetricValue)
		rec.Rationale = e.rationale.Explain(rationale.Candidate{
			Record:       rec.Record,
			Goal:         goal,
			Rank:         rec.Rank,
			DisplayValue: rec.DisplayValue,
		}, cal, heuristics)
	}

	return Result{
		Goal:            goal,
		Date:            cal.Today.Format("2006-01-02"),
		CatalogVersion:  cal.CatalogVersion,
		EligibleCount:   report.EligibleCount,
		Recommendations: report.Ranked,
		Rejected:        report.Rejected,
	}, nil
}

func (e *Engine) catalog() *calendar.Catalog {
	if e.catalogs == nil {
		return nil
	}
	return e.catalogs.Current()
}
