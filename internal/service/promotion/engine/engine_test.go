package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/infrastructure/rule"
	"campusnexus/internal/service/promotion/metrics"
)

const scenarioCatalog = `
version: scenario-1
events:
  - id: fall-orientation
    name: Fall Orientation Week
    kind: orientation
    categories: [acquisition, engagement]
    start: 2026-08-24
    end: 2026-08-30
    impact: high
    behavior: new students place 2-3x more first-time orders
  - id: lantern-festival
    name: Lantern Festival
    kind: festival
    categories: [seasonal]
    start: 2026-08-31
    end: 2026-08-31
    impact: medium
    behavior: dessert orders rise ~25% in the evening
seasons:
  - name: Back-to-School Rush
    months: [8, 9]
    order_increase_pct: 35
    peak_days: [Monday, Friday]
    categories: [acquisition]
heuristics:
  - name: orientation-acquisition
    when: record.category == "acquisition" && event.kind == "orientation"
    message: Orientation brings first-time customers.
`

func newEngine(t *testing.T, now time.Time) *Engine {
	return newEngineWith(t, metrics.DefaultPolicy(), Options{Clock: func() time.Time { return now }})
}

func newEngineWith(t *testing.T, policy metrics.Policy, opts Options) *Engine {
	rules, err := rule.NewCELRuleEngine()
	require.NoError(t, err)
	catalog, err := calendar.LoadCatalog([]byte(scenarioCatalog), rules)
	require.NoError(t, err)
	return New(calendar.NewStore(catalog, rules), metrics.NewCalculator(policy), rules, opts)
}

func scenarioRecords() []domain.PromotionRecord {
	base := func(id string, category domain.Category, roi float64) domain.PromotionRecord {
		r := domain.PromotionRecord{
			ID: id, Name: "Template " + id, Source: domain.SourceTemplate, Category: category,
			DiscountKind: domain.DiscountKindPercentage, Magnitude: 15,
			OrderTypes: []domain.OrderType{"food"}, Active: true,
		}
		if roi > 0 {
			r.ROIScore = domain.Float(roi)
		}
		return r
	}
	return []domain.PromotionRecord{
		base("A", domain.CategoryAcquisition, 91),
		base("B", domain.CategorySeasonal, 84),
		base("C", domain.CategoryRetention, 0),
	}
}

func TestRecommendScenarioDuringOrientation(t *testing.T) {
	now := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	e := newEngine(t, now)

	recs := e.Recommend(scenarioRecords(), domain.GoalROI)

	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].RecordID)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, "91.0%", recs[0].DisplayValue)
	assert.Equal(t, "Ranks #1 by ROI (91.0%)", recs[0].Rationale[0])
	assert.True(t, strings.HasPrefix(recs[0].Rationale[1], "Currently active: Fall Orientation Week"))
	assert.Len(t, recs[0].Rationale, 3)

	assert.Equal(t, "B", recs[1].RecordID)
	assert.Equal(t, 2, recs[1].Rank)
	require.Len(t, recs[1].Rationale, 2)
	assert.Equal(t, "Ranks #2 by ROI (84.0%)", recs[1].Rationale[0])
	assert.Equal(t, "Starting soon: Lantern Festival — dessert orders rise ~25% in the evening", recs[1].Rationale[1])
}

func TestRunReportsCalendarMetadata(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	e := newEngine(t, now)

	result, err := e.Run(scenarioRecords(), domain.GoalROI, now, 1)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-29", result.Date)
	assert.Equal(t, "scenario-1", result.CatalogVersion)
	assert.Equal(t, 2, result.EligibleCount)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "A", result.Recommendations[0].RecordID)

	// 8 月 29 日距节日两天，迎新仍在进行
	ctx := e.Context(now)
	require.Len(t, ctx.ActiveEvents, 1)
	require.Len(t, ctx.UpcomingEvents, 1)
	assert.Equal(t, 2, ctx.DaysUntil(ctx.UpcomingEvents[0]))
}

func TestRecommendIsDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, now)

	first := e.RecommendAt(scenarioRecords(), domain.GoalRevenue, now)
	second := e.RecommendAt(scenarioRecords(), domain.GoalRevenue, now)
	assert.Equal(t, first, second)
}

func TestRecommendEmptyAndInvalidGoal(t *testing.T) {
	e := newEngine(t, time.Now())

	recs := e.Recommend([]domain.PromotionRecord{scenarioRecords()[2]}, domain.GoalROI)
	assert.Empty(t, recs)

	_, err := e.Run(scenarioRecords(), "likes", time.Now(), 3)
	assert.ErrorIs(t, err, domain.ErrUnknownGoal)
}

func TestFormatMetric(t *testing.T) {
	cases := []struct {
		goal  domain.CampaignGoal
		value float64
		want  string
	}{
		{domain.GoalROI, 650, "650.0%"},
		{domain.GoalRedemptionRate, 33.333, "33.3%"},
		{domain.GoalRevenue, 950, "950"},
		{domain.GoalRevenue, 1500, "1.5K"},
		{domain.GoalRevenue, 75000, "75K"},
		{domain.GoalRevenue, 2_340_000, "2.3M"},
		{domain.GoalRevenue, 999_960, "1M"},
		{domain.GoalRevenue, 999_950, "1M"},
		{domain.GoalRevenue, 999.4, "999"},
		{domain.GoalRevenue, 999.6, "1K"},
		{domain.GoalRevenue, -0.3, "0"},
		{domain.GoalRevenue, 4_200_000_000, "4.2B"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatMetric(tc.goal, tc.value), "%s %v", tc.goal, tc.value)
	}
}

func TestFingerprintChangesWithSnapshot(t *testing.T) {
	records := scenarioRecords()
	a, err := Fingerprint(records)
	require.NoError(t, err)

	b, err := Fingerprint(scenarioRecords())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	records[0].TimesRedeemed++
	c, err := Fingerprint(records)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDurationSlackDays(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	records := scenarioRecords()
	records[1].DurationDays = 5
	clock := func() time.Time { return now }

	// 默认允许多出 3 天：5 <= 2 + 3
	recs := newEngineWith(t, metrics.DefaultPolicy(), Options{Clock: clock}).Recommend(records, domain.GoalROI)
	require.Len(t, recs, 2)
	require.Len(t, recs[1].Rationale, 3)
	assert.Equal(t, "5-day run lines up with Lantern Festival, which starts in 2 days", recs[1].Rationale[2])

	// 显式配置 0 天不会被替换成默认值
	zero := 0
	recs = newEngineWith(t, metrics.DefaultPolicy(), Options{Clock: clock, DurationSlackDays: &zero}).Recommend(records, domain.GoalROI)
	require.Len(t, recs, 2)
	assert.Len(t, recs[1].Rationale, 2)
}

func TestConfigFingerprintTracksPolicy(t *testing.T) {
	base := newEngineWith(t, metrics.DefaultPolicy(), Options{})
	same := newEngineWith(t, metrics.DefaultPolicy(), Options{})
	assert.NotEmpty(t, base.ConfigFingerprint())
	assert.Equal(t, base.ConfigFingerprint(), same.ConfigFingerprint())

	policy := metrics.DefaultPolicy()
	policy.UpliftFactor = 3
	assert.NotEqual(t, base.ConfigFingerprint(), newEngineWith(t, policy, Options{}).ConfigFingerprint())

	slack := 0
	assert.NotEqual(t, base.ConfigFingerprint(),
		newEngineWith(t, metrics.DefaultPolicy(), Options{DurationSlackDays: &slack}).ConfigFingerprint())
}

func TestRunWithCatalogUsesGivenCatalog(t *testing.T) {
	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	e := newEngine(t, now)
	pinned := e.Catalog()
	require.NotNil(t, pinned)

	other := &calendar.Catalog{Version: "other"}
	result, err := e.RunWithCatalog(other, scenarioRecords(), domain.GoalROI, now, 3)
	require.NoError(t, err)
	assert.Equal(t, "other", result.CatalogVersion)

	result, err = e.RunWithCatalog(pinned, scenarioRecords(), domain.GoalROI, now, 3)
	require.NoError(t, err)
	assert.Equal(t, "scenario-1", result.CatalogVersion)
}
