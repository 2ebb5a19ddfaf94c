package ranking

import (
	"sort"

	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/metrics"
)

// DefaultTopN 是默认返回的候选数量。
const DefaultTopN = 3

// Report 是一次排序的完整结果，包含被排除的不合法记录。
type Report struct {
	Ranked        []domain.RankedRecommendation
	Rejected      []metrics.Rejection
	EligibleCount int
}

// Ranker 按优化目标对促销记录排序。
type Ranker struct {
	calc *metrics.Calculator
}

// NewRanker 创建排序器。
func NewRanker(calc *metrics.Calculator) *Ranker {
	return &Ranker{calc: calc}
}

// Rank 返回按 goal 排序后的前 topN 条记录，理由列表留空。
// 目标不合法时返回空结果。
func (r *Ranker) Rank(records []domain.PromotionRecord, goal domain.CampaignGoal, topN int) []domain.RankedRecommendation {
	report, err := r.RankWithReport(records, goal, topN)
	if err != nil {
		return nil
	}
	return report.Ranked
}

type candidate struct {
	record domain.PromotionRecord
	value  float64
}

// RankWithReport 执行排序：
//  1. 不合法的记录被排除并记入 Rejected；
//  2. 没有历史信号的记录不参与排序；
//  3. 按目标指标降序稳定排序，指标相同时保持输入顺序；
//  4. 截取前 topN 条，名次从 1 开始。
func (r *Ranker) RankWithReport(records []domain.PromotionRecord, goal domain.CampaignGoal, topN int) (Report, error) {
	if _, err := domain.ParseCampaignGoal(string(goal)); err != nil {
		return Report{}, err
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	report := Report{Ranked: []domain.RankedRecommendation{}}
	candidates := make([]candidate, 0, len(records))
	for _, record := range records {
		m, err := r.calc.Compute(record)
		if err != nil {
			report.Rejected = append(report.Rejected, metrics.Rejection{RecordID: record.ID, Reason: err.Error()})
			continue
		}
		if !record.HasActivity() {
			continue
		}
		candidates = append(candidates, candidate{record: record, value: MetricFor(record, m, goal)})
	}
	report.EligibleCount = len(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	for i, c := range candidates {
		report.Ranked = append(report.Ranked, domain.RankedRecommendation{
			Record:      c.record,
			RecordID:    c.record.ID,
			Name:        c.record.DisplayName(),
			Category:    c.record.Category,
			Rank:        i + 1,
			Goal:        goal,
			MetricValue: c.value,
			Rationale:   []string{},
		})
	}
	return report, nil
}

// MetricFor 选出目标对应的指标值。存储层的预计算值视为缓存优先使用，
// 缺失时才使用计算器推导的结果。
func MetricFor(record domain.PromotionRecord, m metrics.Metrics, goal domain.CampaignGoal) float64 {
	switch goal {
	case domain.GoalROI:
		if record.ROIScore != nil {
			return *record.ROIScore
		}
		return m.ROI
	case domain.GoalRedemptionRate:
		if record.RedemptionRate != nil {
			return *record.RedemptionRate
		}
		return m.CapUtilization
	case domain.GoalRevenue:
		if record.RevenueGenerated != nil {
			return *record.RevenueGenerated
		}
		return m.RevenueInfluenced
	default:
		return 0
	}
}
