package metrics

import (
	"math"

	"campusnexus/internal/service/promotion/domain"
)

// Rejection 记录一条因数据质量问题被排除的记录。
type Rejection struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// Portfolio 是对一组记录整体评分的结果。
type Portfolio struct {
	Records  []Metrics   `json:"records"`
	Rejected []Rejection `json:"rejected"`

	ValidCount      int     `json:"valid_count"`
	ActiveCount     int     `json:"active_count"`
	ActiveComponent float64 `json:"active_component"`

	TotalDiscountGiven     float64 `json:"total_discount_given"`
	TotalRevenueInfluenced float64 `json:"total_revenue_influenced"`
	BlendedROI             float64 `json:"blended_roi"`
	AverageEffectiveness   float64 `json:"average_effectiveness"`
}

// ComputePortfolio 对整组记录评分。覆盖率分量在组合层面计算：
// (活跃记录数 / 合法记录数) * ActiveCoverageWeight，并加到每条记录的效果分上。
func (c *Calculator) ComputePortfolio(records []domain.PromotionRecord) Portfolio {
	p := Portfolio{Records: make([]Metrics, 0, len(records))}

	for _, record := range records {
		m, err := c.Compute(record)
		if err != nil {
			p.Rejected = append(p.Rejected, Rejection{RecordID: record.ID, Reason: err.Error()})
			continue
		}
		p.Records = append(p.Records, m)
		if record.Active {
			p.ActiveCount++
		}
	}
	p.ValidCount = len(p.Records)
	if p.ValidCount == 0 {
		return p
	}

	p.ActiveComponent = float64(p.ActiveCount) / float64(p.ValidCount) * c.policy.ActiveCoverageWeight

	var scoreSum float64
	for i := range p.Records {
		p.Records[i].ActiveComponent = p.ActiveComponent
		p.Records[i].EffectivenessScore = c.score(p.Records[i])
		scoreSum += float64(p.Records[i].EffectivenessScore)
		p.TotalDiscountGiven += p.Records[i].DiscountGiven
		p.TotalRevenueInfluenced += p.Records[i].RevenueInfluenced
	}

	if p.TotalDiscountGiven > 0 {
		p.BlendedROI = roundTo2((p.TotalRevenueInfluenced - p.TotalDiscountGiven) / p.TotalDiscountGiven * 100)
	}
	p.AverageEffectiveness = roundTo2(scoreSum / float64(p.ValidCount))
	return p
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
