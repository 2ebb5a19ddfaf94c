package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"campusnexus/internal/service/promotion/domain"
)

var hundred = decimal.NewFromInt(100)

// Metrics 是单条促销记录的财务与行为指标。金额已取整到货币单位。
type Metrics struct {
	RecordID              string  `json:"record_id"`
	PerRedemptionDiscount float64 `json:"per_redemption_discount"`
	DiscountGiven         float64 `json:"discount_given"`
	AssumedOrderValue     float64 `json:"assumed_order_value"`
	RevenueInfluenced     float64 `json:"revenue_influenced"`
	ROI                   float64 `json:"roi"`
	CostPerRedemption     float64 `json:"cost_per_redemption"`
	CapUtilization        float64 `json:"cap_utilization"`

	RedemptionComponent float64 `json:"redemption_component"`
	ROIComponent        float64 `json:"roi_component"`
	ActiveComponent     float64 `json:"active_component"`
	EffectivenessScore  int     `json:"effectiveness_score"`
}

// Calculator 根据优惠形态和核销计数推导指标，无状态，可并发使用。
type Calculator struct {
	policy Policy
}

// NewCalculator 创建指标计算器，未配置的策略字段使用默认值。
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy.WithDefaults()}
}

// Policy 返回计算器实际使用的策略。
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Compute 单独计算一条记录的指标，此时覆盖率分量为 0。
// 不合法的记录直接拒绝，不产出指标。
func (c *Calculator) Compute(record domain.PromotionRecord) (Metrics, error) {
	if err := record.Validate(); err != nil {
		return Metrics{}, err
	}

	basket := decimal.NewFromFloat(math.Max(record.MinOrderAmount, c.policy.ReferenceBasket))
	times := decimal.NewFromInt(int64(record.TimesRedeemed))

	var perRedemption decimal.Decimal
	if record.DiscountKind == domain.DiscountKindFlat {
		perRedemption = decimal.NewFromFloat(record.Magnitude)
	} else {
		perRedemption = decimal.NewFromFloat(record.Magnitude).Div(hundred).Mul(basket)
	}

	discountGiven := perRedemption.Mul(times)
	assumedOrderValue := basket.Mul(decimal.NewFromFloat(c.policy.UpliftFactor))
	revenue := assumedOrderValue.Mul(times)

	roi := decimal.Zero
	if discountGiven.IsPositive() {
		roi = revenue.Sub(discountGiven).Div(discountGiven).Mul(hundred)
	}
	costPerRedemption := decimal.Zero
	if record.TimesRedeemed > 0 {
		costPerRedemption = discountGiven.Div(times)
	}

	m := Metrics{
		RecordID:              record.ID,
		PerRedemptionDiscount: perRedemption.Round(0).InexactFloat64(),
		DiscountGiven:         discountGiven.Round(0).InexactFloat64(),
		AssumedOrderValue:     assumedOrderValue.Round(0).InexactFloat64(),
		RevenueInfluenced:     revenue.Round(0).InexactFloat64(),
		ROI:                   roi.Round(2).InexactFloat64(),
		CostPerRedemption:     costPerRedemption.Round(0).InexactFloat64(),
		CapUtilization:        capUtilization(record),
	}
	m.RedemptionComponent = c.redemptionComponent(record, m.CapUtilization)
	m.ROIComponent = math.Min(m.ROI/c.policy.ROIDivisor, c.policy.ROICap)
	m.EffectivenessScore = c.score(m)
	return m, nil
}

// redemptionComponent 有核销上限时取上限使用率，否则按是否被核销过给固定分。
func (c *Calculator) redemptionComponent(record domain.PromotionRecord, utilization float64) float64 {
	if record.HasRedemptionCap() {
		return utilization
	}
	if record.TimesRedeemed > 0 {
		return c.policy.UncappedRedeemedScore
	}
	return c.policy.UncappedIdleScore
}

// score 计算加权效果分，结果限制在 [0,100]。
//
//	score = redemption*RedemptionWeight + min(roi/ROIDivisor, ROICap) + active
func (c *Calculator) score(m Metrics) int {
	raw := m.RedemptionComponent*c.policy.RedemptionWeight + m.ROIComponent + m.ActiveComponent
	return int(math.Max(0, math.Min(100, math.Round(raw))))
}

// capUtilization 返回核销上限使用率 (0-100)，没有上限时为 0。
func capUtilization(record domain.PromotionRecord) float64 {
	if !record.HasRedemptionCap() {
		return 0
	}
	ratio := float64(record.TimesRedeemed) / float64(record.MaxRedemptions)
	return math.Min(ratio, 1) * 100
}
