package metrics

import "math"

// Policy 收拢了评分中的业务假设常量，调整策略时不需要改动算法本身。
type Policy struct {
	// ReferenceBasket 是未设置最低消费时使用的参考客单价。
	ReferenceBasket float64 `yaml:"reference_basket" json:"reference_basket"`
	// UpliftFactor 是相对最低消费的典型客单价放大倍数。
	UpliftFactor float64 `yaml:"uplift_factor" json:"uplift_factor"`

	RedemptionWeight      float64 `yaml:"redemption_weight" json:"redemption_weight"`
	ROIDivisor            float64 `yaml:"roi_divisor" json:"roi_divisor"`
	ROICap                float64 `yaml:"roi_cap" json:"roi_cap"`
	ActiveCoverageWeight  float64 `yaml:"active_coverage_weight" json:"active_coverage_weight"`
	UncappedRedeemedScore float64 `yaml:"uncapped_redeemed_score" json:"uncapped_redeemed_score"`
	UncappedIdleScore     float64 `yaml:"uncapped_idle_score" json:"uncapped_idle_score"`
}

// DefaultPolicy 返回默认的评分策略。
func DefaultPolicy() Policy {
	return Policy{
		ReferenceBasket:       100,
		UpliftFactor:          1.5,
		RedemptionWeight:      0.4,
		ROIDivisor:            5,
		ROICap:                40,
		ActiveCoverageWeight:  20,
		UncappedRedeemedScore: 60,
		UncappedIdleScore:     20,
	}
}

// WithDefaults 补齐不合法的字段。参考客单价、放大倍数、ROI 除数和 ROI 上限必须为正，
// 否则使用默认值；权重和固定分允许为 0（关闭该分量），只有负数才回退到默认值。
// 配置文件解码在默认策略之上进行，未出现的键保持默认值。
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	positive := []struct {
		value    *float64
		fallback float64
	}{
		{&p.ReferenceBasket, d.ReferenceBasket},
		{&p.UpliftFactor, d.UpliftFactor},
		{&p.ROIDivisor, d.ROIDivisor},
		{&p.ROICap, d.ROICap},
	}
	for _, f := range positive {
		if !(*f.value > 0) || math.IsInf(*f.value, 0) {
			*f.value = f.fallback
		}
	}
	nonNegative := []struct {
		value    *float64
		fallback float64
	}{
		{&p.RedemptionWeight, d.RedemptionWeight},
		{&p.ActiveCoverageWeight, d.ActiveCoverageWeight},
		{&p.UncappedRedeemedScore, d.UncappedRedeemedScore},
		{&p.UncappedIdleScore, d.UncappedIdleScore},
	}
	for _, f := range nonNegative {
		if !(*f.value >= 0) || math.IsInf(*f.value, 0) {
			*f.value = f.fallback
		}
	}
	return p
}
